// Package agent implements the translation cycle: classify the input, repair
// it when it is broken JSON, translate, review, and either loop back to the
// translator or format the final result.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
)

// Decision is the reviewer's verdict.
type Decision int

const (
	DecisionUnknown Decision = iota
	DecisionApprove
	DecisionRedo
	DecisionEnd
)

// ParseDecision maps model text onto a Decision. Anything unrecognised is
// DecisionUnknown.
func ParseDecision(s string) Decision {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APPROVE", "APPROVED":
		return DecisionApprove
	case "REDO":
		return DecisionRedo
	case "END":
		return DecisionEnd
	}
	return DecisionUnknown
}

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "APPROVE"
	case DecisionRedo:
		return "REDO"
	case DecisionEnd:
		return "END"
	}
	return "UNKNOWN"
}

func (d Decision) MarshalJSON() ([]byte, error) {
	if d == DecisionUnknown {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// ContentType is the classifier's verdict on the raw input.
type ContentType string

const (
	ContentString        ContentType = "string"
	ContentJSON          ContentType = "json"
	ContentMalformedJSON ContentType = "malformedJson"
)

// Assessment is the classifier's output.
type Assessment struct {
	ContentType ContentType `json:"content_type"`
	Issues      []string    `json:"issues,omitempty"`
	Summary     string      `json:"summary,omitempty"`
}

// Prepared is an input after CLASSIFY and, when needed, REPAIR. It is what
// the result cache stores.
type Prepared struct {
	Input         content.Value
	Assessment    Assessment
	WasStructured bool
	Repaired      bool
}

// TranslationState is the translator's output.
type TranslationState struct {
	Translation content.Value
	Iteration   int
}

// ReviewState is the reviewer's output. Issues holds defective PathKeys for
// structured documents and free-text problems otherwise.
type ReviewState struct {
	Decision  Decision
	Issues    []string
	Reasoning string
	Rating    int
}

// FormatState is the formatter's output.
type FormatState struct {
	FinalTranslation content.Value
	FinalRating      int
}

// State names a node of the cycle.
type State string

const (
	StateClassify  State = "CLASSIFY"
	StateRepair    State = "REPAIR"
	StateTranslate State = "TRANSLATE"
	StateReview    State = "REVIEW"
	StateFormat    State = "FORMAT"
	StateDone      State = "DONE"
)

// Result is the outcome of one completed cycle for one language.
type Result struct {
	Language         language.Language
	Input            content.Value
	WasStructured    bool
	FinalTranslation content.Value
	FinalRating      int
	Decision         Decision
	Reasoning        string
	Iterations       int
	Trace            []State
}

// Accuracy is the final rating scaled onto [0, 1].
func (r Result) Accuracy() float64 {
	if r.FinalRating <= 0 {
		return 0
	}
	if r.FinalRating >= 5 {
		return 1
	}
	return float64(r.FinalRating) / 5
}

// MarshalJSON renders the shape pushed to websocket clients.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IsJSON            bool          `json:"is_json"`
		IsString          bool          `json:"is_string"`
		OriginalInput     content.Value `json:"original_input"`
		TargetLanguage    string        `json:"target_language"`
		LanguageName      string        `json:"language_name"`
		FinalTranslation  content.Value `json:"final_translation"`
		TranslationRating int           `json:"translation_rating"`
		ReviewDecision    Decision      `json:"review_decision"`
		ReviewReasoning   string        `json:"review_reasoning"`
		Iterations        int           `json:"iterations"`
	}{
		IsJSON:            r.WasStructured,
		IsString:          !r.WasStructured,
		OriginalInput:     r.Input,
		TargetLanguage:    r.Language.Code,
		LanguageName:      r.Language.Name,
		FinalTranslation:  r.FinalTranslation,
		TranslationRating: r.FinalRating,
		ReviewDecision:    r.Decision,
		ReviewReasoning:   r.Reasoning,
		Iterations:        r.Iterations,
	})
}

// StageError wraps a failure inside one cycle state.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", strings.ToLower(string(e.Stage)), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
