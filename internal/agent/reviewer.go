package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/capability"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/metrics"
	"github.com/appknox/ak-translator/internal/placeholder"
)

// ReasonMaxIterations is the reasoning of a review forced by the iteration cap.
const ReasonMaxIterations = "maximum iterations reached"

// LanguageCheck rejects a translation that is not written in lang.
type LanguageCheck interface {
	Check(translation content.Value, lang language.Language) error
}

// Reviewer judges a translation and decides whether it needs another pass.
type Reviewer struct {
	cap            capability.Capability
	check          LanguageCheck
	maxIterations  int
	reasoningLimit int
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// NewReviewer returns a Reviewer. check may be nil.
func NewReviewer(c capability.Capability, check LanguageCheck, maxIterations, reasoningLimit int, logger *zap.Logger, m *metrics.Metrics) *Reviewer {
	return &Reviewer{
		cap:            c,
		check:          check,
		maxIterations:  maxIterations,
		reasoningLimit: reasoningLimit,
		logger:         logging.OrNop(logger),
		metrics:        m,
	}
}

// Review returns the verdict on state. Once the iteration cap is reached it
// approves without consulting the model. A translation that fails the
// language check is sent back without a model call either.
func (r *Reviewer) Review(ctx context.Context, source content.Value, lang language.Language, state TranslationState) (ReviewState, error) {
	if state.Iteration >= r.maxIterations {
		r.logger.Debug("iteration cap reached, approving",
			zap.String("language", lang.Code),
			zap.Int("iteration", state.Iteration))
		r.metrics.ReviewDecision("FORCED")
		return ReviewState{Decision: DecisionApprove, Reasoning: ReasonMaxIterations}, nil
	}

	if r.check != nil {
		if err := r.check.Check(state.Translation, lang); err != nil {
			r.logger.Debug("language check failed",
				zap.String("language", lang.Code),
				zap.Int("iteration", state.Iteration),
				zap.Error(err))
			r.metrics.ReviewDecision(DecisionRedo.String())
			reason := err.Error()
			return ReviewState{
				Decision:  DecisionRedo,
				Issues:    []string{reason},
				Reasoning: truncateRunes(reason, r.reasoningLimit),
				Rating:    1,
			}, nil
		}
	}

	var res reviewResult
	err := r.cap.Invoke(ctx, reviewPrompt, map[string]any{
		"target_language":     lang.Name,
		"content_hint":        contentHint(source.IsStructured()),
		"input_query":         render(source),
		"current_translation": render(state.Translation),
		"missing_tokens":      bulletList(placeholder.Missing(source, state.Translation)),
	}, &res)
	if err != nil {
		return ReviewState{}, fmt.Errorf("failed to review %s translation: %w", lang.Code, err)
	}

	decision := ParseDecision(res.Decision)
	if decision == DecisionEnd || decision == DecisionUnknown {
		r.logger.Warn("reviewer returned unexpected decision",
			zap.String("language", lang.Code),
			zap.String("decision", res.Decision))
	}
	r.metrics.ReviewDecision(decision.String())

	return ReviewState{
		Decision:  decision,
		Issues:    dedupe(append(append([]string(nil), res.DefectiveKeys...), res.Issues...)),
		Reasoning: truncateRunes(strings.TrimSpace(res.Reasoning), r.reasoningLimit),
		Rating:    res.Rating,
	}, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

type reviewResult struct {
	Decision      string   `json:"decision"`
	DefectiveKeys []string `json:"defective_keys"`
	Issues        []string `json:"issues"`
	Reasoning     string   `json:"reasoning"`
	Rating        int      `json:"rating"`
}

func (r *reviewResult) Format() string {
	return `Respond with only this JSON object:
{
  "decision": "APPROVE" or "REDO",
  "defective_keys": ["<path of an entry to retranslate>", ...],
  "issues": ["<concrete problem>", ...],
  "reasoning": "<at most 100 characters>",
  "rating": <integer 1-5>
}`
}

func (r *reviewResult) Validate() error {
	if strings.TrimSpace(r.Decision) == "" {
		return fmt.Errorf("decision is required")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("rating %d out of range 1-5", r.Rating)
	}
	return nil
}
