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
	"github.com/appknox/ak-translator/internal/postprocess"
)

// Formatter aligns an approved scalar translation with the layout of the
// original. Documents are already final and pass through untouched.
type Formatter struct {
	cap    capability.Capability
	logger *zap.Logger
}

func NewFormatter(c capability.Capability, logger *zap.Logger) *Formatter {
	return &Formatter{cap: c, logger: logging.OrNop(logger)}
}

func (f *Formatter) Format(ctx context.Context, source content.Value, lang language.Language, state TranslationState, review ReviewState) (FormatState, error) {
	if state.Translation.IsStructured() {
		return FormatState{FinalTranslation: state.Translation, FinalRating: review.Rating}, nil
	}

	var res formatResult
	err := f.cap.Invoke(ctx, formatPrompt, map[string]any{
		"target_language":     lang.Name,
		"input_query":         source.Render(),
		"current_translation": state.Translation.Render(),
	}, &res)
	if err != nil {
		return FormatState{}, fmt.Errorf("failed to format %s translation: %w", lang.Code, err)
	}

	rating := res.Rating
	if rating == 0 {
		rating = review.Rating
	}
	return FormatState{
		FinalTranslation: content.String(postprocess.CleanTranslation(source.Render(), res.FinalTranslation)),
		FinalRating:      rating,
	}, nil
}

type formatResult struct {
	FinalTranslation string `json:"final_translation"`
	Rating           int    `json:"final_translation_rating"`
}

func (r *formatResult) Format() string {
	return `Respond with only this JSON object:
{
  "final_translation": "<the formatted translation>",
  "final_translation_rating": <integer 1-5>
}`
}

func (r *formatResult) Validate() error {
	if strings.TrimSpace(r.FinalTranslation) == "" {
		return fmt.Errorf("final_translation is empty")
	}
	if r.Rating < 0 || r.Rating > 5 {
		return fmt.Errorf("final_translation_rating %d out of range 1-5", r.Rating)
	}
	return nil
}
