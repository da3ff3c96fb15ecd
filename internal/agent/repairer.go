package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/capability"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/logging"
)

// Repairer turns malformed JSON into a strictly valid document with the same
// keys, values and order.
type Repairer struct {
	cap    capability.Capability
	logger *zap.Logger
}

func NewRepairer(c capability.Capability, logger *zap.Logger) *Repairer {
	return &Repairer{cap: c, logger: logging.OrNop(logger)}
}

func (r *Repairer) Repair(ctx context.Context, malformed string, issues []string) (content.Value, error) {
	var res repairResult
	err := r.cap.Invoke(ctx, repairPrompt, map[string]any{
		"malformed_json": malformed,
		"issues":         bulletList(issues),
	}, &res)
	if err != nil {
		return content.Value{}, fmt.Errorf("failed to repair JSON: %w", err)
	}
	r.logger.Debug("repaired malformed JSON", zap.Int("issues", len(issues)), zap.Int("top_level", res.Fixed.Len()))
	return res.Fixed, nil
}

type repairResult struct {
	Fixed content.Value `json:"fixed_json_content"`
}

func (r *repairResult) Format() string {
	return `Respond with only this JSON object, where the value is the repaired document itself (not a string):
{
  "fixed_json_content": { ...repaired JSON object or array... }
}`
}

func (r *repairResult) Validate() error {
	// models sometimes return the document as an escaped string
	if s, ok := r.Fixed.Text(); ok {
		doc, err := content.ParseStructured(s)
		if err != nil {
			return fmt.Errorf("fixed_json_content is a string that is not valid JSON: %w", err)
		}
		r.Fixed = doc
	}
	if !r.Fixed.IsStructured() {
		return fmt.Errorf("fixed_json_content must be a JSON object or array, got %s", r.Fixed.Kind())
	}
	return nil
}
