package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/capability"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/logging"
)

// Classifier decides whether an input is plain text, a JSON document, or
// text that looks like JSON but fails strict parsing. Clear cases are decided
// locally; only the ambiguous ones reach the model.
type Classifier struct {
	cap    capability.Capability
	logger *zap.Logger
}

func NewClassifier(c capability.Capability, logger *zap.Logger) *Classifier {
	return &Classifier{cap: c, logger: logging.OrNop(logger)}
}

// Classify assesses input. For a well-formed JSON string it also returns the
// parsed document; otherwise the returned value is input itself.
func (c *Classifier) Classify(ctx context.Context, input content.Value) (Assessment, content.Value, error) {
	if input.IsStructured() {
		return Assessment{ContentType: ContentJSON, Summary: structuredSummary(input)}, input, nil
	}

	text := input.Render()
	if !content.LooksStructured(text) {
		return Assessment{ContentType: ContentString}, input, nil
	}
	if doc, err := content.ParseStructured(strings.TrimSpace(text)); err == nil {
		return Assessment{ContentType: ContentJSON, Summary: structuredSummary(doc)}, doc, nil
	}

	detected := content.Lint(text)
	c.logger.Debug("input looks structured but fails strict parsing", zap.Strings("detected", detected))

	var res assessmentResult
	err := c.cap.Invoke(ctx, classifyPrompt, map[string]any{
		"rules":           bulletList(content.ValidityRules),
		"detected_issues": bulletList(detected),
		"input_query":     text,
	}, &res)
	if err != nil {
		return Assessment{}, input, fmt.Errorf("failed to classify input: %w", err)
	}

	if !res.malformed() {
		return Assessment{ContentType: ContentString, Summary: res.Summary}, input, nil
	}
	issues := dedupe(res.Issues)
	if len(issues) == 0 {
		issues = detected
	}
	return Assessment{ContentType: ContentMalformedJSON, Issues: issues, Summary: res.Summary}, input, nil
}

func structuredSummary(v content.Value) string {
	if v.Kind() == content.KindObject {
		return fmt.Sprintf("JSON object with %d keys", v.Len())
	}
	return fmt.Sprintf("JSON array with %d items", v.Len())
}

var contentKinds = map[string]bool{
	"sentence": true, "paragraph": true, "html": true,
	"code_block": true, "mixed": true, "malformed_json": true,
}

type assessmentResult struct {
	ContentType     string   `json:"content_type"`
	IsMalformedJSON bool     `json:"is_malformed_json"`
	Issues          []string `json:"malformed_json_issues"`
	Summary         string   `json:"content_summary"`
}

func (r *assessmentResult) malformed() bool {
	return r.IsMalformedJSON || r.ContentType == "malformed_json"
}

func (r *assessmentResult) Format() string {
	return `Respond with only this JSON object:
{
  "content_type": "sentence | paragraph | html | code_block | mixed | malformed_json",
  "is_malformed_json": true or false,
  "malformed_json_issues": ["<one violated rule per entry>"],
  "content_summary": "<one short sentence>"
}`
}

func (r *assessmentResult) Validate() error {
	r.ContentType = strings.ToLower(strings.TrimSpace(r.ContentType))
	if !contentKinds[r.ContentType] {
		return fmt.Errorf("content_type %q is not one of sentence, paragraph, html, code_block, mixed, malformed_json", r.ContentType)
	}
	return nil
}

// dedupe drops blanks and repeats while keeping order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
