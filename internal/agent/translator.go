package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/capability"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/placeholder"
	"github.com/appknox/ak-translator/internal/postprocess"
)

// Glossary supplies fixed source -> target terms for a target language.
type Glossary interface {
	Terms(ctx context.Context, targetLang string) (map[string]string, error)
}

// Translator produces a translation, or repairs a rejected one.
type Translator struct {
	cap           capability.Capability
	glossary      Glossary
	maxIterations int
	logger        *zap.Logger
}

func NewTranslator(c capability.Capability, glossary Glossary, maxIterations int, logger *zap.Logger) *Translator {
	return &Translator{cap: c, glossary: glossary, maxIterations: maxIterations, logger: logging.OrNop(logger)}
}

// TranslateInput is one translator call. Prior and Issues are set when a
// reviewer asked for a redo.
type TranslateInput struct {
	Source    content.Value
	Language  language.Language
	Prior     *content.Value
	Issues    []string
	Iteration int
}

// Translate runs one translate pass. When the prior translation is a
// document and the issues name some of its paths, only those leaves are
// regenerated and everything else is kept byte for byte.
func (t *Translator) Translate(ctx context.Context, in TranslateInput) (TranslationState, error) {
	terms := t.terms(ctx, in.Language)
	tokens := placeholder.DetectValue(in.Source)

	if in.Prior != nil && len(in.Issues) > 0 {
		if in.Prior.IsStructured() {
			if paths, notes := resolveIssues(*in.Prior, in.Issues); len(paths) > 0 {
				return t.repairKeys(ctx, in, paths, notes, tokens, terms)
			}
		}
		return t.translate(ctx, in, redoFeedback(*in.Prior, in.Issues), tokens, terms)
	}
	return t.translate(ctx, in, "", tokens, terms)
}

func (t *Translator) translate(ctx context.Context, in TranslateInput, feedback string, tokens []string, terms map[string]string) (TranslationState, error) {
	res := translationResult{source: in.Source}
	err := t.cap.Invoke(ctx, translatePrompt, map[string]any{
		"target_language":  in.Language.Name,
		"content_hint":     contentHint(in.Source.IsStructured()),
		"protected_tokens": bulletList(tokens),
		"token_hint":       placeholder.InstructionHint(),
		"glossary":         glossaryList(terms),
		"feedback":         feedback,
		"input_query":      render(in.Source),
	}, &res)
	if err != nil {
		return TranslationState{}, fmt.Errorf("failed to translate to %s: %w", in.Language.Code, err)
	}

	translation := res.Translation
	if s, ok := translation.Text(); ok {
		translation = content.String(postprocess.CleanTranslation(in.Source.Render(), s))
	}
	return TranslationState{
		Translation: translation,
		Iteration:   nextIteration(in.Iteration, res.Iteration, t.maxIterations),
	}, nil
}

type segment struct {
	Path    string `json:"path"`
	Source  string `json:"source"`
	Current string `json:"current"`
}

func (t *Translator) repairKeys(ctx context.Context, in TranslateInput, paths, notes []string, tokens []string, terms map[string]string) (TranslationState, error) {
	sources := content.Extract(in.Source)
	current := content.Extract(*in.Prior)

	segments := make([]segment, len(paths))
	requested := make(map[string]bool, len(paths))
	for i, p := range paths {
		segments[i] = segment{Path: p, Source: sources[p], Current: current[p]}
		requested[p] = true
	}
	encoded, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return TranslationState{}, fmt.Errorf("failed to encode segments: %w", err)
	}

	issues := append(append([]string(nil), paths...), notes...)
	res := keyRepairResult{requested: requested}
	err = t.cap.Invoke(ctx, repairKeysPrompt, map[string]any{
		"target_language":  in.Language.Name,
		"segments":         string(encoded),
		"issues":           bulletList(issues),
		"protected_tokens": bulletList(tokens),
		"glossary":         glossaryList(terms),
	}, &res)
	if err != nil {
		return TranslationState{}, fmt.Errorf("failed to repair %d entries for %s: %w", len(paths), in.Language.Code, err)
	}

	t.logger.Debug("repaired defective entries",
		zap.String("language", in.Language.Code),
		zap.Int("requested", len(paths)),
		zap.Int("returned", len(res.Fixed)))
	return TranslationState{
		Translation: content.Rebuild(*in.Prior, res.Fixed),
		Iteration:   nextIteration(in.Iteration, res.Iteration, t.maxIterations),
	}, nil
}

func (t *Translator) terms(ctx context.Context, lang language.Language) map[string]string {
	if t.glossary == nil {
		return nil
	}
	terms, err := t.glossary.Terms(ctx, lang.Code)
	if err != nil {
		t.logger.Warn("glossary lookup failed", zap.String("language", lang.Code), zap.Error(err))
		return nil
	}
	return terms
}

// nextIteration advances past both the caller's counter and any counter the
// model echoed, capped at limit so the reviewer bound always holds.
func nextIteration(caller int, echoed *int, limit int) int {
	base := caller
	if echoed != nil && *echoed > base {
		base = *echoed
	}
	next := base + 1
	if limit > 0 && next > limit {
		next = limit
	}
	return next
}

// resolveIssues splits reviewer issues into leaf paths of doc and free-text
// notes. An issue naming an inner path (a top-level key, say) selects every
// leaf beneath it. Forms like "$.a.b", "`a.b`" and "a.b: wrong tone" are
// accepted.
func resolveIssues(doc content.Value, issues []string) (paths, notes []string) {
	leaves := content.Paths(doc)
	selected := make(map[string]bool)
	for _, issue := range issues {
		matched := false
		for _, candidate := range issueCandidates(issue) {
			for _, leaf := range leaves {
				if content.HasPathPrefix(leaf, candidate) {
					selected[leaf] = true
					matched = true
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			notes = append(notes, issue)
		}
	}
	for _, leaf := range leaves {
		if selected[leaf] {
			paths = append(paths, leaf)
		}
	}
	return paths, notes
}

func issueCandidates(issue string) []string {
	clean := func(s string) string {
		s = strings.TrimSpace(s)
		s = strings.Trim(s, "`'\"")
		s = strings.TrimPrefix(s, "$.")
		return strings.TrimSpace(s)
	}
	var out []string
	if c := clean(issue); c != "" {
		out = append(out, c)
	}
	if i := strings.Index(issue, ":"); i > 0 {
		if c := clean(issue[:i]); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func redoFeedback(prior content.Value, issues []string) string {
	return fmt.Sprintf(`
A reviewer rejected the previous translation. Produce a corrected translation of the whole source.
Previous translation:
<<<
%s
>>>
Issues to fix:
%s
`, render(prior), bulletList(issues))
}

// render shows documents indented and text verbatim.
func render(v content.Value) string {
	if v.IsStructured() {
		return v.Pretty()
	}
	return v.Render()
}

type translationResult struct {
	Translation content.Value `json:"current_translation"`
	Iteration   *int          `json:"iteration,omitempty"`

	source content.Value
}

func (r *translationResult) Reset() {
	r.Translation = content.Value{}
	r.Iteration = nil
}

func (r *translationResult) Format() string {
	if r.source.Kind() == content.KindArray {
		return `Respond with only this JSON object:
{
  "current_translation": [ ...the translated array, same length and order... ],
  "iteration": <integer>
}`
	}
	if r.source.IsStructured() {
		return `Respond with only this JSON object:
{
  "current_translation": { ...the translated document, identical keys in identical order... },
  "iteration": <integer>
}`
	}
	return `Respond with only this JSON object:
{
  "current_translation": "<the translated text>",
  "iteration": <integer>
}`
}

var errEmptyTranslation = errors.New("current_translation is empty")

func (r *translationResult) Validate() error {
	if r.source.IsStructured() {
		if s, ok := r.Translation.Text(); ok {
			doc, err := content.ParseStructured(s)
			if err != nil {
				return fmt.Errorf("current_translation must be a JSON %s: %w", r.source.Kind(), err)
			}
			r.Translation = doc
		}
		if r.Translation.Kind() != r.source.Kind() {
			return fmt.Errorf("current_translation must be a JSON %s, got %s", r.source.Kind(), r.Translation.Kind())
		}
		if missing, extra := pathDrift(r.source, r.Translation); len(missing) > 0 || len(extra) > 0 {
			return fmt.Errorf("current_translation must keep the source structure: missing %v, unexpected %v", missing, extra)
		}
		// key order and non-text values always come from the source
		r.Translation = content.Rebuild(r.source, content.Extract(r.Translation))
		return nil
	}

	s, ok := r.Translation.Text()
	if !ok {
		return fmt.Errorf("current_translation must be a string, got %s", r.Translation.Kind())
	}
	if strings.TrimSpace(s) == "" && strings.TrimSpace(r.source.Render()) != "" {
		return errEmptyTranslation
	}
	return nil
}

// pathDrift lists the text leaves of source absent from translation and the
// leaves of translation absent from source.
func pathDrift(source, translation content.Value) (missing, extra []string) {
	got := make(map[string]bool)
	for _, p := range content.Paths(translation) {
		got[p] = true
	}
	for _, p := range content.Paths(source) {
		if !got[p] {
			missing = append(missing, p)
		}
		delete(got, p)
	}
	for _, p := range content.Paths(translation) {
		if got[p] {
			extra = append(extra, p)
			delete(got, p)
		}
	}
	return missing, extra
}

type keyRepairResult struct {
	Fixed     map[string]string `json:"fixed"`
	Iteration *int              `json:"iteration,omitempty"`

	requested map[string]bool
}

func (r *keyRepairResult) Reset() {
	r.Fixed = nil
	r.Iteration = nil
}

func (r *keyRepairResult) Format() string {
	return `Respond with only this JSON object, keyed by the entry paths exactly as given:
{
  "fixed": { "<path>": "<corrected translation>", ... },
  "iteration": <integer>
}`
}

func (r *keyRepairResult) Validate() error {
	for p := range r.Fixed {
		if !r.requested[p] {
			delete(r.Fixed, p)
		}
	}
	if len(r.Fixed) == 0 {
		return errors.New("fixed contains none of the requested paths")
	}
	return nil
}
