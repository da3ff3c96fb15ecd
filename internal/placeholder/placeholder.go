// Package placeholder finds the tokens a translation must carry over
// verbatim: template variables, format verbs, HTML tags, URLs, email
// addresses, file paths and code spans. The Translator lists them in its
// prompt and the Reviewer is told which of them went missing.
package placeholder

import (
	"regexp"
	"strings"

	"github.com/appknox/ak-translator/internal/content"
)

// Order matters: earlier patterns claim their span first so a URL inside an
// HTML attribute is reported as part of the tag.
var patterns = []*regexp.Regexp{
	// fenced code blocks: ```...``` (non-greedy, may span lines)
	regexp.MustCompile("(?s)```.*?```"),
	// inline code spans: `...`
	regexp.MustCompile("`[^`\n]+`"),
	// template variables: {{name}}, {{ user.id }}, {name}, ${name}
	regexp.MustCompile(`\{\{\s*[^{}]+?\s*\}\}|\$\{[^{}]+\}|\{[A-Za-z_][A-Za-z0-9_.]*\}`),
	// printf-style verbs: %s, %d, %1$s, %.2f
	regexp.MustCompile(`%(?:\d+\$)?[-+#0]*\d*(?:\.\d+)?[sdfvqxXeEgGt]`),
	// HTML/XML tags: opening, closing, and self-closing
	regexp.MustCompile(`</?[A-Za-z][^<>]*>`),
	// URLs
	regexp.MustCompile(`\b(?:https?|ftp)://[^\s<>"']+[^\s<>"'.,;:!?)]`),
	// email addresses
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	// absolute unix-style file paths with at least two segments
	regexp.MustCompile(`(?:^|\s)(/[\w.-]+(?:/[\w.-]+)+)`),
}

// Detect returns the protected tokens in text in order of first appearance,
// without duplicates.
func Detect(text string) []string {
	type span struct{ start, end int }
	var (
		claimed []span
		found   []struct {
			pos   int
			token string
		}
	)
	overlaps := func(s, e int) bool {
		for _, c := range claimed {
			if s < c.end && e > c.start {
				return true
			}
		}
		return false
	}

	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			s, e := m[0], m[1]
			if len(m) >= 4 && m[2] >= 0 {
				s, e = m[2], m[3]
			}
			if overlaps(s, e) {
				continue
			}
			claimed = append(claimed, span{s, e})
			found = append(found, struct {
				pos   int
				token string
			}{s, text[s:e]})
		}
	}

	// insertion sort by position; token counts are small
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].pos < found[j-1].pos; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}

	seen := make(map[string]bool, len(found))
	var out []string
	for _, f := range found {
		if !seen[f.token] {
			seen[f.token] = true
			out = append(out, f.token)
		}
	}
	return out
}

// DetectValue runs Detect over every string leaf of v.
func DetectValue(v content.Value) []string {
	seen := make(map[string]bool)
	var out []string
	for _, leaf := range content.Leaves(v) {
		for _, tok := range Detect(leaf.Text) {
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	return out
}

// Missing lists the protected tokens of source that do not occur anywhere in
// translation.
func Missing(source, translation content.Value) []string {
	rendered := translation.Render()
	var missing []string
	for _, tok := range DetectValue(source) {
		if !strings.Contains(rendered, tok) && !strings.Contains(rendered, escapeJSON(tok)) {
			missing = append(missing, tok)
		}
	}
	return missing
}

// escapeJSON mirrors how a token appears inside a compact JSON rendering.
func escapeJSON(tok string) string {
	q := content.String(tok).Compact()
	return q[1 : len(q)-1]
}

// InstructionHint returns the prompt sentence that accompanies a token list.
func InstructionHint() string {
	return "Copy every protected token exactly as it appears; do not translate, reorder, or remove them."
}
