package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/appknox/ak-translator/internal/capability"
)

var classifyPrompt = capability.NewPrompt("classify", `You are a content analyst for a localization pipeline.
Decide whether the input below is plain text or a JSON document that fails strict parsing.

JSON validity rules:
{{.rules}}

Problems already detected by a syntax scan:
{{.detected_issues}}

Input:
<<<
{{.input_query}}
>>>

Classify the content as one of: sentence, paragraph, html, code_block, mixed, malformed_json.
Use malformed_json only when the author clearly intended a JSON object or array.
For malformed_json, list every violated rule as a short concrete issue.

{{.format_instructions}}`,
	"rules", "detected_issues", "input_query", capability.FormatInstructionsVar)

var repairPrompt = capability.NewPrompt("repair", `You repair broken JSON without changing its meaning.

Malformed JSON:
<<<
{{.malformed_json}}
>>>

Known issues:
{{.issues}}

Fix only the syntax. Keep every key, every value and the original key order.
Do not translate, add or remove any content.

{{.format_instructions}}`,
	"malformed_json", "issues", capability.FormatInstructionsVar)

var translatePrompt = capability.NewPrompt("translate", `You are a professional software localizer translating English product text into {{.target_language}}.

{{.content_hint}}

Protected tokens (copy exactly, never translate):
{{.protected_tokens}}
{{.token_hint}}

Glossary (always use these target terms):
{{.glossary}}
{{.feedback}}
Source:
<<<
{{.input_query}}
>>>

{{.format_instructions}}`,
	"target_language", "content_hint", "protected_tokens", "token_hint", "glossary", "feedback", "input_query", capability.FormatInstructionsVar)

var repairKeysPrompt = capability.NewPrompt("translate_keys", `You are a professional software localizer fixing specific entries of a {{.target_language}} translation.

A reviewer rejected the entries below. Each entry has its path, the English source and the current translation.
Retranslate only these entries, addressing the reviewer's issues.

Entries:
{{.segments}}

Reviewer issues:
{{.issues}}

Protected tokens (copy exactly, never translate):
{{.protected_tokens}}

Glossary (always use these target terms):
{{.glossary}}

{{.format_instructions}}`,
	"target_language", "segments", "issues", "protected_tokens", "glossary", capability.FormatInstructionsVar)

var reviewPrompt = capability.NewPrompt("review", `You are a senior {{.target_language}} localization reviewer.

{{.content_hint}}

English source:
<<<
{{.input_query}}
>>>

{{.target_language}} translation:
<<<
{{.current_translation}}
>>>

Protected tokens missing from the translation:
{{.missing_tokens}}

Check accuracy, fluency, terminology, tone, and that protected tokens, markup and structure are preserved.
Rate the translation from 1 (unusable) to 5 (publishable).
Answer APPROVE when it is publishable as is, otherwise REDO and list what must change.
For JSON documents put the paths of the entries that must be retranslated in defective_keys.

{{.format_instructions}}`,
	"target_language", "content_hint", "input_query", "current_translation", "missing_tokens", capability.FormatInstructionsVar)

var formatPrompt = capability.NewPrompt("format", `You finalize a {{.target_language}} translation for publication.

Original English text:
<<<
{{.input_query}}
>>>

Approved translation:
<<<
{{.current_translation}}
>>>

Match the layout of the original: line breaks, paragraph spacing, list markers, markup and leading or trailing punctuation.
Do not change the wording beyond what layout alignment needs. Rate the final translation from 1 to 5.

{{.format_instructions}}`,
	"target_language", "input_query", "current_translation", capability.FormatInstructionsVar)

const (
	structuredHint = "The source is a JSON document. Translate every string value; never translate, rename, add, remove or reorder keys; keep numbers, booleans and nulls unchanged."
	scalarHint     = "The source is plain text, possibly with HTML or code. Keep markup and code intact and translate only human-readable text."
)

func contentHint(structured bool) string {
	if structured {
		return structuredHint
	}
	return scalarHint
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- none"
	}
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(it)
	}
	return sb.String()
}

func glossaryList(terms map[string]string) string {
	if len(terms) == 0 {
		return "- none"
	}
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%q => %q", k, terms[k])
	}
	return bulletList(lines)
}
