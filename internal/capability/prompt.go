package capability

import (
	"github.com/tmc/langchaingo/prompts"
)

// FormatInstructionsVar is bound by Invoke to the schema's Format text.
const FormatInstructionsVar = "format_instructions"

// Prompt is a named Go text/template rendered with a variable map. Variables
// are referenced as {{.name}}; missing variables are an error.
type Prompt struct {
	Name string
	tmpl prompts.PromptTemplate
}

func NewPrompt(name, template string, inputVars ...string) Prompt {
	return Prompt{Name: name, tmpl: prompts.NewPromptTemplate(template, inputVars)}
}

func (p Prompt) Render(vars map[string]any) (string, error) {
	return p.tmpl.Format(vars)
}

var feedbackPrompt = NewPrompt("feedback", `Your previous response was:
{{.previous}}

It was rejected: {{.error}}
Respond again with only a corrected JSON value that follows the format instructions above.`,
	"previous", "error")
