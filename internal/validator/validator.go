// Package validator checks that a translation is written in its target
// language.
package validator

import (
	"fmt"
	"strings"

	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/detector"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/placeholder"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// MismatchError reports a translation that reads as another language.
type MismatchError struct {
	Language language.Language
	Detected string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("translation is not in %s (detected %s)", e.Language.Name, e.Detected)
}

// Validator checks translations against their target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator that can tell langs and English apart.
func New(langs []language.Language) *Validator {
	codes := make([]string, len(langs))
	for i, l := range langs {
		codes[i] = l.Base()
	}
	return &Validator{det: detector.New(codes...)}
}

// Check returns a *MismatchError when translation reads as a language other
// than lang. Placeholders, tags and URLs are ignored. Short texts and texts
// whose language cannot be determined pass.
func (v *Validator) Check(translation content.Value, lang language.Language) error {
	text := sample(translation)
	if len([]rune(text)) < minValidationLength {
		return nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return nil
	}
	if !strings.EqualFold(detected, lang.Base()) {
		return &MismatchError{Language: lang, Detected: detected}
	}
	return nil
}

// sample joins the string leaves of v with protected tokens blanked out.
func sample(v content.Value) string {
	leaves := content.Leaves(v)
	parts := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		text := leaf.Text
		for _, tok := range placeholder.Detect(text) {
			text = strings.ReplaceAll(text, tok, " ")
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}
