// Package detector identifies which of a fixed set of languages a text is
// written in.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// SourceCode is always a candidate, so untranslated text is recognised.
const SourceCode = "en"

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector restricted to the given ISO 639-1 codes plus
// English. Codes lingua does not know are ignored; when fewer than two
// candidates remain every language is considered.
func New(codes ...string) *Detector {
	want := map[string]bool{SourceCode: true}
	for _, c := range codes {
		want[strings.ToLower(c)] = true
	}

	var langs []lingua.Language
	for _, l := range lingua.AllLanguages() {
		if want[strings.ToLower(l.IsoCode639_1().String())] {
			langs = append(langs, l)
		}
	}

	builder := lingua.NewLanguageDetectorBuilder()
	if len(langs) < 2 {
		return &Detector{detector: builder.FromAllLanguages().Build()}
	}
	return &Detector{detector: builder.FromLanguages(langs...).Build()}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text's language.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}
