// Package language holds the set of target languages a deployment serves.
package language

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrUnsupported is returned for a language outside the configured set.
var ErrUnsupported = errors.New("unsupported language")

// DefaultCodes are Japanese, Latin American Spanish, Vietnamese and Indonesian.
var DefaultCodes = []string{"ja", "es-419", "vi", "id"}

// Language is one target language.
type Language struct {
	Code string // canonical BCP 47 tag, used as the key in results
	Name string // English display name, used in prompts
}

func (l Language) String() string { return l.Code }

// Base is the ISO 639 base language of the tag, "es" for es-419.
func (l Language) Base() string {
	b, _ := language.Make(l.Code).Base()
	return b.String()
}

// Set is an ordered, immutable list of supported languages.
type Set struct {
	langs []Language
	index map[string]int
}

// NewSet parses codes as BCP 47 tags. Duplicates are dropped.
func NewSet(codes []string) (*Set, error) {
	if len(codes) == 0 {
		return nil, errors.New("no languages configured")
	}
	s := &Set{index: make(map[string]int, len(codes))}
	namer := display.English.Tags()
	for _, code := range codes {
		tag, err := language.Parse(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("invalid language %q: %w", code, err)
		}
		canonical := tag.String()
		if _, dup := s.index[canonical]; dup {
			continue
		}
		name := namer.Name(tag)
		if name == "" {
			name = canonical
		}
		s.index[canonical] = len(s.langs)
		s.langs = append(s.langs, Language{Code: canonical, Name: name})
	}
	return s, nil
}

// All returns the languages in configured order.
func (s *Set) All() []Language {
	return append([]Language(nil), s.langs...)
}

func (s *Set) Len() int { return len(s.langs) }

// Lookup resolves a code or English display name ("es-419", "ES_419",
// "Japanese") to a configured language.
func (s *Set) Lookup(name string) (Language, error) {
	name = strings.TrimSpace(name)
	if tag, err := language.Parse(strings.ReplaceAll(name, "_", "-")); err == nil {
		if i, ok := s.index[tag.String()]; ok {
			return s.langs[i], nil
		}
	}
	for _, l := range s.langs {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	return Language{}, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

// Resolve looks up each name. An empty list selects the whole set.
func (s *Set) Resolve(names []string) ([]Language, error) {
	if len(names) == 0 {
		return s.All(), nil
	}
	out := make([]Language, 0, len(names))
	for _, n := range names {
		l, err := s.Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
