package content

import (
	"errors"
	"reflect"
	"testing"
)

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	v, err := Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestParse_PreservesKeyOrder(t *testing.T) {
	v := mustParse(t, `{"zeta":1,"alpha":{"b":"x","a":"y"},"mid":[true,null,"s"]}`)

	if got := v.Keys(); !reflect.DeepEqual(got, []string{"zeta", "alpha", "mid"}) {
		t.Errorf("expected key order preserved, got %v", got)
	}
	want := `{"zeta":1,"alpha":{"b":"x","a":"y"},"mid":[true,null,"s"]}`
	if got := v.Compact(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestParse_KeepsMarkupUnescaped(t *testing.T) {
	v := mustParse(t, `{"html":"<b>Hello</b> & bye"}`)
	want := `{"html":"<b>Hello</b> & bye"}`
	if got := v.Compact(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"trailing comma", `{"a":1,}`},
		{"single quotes", `{'a':1}`},
		{"unclosed", `{"a":1`},
		{"trailing text", `{"a":1} extra`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
		})
	}
}

func TestParseStructured_RejectsScalars(t *testing.T) {
	if _, err := ParseStructured(`"just a string"`); err == nil {
		t.Error("expected error for top-level string")
	}
	if _, err := ParseStructured(`[1,2]`); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLooksStructured(t *testing.T) {
	tests := map[string]bool{
		`{"a":1}`:    true,
		"  [1, 2":    true,
		"hello":      false,
		"":           false,
		`"{quoted}"`: false,
	}
	for input, want := range tests {
		if got := LooksStructured(input); got != want {
			t.Errorf("LooksStructured(%q): expected %v, got %v", input, want, got)
		}
	}
}

func TestLint(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"trailing comma", `{"a": 1, }`, []string{IssueTrailingComma}},
		{"single quoted", `{'a': 'b'}`, []string{IssueSingleQuote}},
		{"unquoted key", `{a: "b"}`, []string{IssueUnquotedKey}},
		{"unclosed", `{"a": [1, 2}`, []string{IssueUnbalanced}},
		{"comment", "{\"a\": 1 // note\n}", []string{IssueComment}},
		{"block comment", `{"a": /* x */ 1}`, []string{IssueComment}},
		{"undefined", `{"a": undefined}`, []string{IssueUndefined}},
		{"outside text", `prefix {"a": 1}`, []string{IssueOutsideText}},
		{"several", `{a: 'b',}`, []string{IssueUnquotedKey, IssueSingleQuote, IssueTrailingComma}},
		{"clean", `{"a": "b, }"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Lint(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLeaves_DocumentOrder(t *testing.T) {
	v := mustParse(t, `{"title":"Hi","n":3,"items":["a",{"label":"b"}],"nested":{"x":"y"}}`)

	got := Leaves(v)
	want := []Leaf{
		{Path: "title", Text: "Hi"},
		{Path: "items[0]", Text: "a"},
		{Path: "items[1].label", Text: "b"},
		{Path: "nested.x", Text: "y"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestExtract_EscapesKeys(t *testing.T) {
	v := mustParse(t, `{"a.b":"dotted","a":{"b":"nested"}}`)

	got := Extract(v)
	if len(got) != 2 {
		t.Fatalf("expected 2 distinct paths, got %v", got)
	}
	if got[`a\.b`] != "dotted" || got["a.b"] != "nested" {
		t.Errorf("unexpected paths: %v", got)
	}
}

func TestRebuild_RoundTrip(t *testing.T) {
	docs := []string{
		`{"a":"x","b":{"c":"y","d":[1,"z",false]},"e":null}`,
		`["one",["two"],{"k":"three"}]`,
		`{"empty":{},"list":[]}`,
		`"top level"`,
	}
	for _, doc := range docs {
		v := mustParse(t, doc)
		if got := Rebuild(v, Extract(v)); !Equal(got, v) {
			t.Errorf("round trip changed %s into %s", doc, got.Compact())
		}
	}
}

func TestRebuild_PartialAndUnknownPaths(t *testing.T) {
	v := mustParse(t, `{"a":"x","b":{"c":"y"},"n":1}`)

	got := Rebuild(v, map[string]string{"b.c": "Y", "missing.path": "ignored", "n": "not a string"})

	want := `{"a":"x","b":{"c":"Y"},"n":1}`
	if got.Compact() != want {
		t.Errorf("expected %s, got %s", want, got.Compact())
	}
	if v.Compact() != `{"a":"x","b":{"c":"y"},"n":1}` {
		t.Errorf("input was modified: %s", v.Compact())
	}
}

func TestHasPathPrefix(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"a", "a", true},
		{"a.b", "a", true},
		{"a[0]", "a", true},
		{"ab", "a", false},
		{`a\.b`, "a", false},
		{"a", "", false},
	}
	for _, tt := range tests {
		if got := HasPathPrefix(tt.path, tt.prefix); got != tt.want {
			t.Errorf("HasPathPrefix(%q, %q): expected %v, got %v", tt.path, tt.prefix, tt.want, got)
		}
	}
}

func TestObject_DuplicateKeys(t *testing.T) {
	v := Object(Field{"a", String("1")}, Field{"b", String("2")}, Field{"a", String("3")})
	if v.Compact() != `{"a":"3","b":"2"}` {
		t.Errorf("unexpected object %s", v.Compact())
	}
}

func TestValue_Pretty(t *testing.T) {
	v := mustParse(t, `{"b":1,"a":[2]}`)
	want := "{\n  \"b\": 1,\n  \"a\": [\n    2\n  ]\n}"
	if got := v.Pretty(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
