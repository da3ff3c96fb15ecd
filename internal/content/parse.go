package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// ParseError reports input that is not strict JSON.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("invalid JSON at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("invalid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes strict JSON into a Value, keeping object key order.
func Parse(data []byte) (Value, error) {
	if err := json.Unmarshal(data, new(json.RawMessage)); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return Value{}, &ParseError{Offset: syn.Offset, Err: err}
		}
		return Value{}, &ParseError{Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, &ParseError{Offset: dec.InputOffset(), Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, &ParseError{Offset: dec.InputOffset(), Err: errors.New("unexpected data after top-level value")}
	}
	return v, nil
}

// ParseStructured parses s and requires an object or array at the top level.
func ParseStructured(s string) (Value, error) {
	v, err := Parse([]byte(s))
	if err != nil {
		return Value{}, err
	}
	if !v.IsStructured() {
		return Value{}, &ParseError{Err: fmt.Errorf("top-level %s is not an object or array", v.Kind())}
	}
	return v, nil
}

// LooksStructured reports whether text presents itself as a JSON object or
// array, whether or not it actually parses.
func LooksStructured(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return fromToken(dec, tok)
}

func fromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := Object()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return obj, nil
		case '[':
			arr := Array()
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr.items = append(arr.items, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return arr, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// ValidityRules is the fixed rule set used to describe why a document that
// looks like JSON fails strict parsing.
var ValidityRules = []string{
	"all braces and brackets must be balanced and properly nested",
	"object keys must be double-quoted strings",
	"strings must use double quotes",
	"no trailing commas before a closing brace or bracket",
	"no comments",
	"no text before or after the top-level value",
	"no undefined, NaN or Infinity values",
}

const (
	IssueUnbalanced    = "unbalanced or mismatched braces/brackets"
	IssueUnquotedKey   = "object key is not double-quoted"
	IssueSingleQuote   = "string uses single quotes"
	IssueTrailingComma = "trailing comma before closing brace or bracket"
	IssueComment       = "comment present"
	IssueOutsideText   = "text outside the top-level value"
	IssueUndefined     = "undefined, NaN or Infinity value"
	IssueBareWord      = "unquoted bare word value"
)

// Lint scans text that failed strict parsing and lists the violated rules in
// order of first occurrence. It is a heuristic and may return nothing for
// inputs whose only problem it does not recognise.
func Lint(text string) []string {
	var (
		issues []string
		seen   = map[string]bool{}
		stack  []rune
		inStr  bool
		esc    bool
		began  bool
		closed bool
	)
	add := func(issue string) {
		if !seen[issue] {
			seen[issue] = true
			issues = append(issues, issue)
		}
	}

	runes := []rune(text)
	nextSignificant := func(from int) rune {
		for j := from; j < len(runes); j++ {
			if !unicode.IsSpace(runes[j]) {
				return runes[j]
			}
		}
		return 0
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case r == '\\':
				esc = true
			case r == '"':
				inStr = false
			}
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		if closed || (!began && r != '{' && r != '[') {
			add(IssueOutsideText)
			continue
		}

		switch {
		case r == '"':
			inStr = true
		case r == '{' || r == '[':
			began = true
			stack = append(stack, r)
		case r == '}' || r == ']':
			want := '{'
			if r == ']' {
				want = '['
			}
			if len(stack) == 0 || stack[len(stack)-1] != want {
				add(IssueUnbalanced)
			} else {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				closed = true
			}
		case r == ',':
			if n := nextSignificant(i + 1); n == '}' || n == ']' {
				add(IssueTrailingComma)
			}
		case r == '\'':
			add(IssueSingleQuote)
			for i++; i < len(runes) && runes[i] != '\''; i++ {
			}
		case r == '/' && i+1 < len(runes) && (runes[i+1] == '/' || runes[i+1] == '*'):
			add(IssueComment)
			if runes[i+1] == '/' {
				for i < len(runes) && runes[i] != '\n' {
					i++
				}
			} else {
				for i += 2; i+1 < len(runes) && (runes[i] != '*' || runes[i+1] != '/'); i++ {
				}
				i++
			}
		case unicode.IsLetter(r) || r == '_' || r == '$':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '$') {
				j++
			}
			word := string(runes[i:j])
			switch {
			case word == "true" || word == "false" || word == "null":
			case word == "undefined" || word == "NaN" || word == "Infinity":
				add(IssueUndefined)
			case nextSignificant(j) == ':':
				add(IssueUnquotedKey)
			default:
				add(IssueBareWord)
			}
			i = j - 1
		}
	}
	if len(stack) > 0 || inStr {
		add(IssueUnbalanced)
	}
	return issues
}
