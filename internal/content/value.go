// Package content models the documents that flow through the translation
// pipeline: plain strings, or JSON-like mappings and sequences whose key order
// must survive every round trip.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is a tagged union over the JSON data model. Objects keep their keys
// in insertion order. The zero Value is null.
type Value struct {
	kind  Kind
	text  string // string contents or number literal
	flag  bool
	keys  []string
	props map[string]Value
	items []Value
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, text: s} }

func Number(n json.Number) Value { return Value{kind: KindNumber, text: string(n)} }

func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Array returns a sequence holding items in order.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value{}, items...)}
}

// Field is one key/value pair of an object.
type Field struct {
	Key   string
	Value Value
}

// Object returns a mapping with fields in the given order. A repeated key
// keeps its first position and its last value.
func Object(fields ...Field) Value {
	v := Value{kind: KindObject, props: make(map[string]Value, len(fields))}
	for _, f := range fields {
		v.set(f.Key, f.Value)
	}
	return v
}

func (v *Value) set(key string, val Value) {
	if _, ok := v.props[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.props[key] = val
}

func (v Value) Kind() Kind { return v.kind }

// IsStructured reports whether v is an object or an array.
func (v Value) IsStructured() bool {
	return v.kind == KindObject || v.kind == KindArray
}

// Text returns the contents of a string value.
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.text, true
}

// Keys returns the object keys in order. The slice is a copy.
func (v Value) Keys() []string {
	return append([]string(nil), v.keys...)
}

func (v Value) Get(key string) (Value, bool) {
	val, ok := v.props[key]
	return val, ok
}

// Items returns the array elements. The slice is a copy.
func (v Value) Items() []Value {
	return append([]Value(nil), v.items...)
}

// Len is the number of object fields or array items, zero for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindObject:
		return len(v.keys)
	case KindArray:
		return len(v.items)
	}
	return 0
}

// Fields returns the object fields in order.
func (v Value) Fields() []Field {
	out := make([]Field, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, Field{Key: k, Value: v.props[k]})
	}
	return out
}

// Equal compares two values structurally, including object key order.
func Equal(a, b Value) bool {
	return a.Compact() == b.Compact()
}

// Compact returns the single-line JSON encoding of v. Strings are encoded
// without HTML escaping so markup survives unchanged.
func (v Value) Compact() string {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.String()
}

// Pretty returns v as indented JSON, used when embedding documents in prompts.
func (v Value) Pretty() string {
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(v.Compact()), "", "  "); err != nil {
		return v.Compact()
	}
	return out.String()
}

// Render returns the raw text of a string value and the compact JSON of
// anything else.
func (v Value) Render() string {
	if s, ok := v.Text(); ok {
		return s
	}
	return v.Compact()
}

func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(v.Compact()), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) encode(buf *bytes.Buffer) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		buf.WriteString(quote(v.text))
	case KindNumber:
		buf.WriteString(v.text)
	case KindBool:
		if v.flag {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(quote(k))
			buf.WriteByte(':')
			v.props[k].encode(buf)
		}
		buf.WriteByte('}')
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.encode(buf)
		}
		buf.WriteByte(']')
	}
}

func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
