package content

import (
	"strconv"
	"strings"
)

// Leaf is one translatable string inside a document, addressed by its path.
//
// Paths join object keys with "." and address array elements as "[i]", so
// {"a":{"b":["x"]}} has the single leaf "a.b[0]". Literal ".", "[", "]" and
// "\" inside keys are escaped with a backslash so distinct leaves never
// share a path. A top-level string has the empty path.
type Leaf struct {
	Path string
	Text string
}

// Leaves returns every string leaf of v in document order. Numbers, bools
// and nulls are not translatable and are skipped.
func Leaves(v Value) []Leaf {
	var out []Leaf
	walk(v, "", func(path string, leaf Value) {
		if s, ok := leaf.Text(); ok {
			out = append(out, Leaf{Path: path, Text: s})
		}
	})
	return out
}

// Extract returns the path -> text mapping of every string leaf in v.
func Extract(v Value) map[string]string {
	leaves := Leaves(v)
	out := make(map[string]string, len(leaves))
	for _, l := range leaves {
		out[l.Path] = l.Text
	}
	return out
}

// Paths lists the leaf paths of v in document order.
func Paths(v Value) []string {
	leaves := Leaves(v)
	out := make([]string, len(leaves))
	for i, l := range leaves {
		out[i] = l.Path
	}
	return out
}

// Rebuild returns a copy of v in which each string leaf whose path appears in
// texts is replaced by the mapped text. Leaves missing from texts keep their
// original value and paths in texts that do not exist in v are ignored.
// Container shape and key order are never changed and v is not modified.
func Rebuild(v Value, texts map[string]string) Value {
	return rebuild(v, "", texts)
}

func rebuild(v Value, path string, texts map[string]string) Value {
	switch v.kind {
	case KindString:
		if t, ok := texts[path]; ok {
			return String(t)
		}
		return v
	case KindObject:
		out := Value{kind: KindObject, keys: v.Keys(), props: make(map[string]Value, len(v.keys))}
		for _, k := range v.keys {
			out.props[k] = rebuild(v.props[k], joinKey(path, k), texts)
		}
		return out
	case KindArray:
		out := Value{kind: KindArray, items: make([]Value, len(v.items))}
		for i, item := range v.items {
			out.items[i] = rebuild(item, joinIndex(path, i), texts)
		}
		return out
	}
	return v
}

func walk(v Value, path string, fn func(string, Value)) {
	switch v.kind {
	case KindObject:
		for _, k := range v.keys {
			walk(v.props[k], joinKey(path, k), fn)
		}
	case KindArray:
		for i, item := range v.items {
			walk(item, joinIndex(path, i), fn)
		}
	default:
		fn(path, v)
	}
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`, `[`, `\[`, `]`, `\]`)

func joinKey(path, key string) string {
	key = keyEscaper.Replace(key)
	if path == "" {
		return key
	}
	return path + "." + key
}

func joinIndex(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

// KeyPath returns the path a top-level object key contributes as prefix.
func KeyPath(key string) string {
	return joinKey("", key)
}

// HasPathPrefix reports whether path p lies at or below prefix.
func HasPathPrefix(p, prefix string) bool {
	if p == prefix {
		return true
	}
	if prefix == "" || !strings.HasPrefix(p, prefix) {
		return false
	}
	next := p[len(prefix)]
	if next != '.' && next != '[' {
		return false
	}
	// an escaped separator belongs to the key, not the path
	backslashes := 0
	for i := len(prefix) - 1; i >= 0 && prefix[i] == '\\'; i-- {
		backslashes++
	}
	return backslashes%2 == 0
}
