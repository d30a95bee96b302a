// Package jsonextract pulls one JSON object out of free-form language model
// output.
//
// Models asked for "JSON only" routinely wrap the object in prose or markdown
// fences, use Python-style single quotes, or emit True/False/None. [Object]
// finds the first brace-balanced {...} span, normalises those quirks and
// returns text that is valid JSON, so callers never parse model output ad hoc.
package jsonextract

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoObject is returned when the input holds no parseable JSON object.
var ErrNoObject = errors.New("jsonextract: no JSON object found")

// Object returns the first JSON object embedded in s as valid JSON text.
func Object(s string) (string, error) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		span, ok := balanced(s[start:])
		if !ok {
			break
		}
		if out, ok := normalise(span); ok {
			return out, nil
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoObject
}

// Parse returns the first embedded object as a gjson result, which reads
// fields leniently ("5" and 5 are both Int() == 5).
func Parse(s string) (gjson.Result, error) {
	obj, err := Object(s)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.Parse(obj), nil
}

// balanced returns the prefix of s (which starts with '{') up to its matching
// closing brace. Braces inside single- or double-quoted strings are ignored.
func balanced(s string) (string, bool) {
	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// normalise turns span into valid JSON, rewriting single-quoted strings and
// Python literals when the span is not already valid.
func normalise(span string) (string, bool) {
	if gjson.Valid(span) {
		return span, true
	}
	fixed := rewriteQuirks(span)
	if gjson.Valid(fixed) {
		return fixed, true
	}
	return "", false
}

var pythonLiterals = map[string]string{"True": "true", "False": "false", "None": "null"}

// rewriteQuirks converts 'single quoted' strings to "double quoted" ones and
// bare True/False/None to their JSON spelling.
func rewriteQuirks(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote == '"':
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				quote = 0
			}

		case quote == '\'':
			switch {
			case c == '\\' && i+1 < len(s) && s[i+1] == '\'':
				i++
				b.WriteByte('\'')
			case c == '\\' && i+1 < len(s):
				b.WriteByte(c)
				i++
				b.WriteByte(s[i])
			case c == '"':
				b.WriteString(`\"`)
			case c == '\'':
				quote = 0
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}

		case c == '"':
			quote = '"'
			b.WriteByte(c)

		case c == '\'':
			quote = '\''
			b.WriteByte('"')

		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentStart(s[j]) {
				j++
			}
			word := s[i:j]
			if lit, ok := pythonLiterals[word]; ok {
				word = lit
			}
			b.WriteString(word)
			i = j - 1

		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
