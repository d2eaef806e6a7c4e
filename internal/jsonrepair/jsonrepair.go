// Package jsonrepair coerces free-form model output into a JSON object.
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoObject is returned when no JSON object can be recovered from the text.
var ErrNoObject = eris.New("jsonrepair: no JSON object found")

var (
	leadingFence  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	trailingFence = regexp.MustCompile("```\\s*$")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// Parse recovers the first JSON object in text. It strips code fences, then
// tries a direct parse, then each brace-balanced substring in order of its
// opening brace. Every attempt is retried with trailing commas removed before
// moving on, so an outer object with a stray comma wins over its nested
// objects. It returns ErrNoObject when every step fails.
func Parse(text string) (map[string]any, error) {
	s := StripFences(text)
	if s == "" {
		return nil, ErrNoObject
	}

	if obj, ok := decodeRepaired(s); ok {
		return obj, nil
	}
	for _, c := range Candidates(s) {
		if obj, ok := decodeRepaired(c); ok {
			return obj, nil
		}
	}
	return nil, ErrNoObject
}

// decodeRepaired decodes s, falling back to s without trailing commas.
func decodeRepaired(s string) (map[string]any, bool) {
	if obj, ok := decodeObject(s); ok {
		return obj, true
	}
	if fixed := trailingComma.ReplaceAllString(s, "$1"); fixed != s {
		return decodeObject(fixed)
	}
	return nil, false
}

// StripFences trims whitespace and a surrounding markdown code fence.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Candidates returns every brace-balanced substring of s, ordered by the
// position of its opening brace. Braces inside JSON strings are ignored.
func Candidates(s string) []string {
	var out []string
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > start {
			out = append(out, s[start:end+1])
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return out
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
