// Package ai provides helpers for turning raw model output into JSON objects.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceRe         = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// ResponseCleaner repairs common defects of model-produced JSON.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// StripCodeFences returns the body of the first Markdown code fence, or the
// trimmed input when there is none.
func (rc *ResponseCleaner) StripCodeFences(response string) string {
	response = strings.TrimSpace(response)
	if m := fenceRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	// unterminated fence
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
	}
	return strings.TrimSpace(response)
}

// ExtractBalancedObject returns the first brace-balanced {...} substring,
// ignoring braces inside string literals. ok is false when none exists.
func (rc *ResponseCleaner) ExtractBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseObject decodes response into a JSON object. It tries, in order: the
// fence-stripped text, the first balanced object, and that object with
// trailing commas removed.
func (rc *ResponseCleaner) ParseObject(response string) (map[string]any, bool) {
	body := rc.StripCodeFences(response)
	if obj, ok := decodeObject(body); ok {
		return obj, true
	}
	candidate, ok := rc.ExtractBalancedObject(body)
	if !ok {
		return nil, false
	}
	if obj, ok := decodeObject(candidate); ok {
		return obj, true
	}
	return decodeObject(trailingCommaRe.ReplaceAllString(candidate, "$1"))
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
