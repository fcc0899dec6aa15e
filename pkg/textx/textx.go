// Package textx provides small text utilities used across the project.
package textx

import (
	"regexp"
	"strings"
)

var (
	inlineSpaceRe = regexp.MustCompile(`[ \t\f\v]+`)
	xmlTagRe      = regexp.MustCompile(`<[^>]*>`)
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CleanText sanitizes s, collapses runs of spaces within each line and drops
// consecutive blank lines. Whitespace-only input yields "".
func CleanText(s string) string {
	s = strings.ReplaceAll(SanitizeText(s), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpaceRe.ReplaceAllString(line, " "))
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// StripXMLTags replaces markup tags with spaces, keeping paragraph ends as newlines.
func StripXMLTags(s string) string {
	s = strings.ReplaceAll(s, "</w:p>", "\n")
	return xmlTagRe.ReplaceAllString(s, " ")
}

// Words returns the number of whitespace separated words in s.
func Words(s string) int {
	return len(strings.Fields(s))
}
