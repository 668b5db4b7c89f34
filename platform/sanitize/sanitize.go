// Package sanitize cleans free text supplied by operators before it is
// stored or echoed into run history.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	entityReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
	)
)

// StripHTML removes HTML tags, including tags hidden behind entities.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Line strips HTML, collapses whitespace to single spaces and truncates to
// max runes (max <= 0 disables truncation).
func Line(s string, max int) string {
	result := whitespaceRegex.ReplaceAllString(StripHTML(s), " ")
	if max > 0 && utf8.RuneCountInString(result) > max {
		runes := []rune(result)
		result = strings.TrimSpace(string(runes[:max]))
	}
	return result
}

// TextPtr sanitizes an optional multi-line text. Empty results become nil.
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	result := StripHTML(*s)
	if result == "" {
		return nil
	}
	return &result
}
