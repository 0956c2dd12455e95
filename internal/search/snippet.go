package search

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var wordPattern = regexp.MustCompile(`\w+`)

// makeSnippet returns a bounded fragment of text centred on the first
// query term it can find, falling back to a plain prefix. Used when the
// store did not return a highlight fragment for the modality.
func makeSnippet(text, query string, width int) string {
	if width <= 0 || len(text) <= width {
		if len(text) > width && width > 0 {
			return text[:runeBoundary(text, width)]
		}
		return text
	}

	var terms []string
	for _, t := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if len(t) > 2 {
			terms = append(terms, regexp.QuoteMeta(t))
		}
	}
	if len(terms) == 0 {
		return text[:runeBoundary(text, width)]
	}

	pattern, err := regexp.Compile(`(?i)\b(` + strings.Join(terms, "|") + `)\b`)
	if err != nil {
		return text[:runeBoundary(text, width)]
	}
	loc := pattern.FindStringIndex(text)
	if loc == nil {
		return text[:runeBoundary(text, width)]
	}

	start := loc[0] - width/2
	if start < 0 {
		start = 0
	}
	start = runeBoundary(text, start)
	end := start + width
	if end > len(text) {
		end = len(text)
		start = runeBoundary(text, end-width)
	}
	end = runeBoundary(text, end)
	return text[start:end]
}

// runeBoundary returns the largest rune boundary in s that is <= i.
// Slicing by byte offset must never split a multi-byte rune.
func runeBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
