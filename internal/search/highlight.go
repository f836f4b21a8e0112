package search

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	highlightOpen  = "<mark>"
	highlightClose = "</mark>"
)

// normalize trims and lower-cases text. strings.ToLower folds the full Unicode
// range, not only ASCII.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// tokenize splits a normalized query on whitespace runs and keeps tokens
// longer than one character.
func tokenize(query string) []string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Highlight wraps case-insensitive occurrences of each token in text with
// <mark> tags. Tokens are applied one after another, so overlapping tokens
// can mark the same span more than once; spans are not merged.
func Highlight(text string, tokens []string) string {
	highlighted := text
	for _, token := range tokens {
		if utf8.RuneCountInString(token) <= 1 {
			continue
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(token))
		if err != nil {
			continue
		}
		highlighted = re.ReplaceAllStringFunc(highlighted, func(m string) string {
			return highlightOpen + m + highlightClose
		})
	}
	return highlighted
}
