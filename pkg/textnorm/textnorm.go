// Package textnorm canonicalises recognizer output for phrase comparison.
package textnorm

import (
	"strings"
	"unicode"
)

// Normalize lowercases text, replaces every rune that is neither a letter,
// a digit nor whitespace with a space and collapses whitespace runs.
// Recognizer output such as "Открой браузер!" becomes "открой браузер".
func Normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}
