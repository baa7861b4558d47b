// Package spokennum turns speech recognizer transcripts and typed text into
// integers and decides whether a recognized value should count as the
// expected answer despite known recognition errors.
//
// Every function in the package is pure and safe for concurrent use. Input
// that carries no usable number is reported through the zero [Number], never
// through an error.
package spokennum

import (
	"strings"
	"unicode"
)

// Normalize lower-cases raw, turns every rune that is not a letter, number
// or space into a word separator, collapses whitespace and trims the result.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return ' '
	}, strings.ToLower(raw))
	return strings.Join(strings.Fields(mapped), " ")
}
