package spokennum

import (
	"cmp"
	"slices"
)

// Vocabulary returns the phrases a constrained speech recognizer should be
// limited to: the number words in ascending value order followed by the
// connectives, sign words, give-up phrases and the unknown-word marker.
// Homophone spellings such as "to" or "ate" are left out; "free" is kept
// because the recognizer produces it for "three" even when constrained.
func Vocabulary() []string {
	type entry struct {
		word  string
		value int
	}
	var numbers []entry
	for w, v := range onesWords {
		if _, alias := homophones[w]; alias {
			continue
		}
		numbers = append(numbers, entry{w, v})
	}
	for w, v := range tensWords {
		numbers = append(numbers, entry{w, v})
	}
	slices.SortFunc(numbers, func(a, b entry) int {
		return cmp.Compare(a.value, b.value)
	})

	out := make([]string, 0, len(numbers)+len(grammarExtras))
	for _, e := range numbers {
		out = append(out, e.word)
	}
	out = append(out, grammarExtras...)
	return out
}

// IsNumberWord reports whether word (already normalized) belongs to the
// number grammar, including connectives and sign words.
func IsNumberWord(word string) bool {
	if _, ok := wordValue(word); ok {
		return true
	}
	if _, ok := signWords[word]; ok {
		return true
	}
	return word == wordHundred || word == wordAnd
}

var homophones = map[string]struct{}{
	"to":   {},
	"too":  {},
	"free": {},
	"for":  {},
	"ate":  {},
}
