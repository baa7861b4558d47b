package spokennum

import (
	"math"
	"strconv"
	"strings"
)

// Number is the result of parsing a transcript. The zero value means no
// number was found, which keeps "nothing heard" distinct from a spoken zero.
type Number struct {
	Value int
	OK    bool
}

// Some wraps n as a parsed number.
func Some(n int) Number {
	return Number{Value: n, OK: true}
}

// None reports that no number was found.
func None() Number {
	return Number{}
}

// Get returns the value in comma-ok form.
func (n Number) Get() (int, bool) {
	return n.Value, n.OK
}

func (n Number) String() string {
	if !n.OK {
		return "none"
	}
	return strconv.Itoa(n.Value)
}

// Parse converts a transcript or typed answer into a number.
//
// Digit-only input ("42") wins over the word grammar. Otherwise the word
// grammar is tried on the whole phrase and then on ever shorter suffixes, so
// a leading preamble such as "the answer is" does not hide the number. The
// first suffix that parses is returned, which keeps the longest trailing
// number phrase.
func Parse(raw string) Number {
	text := Normalize(raw)
	if text == "" {
		return None()
	}
	if n, err := strconv.Atoi(text); err == nil {
		return Some(n)
	}

	words := strings.Fields(text)
	for start := range words {
		if n, ok := parseNumberWords(words[start:]); ok {
			return Some(n)
		}
	}
	return None()
}

func wordValue(word string) (int, bool) {
	if v, ok := onesWords[word]; ok {
		return v, true
	}
	v, ok := tensWords[word]
	return v, ok
}

// maxGroup bounds the running value so repeated "hundred" cannot overflow.
const maxGroup = math.MaxInt / 100

func parseNumberWords(words []string) (int, bool) {
	if len(words) == 0 {
		return 0, false
	}

	// total stays zero until the grammar grows a scale word above hundred.
	total := 0
	current := 0
	found := false
	negative := false

scan:
	for _, word := range words {
		if _, ok := signWords[word]; ok && !found {
			negative = true
			continue
		}
		if v, ok := wordValue(word); ok {
			if current > math.MaxInt-v {
				return 0, false
			}
			current += v
			found = true
			continue
		}
		switch word {
		case wordHundred:
			if current == 0 {
				current = 1
			}
			if current > maxGroup {
				return 0, false
			}
			current *= 100
			found = true
		case wordAnd:
		default:
			if found {
				break scan
			}
			return 0, false
		}
	}

	if !found {
		return 0, false
	}
	result := total + current
	if negative {
		result = -result
	}
	return result, true
}
