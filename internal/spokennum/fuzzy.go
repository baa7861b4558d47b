package spokennum

import (
	"strconv"
	"strings"
)

// IsFuzzyMatch reports whether recognized should be accepted as expected.
// Besides exact equality it accepts the teen/ten confusions (fifteen and
// fifty), a single three/four digit swap (43 and 44) and the "forty" for
// "three" word mishearing (4042 for 342).
func IsFuzzyMatch(recognized Number, expected int) bool {
	got, ok := recognized.Get()
	if !ok {
		return false
	}
	if got == expected {
		return true
	}
	if _, ok := teenTenPairs[makePair(got, expected)]; ok {
		return true
	}
	if differsByConfusedDigit(got, expected) {
		return true
	}
	return matchesWithWordReplacement(got, expected)
}

func differsByConfusedDigit(recognized, expected int) bool {
	rec := strconv.Itoa(recognized)
	exp := strconv.Itoa(expected)
	if len(rec) != len(exp) {
		return false
	}

	diffs := 0
	for i := 0; i < len(rec); i++ {
		if rec[i] == exp[i] {
			continue
		}
		diffs++
		if diffs > 1 {
			return false
		}
		heard, ok := confusedDigits[exp[i]]
		if !ok || heard != rec[i] {
			return false
		}
	}
	return diffs == 1
}

func matchesWithWordReplacement(recognized, expected int) bool {
	rec := strconv.Itoa(recognized)
	for _, r := range confusedWords {
		misheard := strconv.Itoa(r.misheard)
		if !strings.Contains(rec, misheard) {
			continue
		}
		fixed := strings.Replace(rec, misheard, strconv.Itoa(r.intended), 1)
		if n, err := strconv.Atoi(fixed); err == nil && n == expected {
			return true
		}
	}
	return false
}
