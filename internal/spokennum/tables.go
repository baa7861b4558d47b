package spokennum

// onesWords covers 0-19 plus spellings the recognizer emits for homophones.
var onesWords = map[string]int{
	"zero":      0,
	"one":       1,
	"two":       2,
	"to":        2,
	"too":       2,
	"three":     3,
	"free":      3,
	"four":      4,
	"for":       4,
	"five":      5,
	"six":       6,
	"seven":     7,
	"eight":     8,
	"ate":       8,
	"nine":      9,
	"ten":       10,
	"eleven":    11,
	"twelve":    12,
	"thirteen":  13,
	"fourteen":  14,
	"fifteen":   15,
	"sixteen":   16,
	"seventeen": 17,
	"eighteen":  18,
	"nineteen":  19,
}

var tensWords = map[string]int{
	"twenty":  20,
	"thirty":  30,
	"forty":   40,
	"fifty":   50,
	"sixty":   60,
	"seventy": 70,
	"eighty":  80,
	"ninety":  90,
}

const (
	wordHundred = "hundred"
	wordAnd     = "and"
)

var signWords = map[string]struct{}{
	"minus":    {},
	"negative": {},
}

// pair is stored with lo <= hi so lookups are order independent.
type pair struct {
	lo, hi int
}

func makePair(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{lo: a, hi: b}
}

// teenTenPairs are the thirteen/thirty style confusions.
var teenTenPairs = map[pair]struct{}{
	makePair(13, 30): {},
	makePair(14, 40): {},
	makePair(15, 50): {},
	makePair(16, 60): {},
	makePair(17, 70): {},
	makePair(18, 80): {},
	makePair(19, 90): {},
}

// confusedDigits maps an expected digit to the digit the recognizer hears
// instead. "three" and "four" are swapped in both directions.
var confusedDigits = map[byte]byte{
	'3': '4',
	'4': '3',
}

type wordReplacement struct {
	misheard int
	intended int
}

// confusedWords are whole-word mishearings that shift digit positions,
// e.g. "three hundred forty two" transcribed as "forty hundred forty two".
var confusedWords = []wordReplacement{
	{misheard: 40, intended: 3},
}

var giveUpPhrases = map[string]struct{}{
	"give up":      {},
	"skip":         {},
	"pass":         {},
	"next":         {},
	"i don t know": {},
	"i dont know":  {},
	"i give up":    {},
}

// grammarExtras are the non-number entries of the recognizer grammar.
var grammarExtras = []string{
	wordHundred,
	wordAnd,
	"free",
	"minus",
	"negative",
	"skip",
	"give up",
	"pass",
	"next",
	"[unk]",
}
