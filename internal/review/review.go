// Package review mines the speech log for recognition problems: transcripts
// that carried no number because of an unknown word, and recurring pairs of
// heard and expected values that the fuzzy rules do not yet accept.
//
// Unknown words are matched against the number vocabulary in two stages.
// Double Metaphone codes select phonetic candidates, which are ranked by
// Jaro-Winkler similarity above a phonetic threshold. Without a phonetic
// candidate, plain Jaro-Winkler similarity must clear a stricter threshold.
package review

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/loqalabs/flashy-voice/internal/speechlog"
	"github.com/loqalabs/flashy-voice/internal/spokennum"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Source is the slice of the speech log a review reads.
type Source interface {
	ListUnparsed(ctx context.Context, limit int) ([]speechlog.Attempt, error)
	ListMismatches(ctx context.Context, limit int) ([]speechlog.Attempt, error)
	Stats(ctx context.Context) (speechlog.Stats, error)
}

// Suggestion proposes a vocabulary word for an unknown token.
type Suggestion struct {
	Token    string  `json:"token"`
	Word     string  `json:"word"`
	Score    float64 `json:"score"`
	Phonetic bool    `json:"phonetic"`
}

// Finding groups identical unparsed transcripts.
type Finding struct {
	Transcript  string       `json:"transcript"`
	Count       int          `json:"count"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	// Corrected is the transcript with every suggestion applied, and
	// Value what it would have parsed to.
	Corrected string `json:"corrected,omitempty"`
	Value     *int   `json:"value,omitempty"`
}

// Confusion is a recurring (heard, expected) pair that was rejected.
type Confusion struct {
	Recognized int `json:"recognized"`
	Expected   int `json:"expected"`
	Count      int `json:"count"`
}

type Report struct {
	Stats      speechlog.Stats `json:"stats"`
	Unparsed   []Finding       `json:"unparsed"`
	Confusions []Confusion     `json:"confusions"`
}

type Option func(*Reviewer)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching word. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(r *Reviewer) { r.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no word
// matches phonetically. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(r *Reviewer) { r.fuzzyThreshold = threshold }
}

// Reviewer is read-only after construction and safe for concurrent use.
type Reviewer struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	words             []candidate
}

type candidate struct {
	word  string
	codes [2]string
}

func New(opts ...Option) *Reviewer {
	r := &Reviewer{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	for _, w := range spokennum.Vocabulary() {
		if strings.Contains(w, " ") || !spokennum.IsNumberWord(w) {
			continue
		}
		p, s := matchr.DoubleMetaphone(w)
		r.words = append(r.words, candidate{word: w, codes: [2]string{p, s}})
	}
	return r
}

// Suggest returns the closest number word for token, if any is close enough.
func (r *Reviewer) Suggest(token string) (Suggestion, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return Suggestion{}, false
	}
	p, s := matchr.DoubleMetaphone(token)

	var best Suggestion
	found := false
	for _, c := range r.words {
		score := matchr.JaroWinkler(token, c.word, false)
		phonetic := overlaps([2]string{p, s}, c.codes)
		switch {
		case phonetic && score >= r.phoneticThreshold:
			if !best.Phonetic || score > best.Score {
				best = Suggestion{Token: token, Word: c.word, Score: score, Phonetic: true}
				found = true
			}
		case !phonetic && !best.Phonetic && score >= r.fuzzyThreshold && score > best.Score:
			best = Suggestion{Token: token, Word: c.word, Score: score}
			found = true
		}
	}
	return best, found
}

func overlaps(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// Analyze suggests replacements for every token of transcript the number
// grammar does not know.
func (r *Reviewer) Analyze(transcript string) Finding {
	f := Finding{Transcript: transcript, Count: 1}
	tokens := strings.Fields(spokennum.Normalize(transcript))
	changed := false
	for i, tok := range tokens {
		if spokennum.IsNumberWord(tok) || isDigits(tok) {
			continue
		}
		sug, ok := r.Suggest(tok)
		if !ok {
			continue
		}
		f.Suggestions = append(f.Suggestions, sug)
		tokens[i] = sug.Word
		changed = true
	}
	if changed {
		f.Corrected = strings.Join(tokens, " ")
		if v, ok := spokennum.Parse(f.Corrected).Get(); ok {
			f.Value = &v
		}
	}
	return f
}

func isDigits(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// Confusions aggregates rejected (recognized, expected) pairs, most
// frequent first.
func Confusions(attempts []speechlog.Attempt) []Confusion {
	counts := make(map[[2]int]int)
	for _, a := range attempts {
		if a.Parsed == nil || a.Expected == nil || a.Matched {
			continue
		}
		counts[[2]int{*a.Parsed, *a.Expected}]++
	}
	out := make([]Confusion, 0, len(counts))
	for k, n := range counts {
		out = append(out, Confusion{Recognized: k[0], Expected: k[1], Count: n})
	}
	slices.SortFunc(out, func(a, b Confusion) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Expected, b.Expected); c != 0 {
			return c
		}
		return cmp.Compare(a.Recognized, b.Recognized)
	})
	return out
}

// Run builds a report from up to limit unparsed and limit mismatched
// attempts.
func (r *Reviewer) Run(ctx context.Context, src Source, limit int) (Report, error) {
	var rep Report
	stats, err := src.Stats(ctx)
	if err != nil {
		return rep, fmt.Errorf("read stats: %w", err)
	}
	rep.Stats = stats

	unparsed, err := src.ListUnparsed(ctx, limit)
	if err != nil {
		return rep, fmt.Errorf("list unparsed: %w", err)
	}
	index := make(map[string]int)
	for _, a := range unparsed {
		key := spokennum.Normalize(a.Transcript)
		if i, ok := index[key]; ok {
			rep.Unparsed[i].Count++
			continue
		}
		index[key] = len(rep.Unparsed)
		rep.Unparsed = append(rep.Unparsed, r.Analyze(a.Transcript))
	}
	slices.SortStableFunc(rep.Unparsed, func(a, b Finding) int {
		return cmp.Compare(b.Count, a.Count)
	})

	mismatches, err := src.ListMismatches(ctx, limit)
	if err != nil {
		return rep, fmt.Errorf("list mismatches: %w", err)
	}
	rep.Confusions = Confusions(mismatches)
	return rep, nil
}
