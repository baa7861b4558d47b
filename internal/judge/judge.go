// Package judge decides what a player said in answer to a flashcard: the
// expected number (possibly misheard in a known way), some other number, or
// a request to give up.
package judge

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/loqalabs/flashy-voice/internal/config"
	"github.com/loqalabs/flashy-voice/internal/protocol"
	"github.com/loqalabs/flashy-voice/internal/speechlog"
	"github.com/loqalabs/flashy-voice/internal/spokennum"
)

// Judge holds the rules shared by every session.
type Judge struct {
	earlyAccept    bool
	recordPartials bool
	cache          *lru.Cache[string, spokennum.Number]
	clock          func() time.Time
}

// New builds a Judge. A zero ParseCacheSize disables memoization.
func New(cfg config.JudgeConfig) (*Judge, error) {
	j := &Judge{
		earlyAccept:    cfg.EarlyAccept,
		recordPartials: cfg.RecordPartials,
		clock:          time.Now,
	}
	if cfg.ParseCacheSize > 0 {
		cache, err := lru.New[string, spokennum.Number](cfg.ParseCacheSize)
		if err != nil {
			return nil, fmt.Errorf("parse cache: %w", err)
		}
		j.cache = cache
	}
	return j, nil
}

// Parse is spokennum.Parse memoized on the normalized transcript.
func (j *Judge) Parse(raw string) spokennum.Number {
	key := spokennum.Normalize(raw)
	if j.cache == nil {
		return spokennum.Parse(key)
	}
	if n, ok := j.cache.Get(key); ok {
		return n
	}
	n := spokennum.Parse(key)
	j.cache.Add(key, n)
	return n
}

// CacheLen reports how many transcripts are memoized.
func (j *Judge) CacheLen() int {
	if j.cache == nil {
		return 0
	}
	return j.cache.Len()
}

// NewSession opens a session waiting for expected. record, when non-nil,
// receives every parse attempt the session makes.
func (j *Judge) NewSession(id string, expected *int, record func(speechlog.Attempt)) *Session {
	s := &Session{ID: id, judge: j, record: record}
	s.Reset(expected)
	return s
}

// TypedAnswer applies the voice rules to keyboard input, which is always
// final. ok is false when the input is neither a number nor a give-up.
func (j *Judge) TypedAnswer(raw string, expected *int) (protocol.Verdict, bool) {
	v := protocol.Verdict{
		Expected:   expected,
		Transcript: raw,
		Timestamp:  j.clock().UTC(),
	}
	if spokennum.Normalize(raw) == "" {
		return v, false
	}
	if spokennum.IsGiveUp(raw) {
		v.Kind = protocol.VerdictGaveUp
		return v, true
	}
	n := j.Parse(raw)
	value, ok := n.Get()
	if !ok {
		return v, false
	}
	v.Value = protocol.IntPtr(value)
	v.Kind = j.classify(n, expected)
	return v, true
}

func (j *Judge) classify(n spokennum.Number, expected *int) protocol.VerdictKind {
	if expected == nil || spokennum.IsFuzzyMatch(n, *expected) {
		return protocol.VerdictAccepted
	}
	return protocol.VerdictAnswered
}
