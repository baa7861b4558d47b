package judge

import (
	"time"

	"github.com/loqalabs/flashy-voice/internal/protocol"
	"github.com/loqalabs/flashy-voice/internal/speechlog"
	"github.com/loqalabs/flashy-voice/internal/spokennum"
)

// Session tracks one flashcard turn. It is not safe for concurrent use; the
// Service serializes access per session.
type Session struct {
	ID string

	judge       *Judge
	record      func(speechlog.Attempt)
	expected    *int
	lastPartial string
	closed      bool
	lastSeen    time.Time
}

// Reset reopens the session for a new challenge.
func (s *Session) Reset(expected *int) {
	if expected != nil {
		v := *expected
		expected = &v
	}
	s.expected = expected
	s.lastPartial = ""
	s.closed = false
	s.lastSeen = s.judge.clock()
}

// Closed reports whether a verdict has already been reached.
func (s *Session) Closed() bool { return s.closed }

// Expected returns the answer being waited for, if known.
func (s *Session) Expected() (int, bool) {
	if s.expected == nil {
		return 0, false
	}
	return *s.expected, true
}

// LastSeen is the time of the last challenge or transcript.
func (s *Session) LastSeen() time.Time { return s.lastSeen }

// Evaluate feeds one transcript to the session. It returns a verdict and
// true once the turn is decided; the session then ignores further input
// until Reset.
func (s *Session) Evaluate(t protocol.Transcript) (protocol.Verdict, bool) {
	if s.closed {
		return protocol.Verdict{}, false
	}
	s.lastSeen = s.judge.clock()
	if t.Partial {
		return s.evaluatePartial(t.Text)
	}
	return s.evaluateFinal(t.Text)
}

func (s *Session) evaluateFinal(text string) (protocol.Verdict, bool) {
	if spokennum.Normalize(text) == "" {
		return protocol.Verdict{}, false
	}
	if spokennum.IsGiveUp(text) {
		return s.decide(protocol.VerdictGaveUp, text, nil, false), true
	}

	n := s.judge.Parse(text)
	value, ok := n.Get()
	if !ok {
		s.observe(text, n, false, false)
		s.lastPartial = ""
		return protocol.Verdict{}, false
	}
	kind := s.judge.classify(n, s.expected)
	s.observe(text, n, kind == protocol.VerdictAccepted, false)
	return s.decide(kind, text, protocol.IntPtr(value), false), true
}

func (s *Session) evaluatePartial(text string) (protocol.Verdict, bool) {
	if spokennum.Normalize(text) == "" || text == s.lastPartial {
		return protocol.Verdict{}, false
	}
	s.lastPartial = text

	if s.expected != nil && s.judge.earlyAccept {
		n := s.judge.Parse(text)
		matched := spokennum.IsFuzzyMatch(n, *s.expected)
		if s.judge.recordPartials {
			s.observe(text, n, matched, true)
		}
		if matched {
			value, _ := n.Get()
			return s.decide(protocol.VerdictAccepted, text, protocol.IntPtr(value), true), true
		}
	}
	if spokennum.IsGiveUp(text) {
		return s.decide(protocol.VerdictGaveUp, text, nil, true), true
	}
	return protocol.Verdict{}, false
}

func (s *Session) decide(kind protocol.VerdictKind, text string, value *int, partial bool) protocol.Verdict {
	s.closed = true
	return protocol.Verdict{
		SessionID:  s.ID,
		Kind:       kind,
		Value:      value,
		Expected:   s.expected,
		Transcript: text,
		Partial:    partial,
		Timestamp:  s.judge.clock().UTC(),
	}
}

func (s *Session) observe(text string, n spokennum.Number, matched, partial bool) {
	if s.record == nil {
		return
	}
	a := speechlog.Attempt{
		SessionID:  s.ID,
		Transcript: text,
		Expected:   s.expected,
		Matched:    matched,
		Partial:    partial,
		CreatedAt:  s.judge.clock(),
	}
	if v, ok := n.Get(); ok {
		a.Parsed = protocol.IntPtr(v)
	}
	s.record(a)
}
