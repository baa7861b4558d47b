package judge

import (
	"testing"

	"github.com/loqalabs/flashy-voice/internal/config"
	"github.com/loqalabs/flashy-voice/internal/protocol"
	"github.com/loqalabs/flashy-voice/internal/speechlog"
)

func newJudge(t *testing.T, mutate func(*config.JudgeConfig)) *Judge {
	t.Helper()
	cfg := config.Default().Judge
	if mutate != nil {
		mutate(&cfg)
	}
	j, err := New(cfg)
	if err != nil {
		t.Fatalf("new judge: %v", err)
	}
	return j
}

func partial(text string) protocol.Transcript {
	return protocol.Transcript{SessionID: "s1", Text: text, Partial: true}
}

func final(text string) protocol.Transcript {
	return protocol.Transcript{SessionID: "s1", Text: text}
}

func TestSessionEarlyAcceptOnPartial(t *testing.T) {
	j := newJudge(t, nil)
	var attempts []speechlog.Attempt
	s := j.NewSession("s1", protocol.IntPtr(50), func(a speechlog.Attempt) { attempts = append(attempts, a) })

	v, ok := s.Evaluate(partial("fifteen"))
	if !ok {
		t.Fatal("expected early accept on teen/ten confusion")
	}
	if v.Kind != protocol.VerdictAccepted || !v.Partial || v.Value == nil || *v.Value != 15 {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if v.Expected == nil || *v.Expected != 50 || v.SessionID != "s1" {
		t.Fatalf("verdict lost session context: %+v", v)
	}
	if !s.Closed() {
		t.Fatal("expected session closed after verdict")
	}
	if len(attempts) != 1 || !attempts[0].Partial || !attempts[0].Matched {
		t.Fatalf("unexpected recorded attempts %+v", attempts)
	}

	if _, ok := s.Evaluate(final("fifty")); ok {
		t.Fatal("closed session must ignore input")
	}
}

func TestSessionPartialWithoutMatchKeepsListening(t *testing.T) {
	j := newJudge(t, nil)
	s := j.NewSession("s1", protocol.IntPtr(42), nil)

	for _, text := range []string{"forty", "forty", "", "   "} {
		if v, ok := s.Evaluate(partial(text)); ok {
			t.Fatalf("partial %q produced verdict %+v", text, v)
		}
	}
	v, ok := s.Evaluate(partial("forty two"))
	if !ok || v.Kind != protocol.VerdictAccepted {
		t.Fatalf("expected accept, got %+v %v", v, ok)
	}
}

func TestSessionDuplicatePartialIsSkipped(t *testing.T) {
	j := newJudge(t, nil)
	var attempts int
	s := j.NewSession("s1", protocol.IntPtr(9), func(speechlog.Attempt) { attempts++ })

	s.Evaluate(partial("seven"))
	s.Evaluate(partial("seven"))
	if attempts != 1 {
		t.Fatalf("expected duplicate partial skipped, got %d attempts", attempts)
	}
}

func TestSessionEarlyAcceptDisabled(t *testing.T) {
	j := newJudge(t, func(c *config.JudgeConfig) { c.EarlyAccept = false })
	s := j.NewSession("s1", protocol.IntPtr(50), nil)

	if _, ok := s.Evaluate(partial("fifty")); ok {
		t.Fatal("expected no verdict on partial with early accept disabled")
	}
	if _, ok := s.Evaluate(partial("skip")); !ok {
		t.Fatal("give up on partial must still end the turn")
	}
}

func TestSessionFinalVerdicts(t *testing.T) {
	tests := []struct {
		name     string
		expected *int
		text     string
		decided  bool
		kind     protocol.VerdictKind
		value    int
	}{
		{"exact", protocol.IntPtr(21), "twenty one", true, protocol.VerdictAccepted, 21},
		{"fuzzy digit", protocol.IntPtr(24), "twenty three", true, protocol.VerdictAccepted, 23},
		{"wrong", protocol.IntPtr(21), "twenty", true, protocol.VerdictAnswered, 20},
		{"unknown expected", nil, "seven", true, protocol.VerdictAccepted, 7},
		{"raw digits", protocol.IntPtr(12), "12", true, protocol.VerdictAccepted, 12},
		{"give up", protocol.IntPtr(12), "I give up!", true, protocol.VerdictGaveUp, 0},
		{"no number", protocol.IntPtr(12), "um what", false, "", 0},
		{"empty", protocol.IntPtr(12), "", false, "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newJudge(t, nil).NewSession("s1", tc.expected, nil)
			v, ok := s.Evaluate(final(tc.text))
			if ok != tc.decided {
				t.Fatalf("decided = %v, want %v (%+v)", ok, tc.decided, v)
			}
			if !ok {
				if s.Closed() {
					t.Fatal("undecided session must stay open")
				}
				return
			}
			if v.Kind != tc.kind {
				t.Fatalf("kind = %q, want %q", v.Kind, tc.kind)
			}
			if tc.kind == protocol.VerdictGaveUp {
				if v.Value != nil {
					t.Fatalf("give up must carry no value, got %d", *v.Value)
				}
				return
			}
			if v.Value == nil || *v.Value != tc.value {
				t.Fatalf("value = %v, want %d", v.Value, tc.value)
			}
		})
	}
}

func TestSessionUnparsedFinalResetsPartial(t *testing.T) {
	j := newJudge(t, nil)
	s := j.NewSession("s1", protocol.IntPtr(99), nil)

	s.Evaluate(partial("hmm"))
	s.Evaluate(final("hmm"))
	if s.lastPartial != "" {
		t.Fatalf("expected last partial reset, got %q", s.lastPartial)
	}
}

func TestSessionResetReopens(t *testing.T) {
	j := newJudge(t, nil)
	s := j.NewSession("s1", protocol.IntPtr(3), nil)
	if _, ok := s.Evaluate(final("three")); !ok {
		t.Fatal("expected verdict")
	}
	s.Reset(protocol.IntPtr(8))
	if s.Closed() {
		t.Fatal("reset must reopen the session")
	}
	if got, ok := s.Expected(); !ok || got != 8 {
		t.Fatalf("expected 8, got %d %v", got, ok)
	}
	v, ok := s.Evaluate(final("ate"))
	if !ok || v.Kind != protocol.VerdictAccepted {
		t.Fatalf("expected homophone accepted, got %+v", v)
	}
}

func TestSessionRecordsFinalAttempts(t *testing.T) {
	j := newJudge(t, nil)
	var attempts []speechlog.Attempt
	s := j.NewSession("s1", protocol.IntPtr(40), func(a speechlog.Attempt) { attempts = append(attempts, a) })

	s.Evaluate(final("fourty"))
	s.Evaluate(final("twenty"))
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Parsed != nil || attempts[0].Transcript != "fourty" {
		t.Fatalf("unexpected unparsed attempt %+v", attempts[0])
	}
	if attempts[1].Parsed == nil || *attempts[1].Parsed != 20 || attempts[1].Matched {
		t.Fatalf("unexpected mismatch attempt %+v", attempts[1])
	}
}

func TestTypedAnswer(t *testing.T) {
	j := newJudge(t, nil)

	v, ok := j.TypedAnswer("50", protocol.IntPtr(15))
	if !ok || v.Kind != protocol.VerdictAccepted {
		t.Fatalf("expected accepted, got %+v", v)
	}
	if v, ok = j.TypedAnswer("7", protocol.IntPtr(8)); !ok || v.Kind != protocol.VerdictAnswered {
		t.Fatalf("expected answered, got %+v", v)
	}
	if v, ok = j.TypedAnswer(" Skip ", protocol.IntPtr(8)); !ok || v.Kind != protocol.VerdictGaveUp {
		t.Fatalf("expected gave up, got %+v", v)
	}
	if _, ok = j.TypedAnswer("banana", protocol.IntPtr(8)); ok {
		t.Fatal("expected no verdict for non-number")
	}
	if _, ok = j.TypedAnswer("", nil); ok {
		t.Fatal("expected no verdict for empty input")
	}
}

func TestParseCache(t *testing.T) {
	j := newJudge(t, func(c *config.JudgeConfig) { c.ParseCacheSize = 2 })
	j.Parse("Forty Two")
	j.Parse("forty two!")
	if j.CacheLen() != 1 {
		t.Fatalf("expected normalized key reuse, got %d entries", j.CacheLen())
	}
	j.Parse("one")
	j.Parse("two")
	if j.CacheLen() != 2 {
		t.Fatalf("expected cache bounded at 2, got %d", j.CacheLen())
	}
	if got, ok := j.Parse("FORTY-TWO").Get(); !ok || got != 42 {
		t.Fatalf("unexpected parse %d %v", got, ok)
	}

	uncached := newJudge(t, func(c *config.JudgeConfig) { c.ParseCacheSize = 0 })
	uncached.Parse("one")
	if uncached.CacheLen() != 0 {
		t.Fatal("expected no cache when size is zero")
	}
}
