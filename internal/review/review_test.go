package review

import (
	"context"
	"errors"
	"testing"

	"github.com/loqalabs/flashy-voice/internal/speechlog"
)

func intp(v int) *int { return &v }

func TestSuggestMisspelledNumbers(t *testing.T) {
	r := New()
	tests := []struct {
		token string
		want  string
	}{
		{"fourty", "forty"},
		{"sevin", "seven"},
		{"nineten", "nineteen"},
	}
	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			got, ok := r.Suggest(tc.token)
			if !ok {
				t.Fatalf("no suggestion for %q", tc.token)
			}
			if got.Word != tc.want {
				t.Fatalf("Suggest(%q) = %q (%.2f), want %q", tc.token, got.Word, got.Score, tc.want)
			}
		})
	}
}

func TestSuggestRejectsUnrelatedWords(t *testing.T) {
	r := New()
	for _, tok := range []string{"", "banana", "xylophone"} {
		if got, ok := r.Suggest(tok); ok {
			t.Fatalf("unexpected suggestion for %q: %+v", tok, got)
		}
	}
}

func TestAnalyzeCorrectsTranscript(t *testing.T) {
	f := New().Analyze("Fourty two")
	if len(f.Suggestions) != 1 || f.Suggestions[0].Token != "fourty" {
		t.Fatalf("unexpected suggestions %+v", f.Suggestions)
	}
	if f.Corrected != "forty two" {
		t.Fatalf("corrected = %q", f.Corrected)
	}
	if f.Value == nil || *f.Value != 42 {
		t.Fatalf("expected corrected value 42, got %v", f.Value)
	}

	clean := New().Analyze("twenty 3")
	if len(clean.Suggestions) != 0 || clean.Corrected != "" {
		t.Fatalf("known tokens must not be flagged: %+v", clean)
	}
}

func TestConfusionsAggregate(t *testing.T) {
	attempts := []speechlog.Attempt{
		{Parsed: intp(60), Expected: intp(16)},
		{Parsed: intp(17), Expected: intp(70), Matched: true},
		{Parsed: intp(20), Expected: intp(21)},
		{Parsed: intp(20), Expected: intp(21)},
		{Parsed: nil, Expected: intp(21)},
	}
	got := Confusions(attempts)
	if len(got) != 2 {
		t.Fatalf("expected 2 confusions, got %+v", got)
	}
	if got[0] != (Confusion{Recognized: 20, Expected: 21, Count: 2}) {
		t.Fatalf("unexpected top confusion %+v", got[0])
	}
	if got[1].Recognized != 60 || got[1].Count != 1 {
		t.Fatalf("unexpected second confusion %+v", got[1])
	}
}

type fakeSource struct {
	unparsed   []speechlog.Attempt
	mismatches []speechlog.Attempt
	err        error
}

func (f fakeSource) ListUnparsed(context.Context, int) ([]speechlog.Attempt, error) {
	return f.unparsed, f.err
}

func (f fakeSource) ListMismatches(context.Context, int) ([]speechlog.Attempt, error) {
	return f.mismatches, nil
}

func (f fakeSource) Stats(context.Context) (speechlog.Stats, error) {
	return speechlog.Stats{Attempts: len(f.unparsed) + len(f.mismatches)}, nil
}

func TestRunGroupsUnparsed(t *testing.T) {
	src := fakeSource{
		unparsed: []speechlog.Attempt{
			{Transcript: "um"},
			{Transcript: "sevin"},
			{Transcript: "Sevin!"},
		},
		mismatches: []speechlog.Attempt{{Parsed: intp(5), Expected: intp(6)}},
	}
	rep, err := New().Run(context.Background(), src, 50)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Stats.Attempts != 4 {
		t.Fatalf("unexpected stats %+v", rep.Stats)
	}
	if len(rep.Unparsed) != 2 {
		t.Fatalf("expected 2 distinct transcripts, got %+v", rep.Unparsed)
	}
	if rep.Unparsed[0].Transcript != "sevin" || rep.Unparsed[0].Count != 2 {
		t.Fatalf("expected most frequent first, got %+v", rep.Unparsed[0])
	}
	if len(rep.Confusions) != 1 {
		t.Fatalf("unexpected confusions %+v", rep.Confusions)
	}
}

func TestRunPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := New().Run(context.Background(), fakeSource{err: boom}, 10)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
