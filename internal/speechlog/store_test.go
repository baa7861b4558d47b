package speechlog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/flashy-voice/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTemp(t *testing.T, cfg config.SpeechLogConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "speech.db")
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open speech log: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intp(v int) *int { return &v }

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.SpeechLogConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Record(ctx, Attempt{SessionID: "s", Transcript: "five"}); err != nil {
		t.Fatalf("record on ephemeral store: %v", err)
	}
	attempts, err := s.ListSession(ctx, "s", 10)
	if err != nil || attempts != nil {
		t.Fatalf("expected nothing retained, got %v, %v", attempts, err)
	}
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, config.SpeechLogConfig{RetentionMode: "session"})

	if err := s.Record(ctx, Attempt{SessionID: "session-1", Transcript: "fifteen", Parsed: intp(15), Expected: intp(50), Matched: true, Partial: true}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record(ctx, Attempt{SessionID: "session-1", Transcript: "um what", Expected: intp(50)}); err != nil {
		t.Fatalf("record: %v", err)
	}

	attempts, err := s.ListSession(ctx, "session-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	first := attempts[0]
	if first.Parsed == nil || *first.Parsed != 15 || !first.Matched || !first.Partial {
		t.Fatalf("unexpected first attempt: %+v", first)
	}
	if attempts[1].Parsed != nil {
		t.Fatalf("expected nil parsed value, got %d", *attempts[1].Parsed)
	}
	if attempts[1].Expected == nil || *attempts[1].Expected != 50 {
		t.Fatalf("expected value lost: %+v", attempts[1])
	}
}

func TestListUnparsedAndMismatches(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, config.SpeechLogConfig{RetentionMode: "persistent"})

	records := []Attempt{
		{SessionID: "a", Transcript: "fourty two", Expected: intp(42)},
		{SessionID: "a", Transcript: "forty", Parsed: intp(40), Expected: intp(42), Partial: true},
		{SessionID: "b", Transcript: "twenty", Parsed: intp(20), Expected: intp(21)},
		{SessionID: "b", Transcript: "twenty one", Parsed: intp(21), Expected: intp(21), Matched: true},
	}
	for _, r := range records {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	unparsed, err := s.ListUnparsed(ctx, 10)
	if err != nil {
		t.Fatalf("list unparsed: %v", err)
	}
	if len(unparsed) != 1 || unparsed[0].Transcript != "fourty two" {
		t.Fatalf("unexpected unparsed attempts: %+v", unparsed)
	}

	mismatches, err := s.ListMismatches(ctx, 10)
	if err != nil {
		t.Fatalf("list mismatches: %v", err)
	}
	if len(mismatches) != 1 || *mismatches[0].Parsed != 20 {
		t.Fatalf("unexpected mismatches: %+v", mismatches)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{Attempts: 4, Parsed: 3, Matched: 1, Partial: 1, Sessions: 2}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, config.SpeechLogConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Record(ctx, Attempt{SessionID: "old-session", Transcript: "seven"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Record(ctx, Attempt{SessionID: "new-session", Transcript: "eight"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	old, err := s.ListSession(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected old session pruned")
	}
	fresh, err := s.ListSession(ctx, "new-session", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("expected new session retained, got %d attempts", len(fresh))
	}
}

func TestExportJSONL(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, config.SpeechLogConfig{RetentionMode: "persistent"})
	s.clock = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	if err := s.Record(ctx, Attempt{SessionID: "x", Transcript: "fifty", Parsed: intp(50), Expected: intp(15), Matched: true}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record(ctx, Attempt{SessionID: "x", Transcript: "hmm"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	var buf bytes.Buffer
	n, err := s.ExportJSONL(ctx, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output %q", buf.String())
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["timestamp"] != "2025-06-01T12:00:00Z" || first["parsed"] != float64(50) || first["matched"] != true {
		t.Fatalf("unexpected first line: %v", first)
	}
	if !strings.Contains(lines[1], `"parsed":null`) || !strings.Contains(lines[1], `"expected":null`) {
		t.Fatalf("expected explicit nulls, got %s", lines[1])
	}
}

func TestSessionRetentionEndsWithSession(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "speech.db")
	s := openTemp(t, config.SpeechLogConfig{Path: path, RetentionMode: "session"})

	for _, id := range []string{"gone", "live"} {
		if err := s.Record(ctx, Attempt{SessionID: id, Transcript: "nine", Parsed: intp(9)}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := s.EndSession(ctx, "gone"); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if got, _ := s.ListSession(ctx, "gone", 10); len(got) != 0 {
		t.Fatalf("expected ended session deleted, got %+v", got)
	}
	if got, _ := s.ListSession(ctx, "live", 10); len(got) != 1 {
		t.Fatalf("expected live session kept, got %+v", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTemp(t, config.SpeechLogConfig{Path: path, RetentionMode: "session"})
	st, err := reopened.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st != (Stats{}) {
		t.Fatalf("expected a fresh log after restart, got %+v", st)
	}
}

func TestPersistentRetentionIgnoresEndSession(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t, config.SpeechLogConfig{RetentionMode: "persistent"})
	if err := s.Record(ctx, Attempt{SessionID: "kept", Transcript: "ten"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.EndSession(ctx, "kept"); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if got, _ := s.ListSession(ctx, "kept", 10); len(got) != 1 {
		t.Fatalf("persistent log must keep ended sessions, got %+v", got)
	}
}
