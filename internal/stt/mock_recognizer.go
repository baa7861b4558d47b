package stt

import (
	"context"
	"strings"
	"sync"
)

// mockRecognizer replays a fixed script of utterances, one per final
// transcription. Partials return the leading half of the current utterance
// so downstream early-accept logic can be exercised without an engine.
type mockRecognizer struct {
	mu     sync.Mutex
	script []string
	next   int
}

// NewMockRecognizer builds a recognizer from a "|" separated script such as
// "forty two|give up". An empty script yields empty transcripts.
func NewMockRecognizer(script string) Recognizer {
	var lines []string
	for _, line := range strings.Split(script, "|") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return &mockRecognizer{script: lines}
}

func (m *mockRecognizer) Transcribe(_ context.Context, _ []byte, _ int, _ int, final bool) (TranscriptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.script) == 0 {
		return TranscriptResult{}, nil
	}
	current := m.script[m.next%len(m.script)]
	if final {
		m.next++
		return TranscriptResult{Text: current, Confidence: 1}, nil
	}
	words := strings.Fields(current)
	half := (len(words) + 1) / 2
	return TranscriptResult{Text: strings.Join(words[:half], " "), Confidence: 0.5}, nil
}
