package protocol

import "time"

// AudioFrame represents PCM audio data streamed from the game client.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Transcript represents STT output broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Challenge announces the answer the game is waiting for in a session.
// A nil Expected means the answer is unknown and only final transcripts
// produce verdicts.
type Challenge struct {
	SessionID string    `json:"session_id"`
	Expected  *int      `json:"expected,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

type VerdictKind string

const (
	// VerdictAccepted means the heard number matches the expected answer,
	// possibly through a known recognition confusion.
	VerdictAccepted VerdictKind = "accepted"
	// VerdictAnswered means a final transcript carried a number that does
	// not match the expected answer. With no expected answer every heard
	// number is accepted.
	VerdictAnswered VerdictKind = "answered"
	VerdictGaveUp   VerdictKind = "gave_up"
)

// Verdict is the judge's decision for one session turn.
type Verdict struct {
	SessionID  string      `json:"session_id"`
	Kind       VerdictKind `json:"kind"`
	Value      *int        `json:"value,omitempty"`
	Expected   *int        `json:"expected,omitempty"`
	Transcript string      `json:"transcript"`
	Partial    bool        `json:"partial"`
	TraceID    string      `json:"trace_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix  = "audio.frame"
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectChallenge         = "judge.challenge"
	SubjectVerdict           = "judge.verdict"
)

// IntPtr is a small helper for optional integer fields.
func IntPtr(v int) *int {
	return &v
}
