package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/flashy-voice/internal/bus"
	"github.com/loqalabs/flashy-voice/internal/config"
	"github.com/loqalabs/flashy-voice/internal/protocol"
	"github.com/nats-io/nats.go"
)

const transcribeTimeout = 45 * time.Second

// Service buffers audio frames per session and turns them into partial and
// final transcripts on the bus. At most one recognition runs per session;
// a final frame arriving mid-recognition is queued behind it.
type Service struct {
	cfg        config.STTConfig
	bus        *bus.Client
	log        *slog.Logger
	recognizer Recognizer
	clock      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	utterances map[string]*utterance
	sub        *nats.Subscription
}

// utterance is the audio buffered for one session turn. After its final
// recognition it stays behind as a tombstone (done, pcm released) so a
// replayed frame cannot start the turn again; the sweeper expires it.
type utterance struct {
	pcm         []byte
	lastSeq     int
	lastFrame   time.Time
	lastPartial time.Time
	busy        bool
	finalQueued bool
	done        bool
}

// job is one recognition request cut from an utterance.
type job struct {
	sessionID string
	pcm       []byte
	final     bool
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, recognizer Recognizer) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		log:        busClient.Logger().With(slog.String("component", "stt")),
		recognizer: recognizer,
		clock:      time.Now,
		ctx:        ctx,
		cancel:     cancel,
		utterances: make(map[string]*utterance),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Subscribe(protocol.SubjectAudioFramePrefix+".>", s.handleFrame)
	if err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	s.wg.Add(1)
	go s.runSweeper()
	s.log.Info("stt service started", slog.String("mode", s.cfg.Mode), slog.Bool("grammar", s.cfg.Grammar))
	return nil
}

func (s *Service) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		_ = sub.Drain()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	if !s.cfg.Enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slogError(err))
		return
	}
	if frame.SessionID == "" {
		s.log.Warn("audio frame without session id", slog.String("subject", msg.Subject))
		return
	}
	if frame.SampleRate != 0 && frame.SampleRate != s.cfg.SampleRate {
		s.log.Warn("audio frame sample rate mismatch",
			slog.String("session_id", frame.SessionID),
			slog.Int("got", frame.SampleRate),
			slog.Int("want", s.cfg.SampleRate))
	}
	if j := s.accept(frame); j != nil {
		s.dispatch(*j)
	}
}

// accept buffers a frame and decides whether a recognition should start.
// Frames whose sequence number does not advance are dropped as replays.
func (s *Service) accept(frame protocol.AudioFrame) *job {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.utterances[frame.SessionID]
	if u == nil {
		u = &utterance{}
		s.utterances[frame.SessionID] = u
	}
	if frame.Sequence > 0 {
		if frame.Sequence <= u.lastSeq {
			return nil
		}
		u.lastSeq = frame.Sequence
	}
	if u.done {
		// next turn: sequence numbering carries on from the tombstone
		*u = utterance{lastSeq: u.lastSeq}
	}
	u.lastFrame = s.clock()
	u.pcm = append(u.pcm, frame.PCM...)

	if u.busy {
		if frame.Final {
			u.finalQueued = true
		}
		return nil
	}
	if frame.Final {
		return s.start(frame.SessionID, u, true)
	}
	if !s.cfg.PublishInterim || !s.partialDue(u) {
		return nil
	}
	return s.start(frame.SessionID, u, false)
}

func (s *Service) partialDue(u *utterance) bool {
	if u.lastPartial.IsZero() {
		return true
	}
	interval := time.Duration(s.cfg.PartialEveryMS) * time.Millisecond
	return interval > 0 && s.clock().Sub(u.lastPartial) >= interval
}

// start marks u busy and snapshots its audio. Callers hold s.mu.
func (s *Service) start(sessionID string, u *utterance, final bool) *job {
	u.busy = true
	if !final {
		u.lastPartial = s.clock()
	}
	return &job{sessionID: sessionID, pcm: append([]byte(nil), u.pcm...), final: final}
}

// finish records that a recognition ended and returns the queued final
// recognition, if one is waiting.
func (s *Service) finish(j job) *job {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.utterances[j.sessionID]
	if u == nil {
		return nil
	}
	u.busy = false
	if j.final {
		u.done = true
		u.pcm = nil
		u.finalQueued = false
		return nil
	}
	u.lastPartial = s.clock()
	if u.finalQueued {
		u.finalQueued = false
		return s.start(j.sessionID, u, true)
	}
	return nil
}

func (s *Service) runSweeper() {
	defer s.wg.Done()
	interval := s.utteranceTTL() / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(s.clock()); n > 0 {
				s.log.Debug("swept idle utterances", slog.Int("count", n))
			}
		}
	}
}

// sweep drops utterances that have seen no frame for longer than the
// configured TTL, abandoned turns and tombstones alike. Busy utterances are
// left to their running recognition.
func (s *Service) sweep(now time.Time) int {
	ttl := s.utteranceTTL()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, u := range s.utterances {
		if !u.busy && now.Sub(u.lastFrame) > ttl {
			delete(s.utterances, id)
			removed++
		}
	}
	return removed
}

func (s *Service) utteranceTTL() time.Duration {
	if s.cfg.UtteranceTTLMS <= 0 {
		return time.Minute
	}
	return time.Duration(s.cfg.UtteranceTTLMS) * time.Millisecond
}

func (s *Service) dispatch(j job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for next := &j; next != nil; next = s.finish(*next) {
			s.transcribe(*next)
		}
	}()
}

func (s *Service) transcribe(j job) {
	ctx, cancel := context.WithTimeout(s.ctx, transcribeTimeout)
	defer cancel()

	result, err := s.recognizer.Transcribe(ctx, j.pcm, s.cfg.SampleRate, s.cfg.Channels, j.final)
	if err != nil {
		s.log.Warn("stt transcription failed", slog.String("session_id", j.sessionID), slog.Bool("final", j.final), slogError(err))
		return
	}
	if result.Text == "" {
		return
	}
	subject := protocol.SubjectTranscriptPartial
	if j.final {
		subject = protocol.SubjectTranscriptFinal
	}
	msg := protocol.Transcript{
		SessionID:  j.sessionID,
		Text:       result.Text,
		Partial:    !j.final,
		Timestamp:  s.clock().UTC(),
		Confidence: result.Confidence,
	}
	if err := s.bus.PublishJSON(subject, msg); err != nil {
		s.log.Warn("failed to publish transcript", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
