package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/flashy-voice/internal/bus"
	"github.com/loqalabs/flashy-voice/internal/config"
	"github.com/loqalabs/flashy-voice/internal/protocol"
	"github.com/loqalabs/flashy-voice/internal/speechlog"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Service connects the judge to the bus: challenges open sessions,
// transcripts are evaluated against them and verdicts are published.
type Service struct {
	cfg      config.JudgeConfig
	bus      *bus.Client
	logger   *slog.Logger
	judge    *Judge
	store    *speechlog.Store
	tracer   trace.Tracer
	meter    metric.Meter
	metrics  instruments
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	subs     []*nats.Subscription
	mu       sync.Mutex
	sessions map[string]*Session
	pending  []speechlog.Attempt
}

// NewService wires a judge to the bus. store may be nil.
func NewService(parent context.Context, cfg config.JudgeConfig, busClient *bus.Client, store *speechlog.Store, logger *slog.Logger) (*Service, error) {
	j, err := New(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		logger:   logger.With(slog.String("component", "judge")),
		judge:    j,
		store:    store,
		tracer:   otel.Tracer("github.com/loqalabs/flashy-voice/judge"),
		meter:    otel.Meter("github.com/loqalabs/flashy-voice/judge"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	if err := s.initMetrics(); err != nil {
		s.metrics = instruments{}
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s, nil
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	inbox := make(chan *nats.Msg, 256)
	for _, subject := range []string{
		protocol.SubjectChallenge,
		protocol.SubjectTranscriptPartial,
		protocol.SubjectTranscriptFinal,
	} {
		sub, err := s.bus.ChanSubscribe(subject, inbox)
		if err != nil {
			s.drain()
			return fmt.Errorf("judge: %w", err)
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}

	s.wg.Add(2)
	go s.run(inbox)
	go s.runSweeper()
	s.logger.Info("judge started", slog.Bool("early_accept", s.cfg.EarlyAccept), slog.Int("parse_cache_size", s.cfg.ParseCacheSize))
	return nil
}

// run handles challenges and transcripts on one goroutine so a challenge
// always applies to the transcripts published after it.
func (s *Service) run(inbox <-chan *nats.Msg) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-inbox:
			if msg.Subject == protocol.SubjectChallenge {
				s.handleChallenge(msg)
			} else {
				s.handleTranscript(msg)
			}
		}
	}
}

func (s *Service) Close() {
	s.drain()
	s.cancel()
	s.wg.Wait()
}

func (s *Service) drain() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Drain()
	}
}

func (s *Service) Healthy() bool {
	if !s.cfg.Enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) > 0
}

// SessionCount reports how many sessions are tracked.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) handleChallenge(msg *nats.Msg) {
	var ch protocol.Challenge
	if err := json.Unmarshal(msg.Data, &ch); err != nil {
		s.logger.Warn("judge failed to decode challenge", slogError(err))
		return
	}
	if ch.SessionID == "" {
		s.logger.Warn("challenge without session id")
		return
	}
	s.mu.Lock()
	if sess, ok := s.sessions[ch.SessionID]; ok {
		sess.Reset(ch.Expected)
	} else {
		s.sessions[ch.SessionID] = s.judge.NewSession(ch.SessionID, ch.Expected, s.enqueue)
	}
	s.mu.Unlock()
}

// enqueue is the session record hook. It runs with s.mu held.
func (s *Service) enqueue(a speechlog.Attempt) {
	s.pending = append(s.pending, a)
}

func (s *Service) handleTranscript(msg *nats.Msg) {
	var t protocol.Transcript
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		s.logger.Warn("judge failed to decode transcript", slogError(err))
		return
	}
	if t.SessionID == "" {
		return
	}

	ctx, span := s.tracer.Start(s.ctx, "judge.evaluate", trace.WithAttributes(
		attribute.String("session_id", t.SessionID),
		attribute.Bool("partial", t.Partial),
	))
	defer span.End()
	start := time.Now()

	s.mu.Lock()
	sess, ok := s.sessions[t.SessionID]
	if !ok {
		sess = s.judge.NewSession(t.SessionID, nil, s.enqueue)
		s.sessions[t.SessionID] = sess
	}
	verdict, decided := sess.Evaluate(t)
	attempts := s.pending
	s.pending = nil
	s.mu.Unlock()

	partialAttr := metric.WithAttributes(attribute.Bool("partial", t.Partial))
	if s.metrics.transcripts != nil {
		s.metrics.transcripts.Add(ctx, 1, partialAttr)
	}
	if s.metrics.latency != nil {
		s.metrics.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, partialAttr)
	}
	for _, a := range attempts {
		if !a.Partial && a.Parsed == nil && s.metrics.unparsed != nil {
			s.metrics.unparsed.Add(ctx, 1)
		}
	}
	s.recordAttempts(ctx, attempts)

	if !decided {
		return
	}
	verdict.TraceID = traceID(span)
	span.SetAttributes(attribute.String("verdict", string(verdict.Kind)))
	if s.metrics.verdicts != nil {
		s.metrics.verdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(verdict.Kind))))
	}
	if err := s.bus.PublishJSON(protocol.SubjectVerdict, verdict); err != nil {
		s.logger.Warn("judge failed to publish verdict", slogError(err))
		return
	}
	s.logger.Debug("verdict published",
		slog.String("session_id", verdict.SessionID),
		slog.String("kind", string(verdict.Kind)),
		slog.String("transcript", verdict.Transcript),
		slog.Bool("partial", verdict.Partial),
	)
}

func (s *Service) recordAttempts(ctx context.Context, attempts []speechlog.Attempt) {
	if s.store == nil || len(attempts) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, a := range attempts {
		if err := s.store.Record(ctx, a); err != nil {
			s.logger.Warn("failed to record attempt", slog.String("session_id", a.SessionID), slogError(err))
		}
	}
}

func (s *Service) runSweeper() {
	defer s.wg.Done()
	ttl := time.Duration(s.cfg.SessionTTLMS) * time.Millisecond
	interval := ttl / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sweep(now); n > 0 {
				s.logger.Debug("swept idle sessions", slog.Int("count", n))
			}
		}
	}
}

// sweep drops sessions idle for longer than the configured TTL and tells
// the speech log they are gone.
func (s *Service) sweep(now time.Time) int {
	ttl := time.Duration(s.cfg.SessionTTLMS) * time.Millisecond
	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if now.Sub(sess.LastSeen()) > ttl {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	if s.store != nil && len(expired) > 0 {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		for _, id := range expired {
			if err := s.store.EndSession(ctx, id); err != nil {
				s.logger.Warn("failed to end speech log session", slog.String("session_id", id), slogError(err))
			}
		}
	}
	return len(expired)
}

// traceID prefers the active span's trace id and falls back to a random
// id when tracing is not configured.
func traceID(span trace.Span) string {
	if sc := span.SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
