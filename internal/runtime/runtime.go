package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/loqalabs/flashy-voice/internal/bus"
	"github.com/loqalabs/flashy-voice/internal/config"
	"github.com/loqalabs/flashy-voice/internal/judge"
	"github.com/loqalabs/flashy-voice/internal/natsserver"
	"github.com/loqalabs/flashy-voice/internal/speechlog"
	"github.com/loqalabs/flashy-voice/internal/stt"
	"golang.org/x/sync/errgroup"
)

// component is a long-running service that reports its own health.
type component interface {
	Healthy() bool
}

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	ready      atomic.Bool
	components []component
	busClient  *bus.Client
	metrics    http.Handler
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every service and blocks until ctx is cancelled or a
// server fails.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.metrics = metricsHandler
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if terr := shutdownTelemetry(shutdownCtx); terr != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", terr.Error()))
		}
	}()

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return err
	}
	defer busClient.Close()
	r.busClient = busClient

	store, err := speechlog.Open(ctx, r.cfg.SpeechLog, r.logger)
	if err != nil {
		return fmt.Errorf("open speech log: %w", err)
	}
	defer store.Close()

	if r.cfg.STT.Enabled {
		recognizer, err := stt.NewRecognizer(r.cfg.STT)
		if err != nil {
			return err
		}
		sttService := stt.NewService(ctx, r.cfg.STT, busClient, recognizer)
		if err := sttService.Start(); err != nil {
			return err
		}
		defer sttService.Close()
		r.components = append(r.components, sttService)
	}

	judgeService, err := judge.NewService(ctx, r.cfg.Judge, busClient, store, r.logger)
	if err != nil {
		return err
	}
	if err := judgeService.Start(); err != nil {
		return err
	}
	defer judgeService.Close()
	r.components = append(r.components, judgeService)

	addr := net.JoinHostPort(r.cfg.HTTP.Bind, fmt.Sprint(r.cfg.HTTP.Port))
	servers := []*http.Server{{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && r.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", r.metrics)
		servers = append(servers, &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.Bool("stt", r.cfg.STT.Enabled), slog.Bool("judge", r.cfg.Judge.Enabled))

	return g.Wait()
}

// Handler serves health, readiness and, when available, metrics.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metrics != nil {
		mux.Handle("/metrics", r.metrics)
	}
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.isReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	if r.busClient != nil && !r.busClient.Healthy() {
		return false
	}
	for _, c := range r.components {
		if !c.Healthy() {
			return false
		}
	}
	return true
}
