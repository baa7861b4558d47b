package judge

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	transcripts metric.Int64Counter
	verdicts    metric.Int64Counter
	unparsed    metric.Int64Counter
	latency     metric.Float64Histogram
}

func (s *Service) initMetrics() error {
	var err error
	if s.metrics.transcripts, err = s.meter.Int64Counter("flashy.judge.transcripts",
		metric.WithDescription("Transcripts evaluated by the judge")); err != nil {
		return err
	}
	if s.metrics.verdicts, err = s.meter.Int64Counter("flashy.judge.verdicts",
		metric.WithDescription("Verdicts published, by kind")); err != nil {
		return err
	}
	if s.metrics.unparsed, err = s.meter.Int64Counter("flashy.judge.unparsed",
		metric.WithDescription("Final transcripts that carried no number")); err != nil {
		return err
	}
	if s.metrics.latency, err = s.meter.Float64Histogram("flashy.judge.evaluate.duration",
		metric.WithDescription("Time spent evaluating one transcript"),
		metric.WithUnit("ms")); err != nil {
		return err
	}

	sessions, err := s.meter.Int64ObservableGauge("flashy.judge.sessions", metric.WithDescription("Open judge sessions"))
	if err != nil {
		return err
	}
	cached, err := s.meter.Int64ObservableGauge("flashy.judge.parse_cache.entries", metric.WithDescription("Memoized transcript parses"))
	if err != nil {
		return err
	}
	_, err = s.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(sessions, int64(s.SessionCount()))
		obs.ObserveInt64(cached, int64(s.judge.CacheLen()))
		return nil
	}, sessions, cached)
	return err
}
