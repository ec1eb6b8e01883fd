// Package sink fans a flux table out to every configured writer.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/turbulent-flux-etl/internal/domain"
	"github.com/couchcryptid/turbulent-flux-etl/internal/observability"
	"github.com/sony/gobreaker"
)

// Sink is a named table writer.
type Sink interface {
	Name() string
	LoadTable(ctx context.Context, t domain.FluxTable) error
}

// BreakerSettings tunes the circuit breaker around remote sinks.
type BreakerSettings struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerSettings opens a breaker after five consecutive failures
// and probes again after a minute.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:         1,
		Interval:            5 * time.Minute,
		Timeout:             time.Minute,
		ConsecutiveFailures: 5,
	}
}

type breakerSink struct {
	Sink
	cb *gobreaker.CircuitBreaker
}

// WithBreaker wraps a remote sink so that repeated failures stop calls to
// it for a while instead of stalling every day on timeouts.
func WithBreaker(s Sink, st BreakerSettings, logger *slog.Logger) Sink {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name(),
		MaxRequests: st.MaxRequests,
		Interval:    st.Interval,
		Timeout:     st.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= st.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("sink circuit breaker state change", "sink", name, "from", from.String(), "to", to.String())
		},
	})
	return &breakerSink{Sink: s, cb: cb}
}

func (b *breakerSink) LoadTable(ctx context.Context, t domain.FluxTable) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.Sink.LoadTable(ctx, t)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("sink %s unavailable: %w", b.Name(), err)
	}
	return err
}

// Fanout writes each table to every sink. It implements
// pipeline.TableLoader.
type Fanout struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFanout creates a Fanout over sinks. metrics may be nil.
func NewFanout(sinks []Sink, logger *slog.Logger, metrics *observability.Metrics) *Fanout {
	return &Fanout{sinks: sinks, logger: logger, metrics: metrics}
}

// Names lists the sinks in write order.
func (f *Fanout) Names() []string {
	out := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		out[i] = s.Name()
	}
	return out
}

// LoadTable calls every sink and joins their errors. Sinks are idempotent
// per station day, so a retry after a partial failure rewrites the sinks
// that already succeeded.
func (f *Fanout) LoadTable(ctx context.Context, t domain.FluxTable) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.LoadTable(ctx, t); err != nil {
			if f.metrics != nil {
				f.metrics.LoadFailures.WithLabelValues(s.Name()).Inc()
			}
			f.logger.Warn("sink write failed",
				"sink", s.Name(),
				"station", t.Station.Name,
				"day", t.Day.Format("2006-01-02"),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
