package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// ErrIndexUnavailable is returned without calling the engine while the
// breaker is open or its half-open request quota is used up.
var ErrIndexUnavailable = errors.New("search index unavailable")

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// Name identifies this breaker in metrics and logs.
	Name string

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing counts.
	// 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureRatio trips the breaker once at least MinRequests were seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the defaults used for the index client.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

// stateToFloat maps gobreaker states to prometheus gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Breaker wraps an Engine with a circuit breaker so a failing index is
// not hammered by every write. Ping bypasses the breaker.
type Breaker struct {
	next    Engine
	breaker *gobreaker.CircuitBreaker[struct{}]
	name    string
}

var _ Engine = (*Breaker)(nil)

// NewBreaker wraps next. Canceled calls are not counted at all.
func NewBreaker(next Engine, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	}

	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &Breaker{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		name:    cfg.Name,
	}
}

// Index implements Engine.
func (b *Breaker) Index(ctx context.Context, doc *Document) error {
	return b.run(func() error { return b.next.Index(ctx, doc) })
}

// Delete implements Engine.
func (b *Breaker) Delete(ctx context.Context, id string) error {
	return b.run(func() error { return b.next.Delete(ctx, id) })
}

// BulkIndex implements Engine.
func (b *Breaker) BulkIndex(ctx context.Context, docs []Document) error {
	return b.run(func() error { return b.next.BulkIndex(ctx, docs) })
}

// PurgeStale implements Engine.
func (b *Breaker) PurgeStale(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := b.run(func() error {
		var err error
		n, err = b.next.PurgeStale(ctx, cutoff)
		return err
	})
	return n, err
}

// Ping implements Engine.
func (b *Breaker) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

func (b *Breaker) run(fn func() error) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: breaker %s: %w", ErrIndexUnavailable, b.name, err)
	}
	return err
}
