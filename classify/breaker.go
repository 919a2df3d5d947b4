package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerOptions configures the circuit breaker wrapped around a
// classification provider.
type BreakerOptions struct {
	// Name identifies the breaker in logs (default: "relation-classifier").
	Name string

	// MaxRequests is how many probe requests pass while half-open
	// (default: 1).
	MaxRequests uint32

	// Interval is the cyclic period for clearing failure counts while
	// closed (default: 60s).
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing
	// (default: 30s).
	Timeout time.Duration

	// ConsecutiveFailures is the trip threshold (default: 5).
	ConsecutiveFailures uint32

	// Logger receives state-change events. Defaults to slog.Default.
	Logger *slog.Logger
}

// BreakerProvider wraps another Provider with a circuit breaker so that a
// struggling model backend fails fast instead of stalling every batch.
// While the circuit is open, calls return ErrUnavailable immediately.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps the given provider with a circuit breaker.
func NewBreakerProvider(inner Provider, opts BreakerOptions) *BreakerProvider {
	if opts.Name == "" {
		opts.Name = "relation-classifier"
	}
	if opts.MaxRequests == 0 {
		opts.MaxRequests = 1
	}
	if opts.Interval == 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("classification breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// A cancelled context is the caller's doing, not the
			// provider's.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerProvider{
		inner:   inner,
		breaker: cb,
	}
}

// ClassifyRelation delegates to the wrapped provider through the breaker.
func (p *BreakerProvider) ClassifyRelation(ctx context.Context, source, target string, similarity float64) (Decision, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		return p.inner.ClassifyRelation(ctx, source, target, similarity)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Decision{}, fmt.Errorf("circuit %s: %w", p.breaker.Name(), ErrUnavailable)
		}
		return Decision{}, err
	}

	decision, ok := result.(Decision)
	if !ok {
		return Decision{}, fmt.Errorf("%w: unexpected result type %T", ErrInvalidDecision, result)
	}
	return decision, nil
}

// State reports the breaker's current state.
func (p *BreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}
