// Package circuitbreaker wraps sony/gobreaker for outbound best-effort calls,
// with zap state-change logging and OpenTelemetry counters.
package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Config holds circuit breaker configuration.
type Config struct {
	// Name identifies the breaker in logs and metrics.
	Name string
	// MaxRequests is max requests allowed through while half-open.
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration
	// Timeout is how long to stay open before probing half-open.
	Timeout time.Duration
	// FailureRatio opens the breaker once exceeded over MinRequests.
	FailureRatio float64
	// MinRequests is the minimum sample before FailureRatio applies.
	MinRequests uint32
}

// DefaultConfig returns defaults suitable for the notification event stream.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  10,
	}
}

// CircuitBreaker guards an outbound dependency.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *zap.Logger

	requestCounter metric.Int64Counter
	failureCounter metric.Int64Counter
}

// New creates a circuit breaker.
func New(cfg Config, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &CircuitBreaker{name: cfg.Name, logger: logger}

	meter := otel.Meter("circuit-breaker")
	b.requestCounter, _ = meter.Int64Counter("circuit_breaker_requests_total",
		metric.WithDescription("Total requests through circuit breaker"))
	b.failureCounter, _ = meter.Int64Counter("circuit_breaker_failures_total",
		metric.WithDescription("Total failed requests"))

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return b
}

// Execute runs fn through the breaker.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	attrs := metric.WithAttributes(attribute.String("breaker", b.name))
	b.requestCounter.Add(ctx, 1, attrs)

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		b.failureCounter.Add(ctx, 1, attrs)
	}
	return err
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}
