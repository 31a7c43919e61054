// Package monitor runs the prescription timeout loop: it periodically expires
// pending requests whose validation window elapsed and notifies their owners.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/notify"
	"github.com/santemarket/pharma-backend/internal/observability/metrics"
)

// ExpiredRequest describes one request the store transitioned to expired,
// with the names needed for the user-facing message.
type ExpiredRequest struct {
	RequestID    string
	UserID       string
	PharmacyName string
	ProductName  string
}

// Store is the monitor's view of the prescription store. ExpireDue must
// transition every due pending request inside a single transaction, using a
// conditional update per row so a concurrent pharmacist validation loses
// cleanly, and return only the rows it actually transitioned.
type Store interface {
	ExpireDue(ctx context.Context, now time.Time) ([]ExpiredRequest, error)
}

// Config holds the monitor cadence.
type Config struct {
	// Interval is the nominal polling cadence.
	Interval time.Duration
	// ErrorBackoff replaces Interval for one tick after a failed cycle.
	ErrorBackoff time.Duration
}

// DefaultConfig returns the nominal 30s cadence with 60s error backoff.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		ErrorBackoff: 60 * time.Second,
	}
}

// Monitor is the timeout loop. One instance per process; across processes
// the store's transaction-level lock keeps expiration single-owner.
type Monitor struct {
	store    Store
	notifier notify.Notifier
	config   Config
	logger   *zap.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. metrics may be nil.
func New(store Store, notifier notify.Notifier, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultConfig().ErrorBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		store:    store,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		tracer:   otel.Tracer("timeout-monitor"),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the loop.
func (m *Monitor) Start() {
	go m.run()
	m.logger.Info("timeout monitor started",
		zap.Duration("interval", m.config.Interval),
		zap.Duration("error_backoff", m.config.ErrorBackoff))
}

// Stop signals the loop and waits for the in-flight cycle to finish.
// The stop signal is checked between cycles, never mid-cycle.
func (m *Monitor) Stop() {
	m.cancel()
	<-m.done
	m.logger.Info("timeout monitor stopped")
}

func (m *Monitor) run() {
	defer close(m.done)

	timer := time.NewTimer(m.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
			if err := m.cycle(); err != nil {
				m.logger.Error("timeout monitor cycle failed", zap.Error(err))
				if m.metrics != nil {
					m.metrics.MonitorCycleErrors.Inc()
				}
				timer.Reset(m.config.ErrorBackoff)
			} else {
				timer.Reset(m.config.Interval)
			}
		}
	}
}

// cycle expires every due request in one store transaction, then emits the
// client notifications. The cycle either commits whole or rolls back whole;
// notifications follow after commit and are best-effort.
func (m *Monitor) cycle() error {
	ctx, span := m.tracer.Start(m.ctx, "timeout_monitor_cycle")
	defer span.End()

	start := time.Now()
	expired, err := m.store.ExpireDue(ctx, time.Now().UTC())
	if m.metrics != nil {
		m.metrics.MonitorCycleDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("expire due requests: %w", err)
	}

	if len(expired) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("expired_count", len(expired)))
	m.logger.Info("expired prescription requests", zap.Int("count", len(expired)))
	if m.metrics != nil {
		m.metrics.PrescriptionsExpired.Add(float64(len(expired)))
	}

	for _, e := range expired {
		m.notifyExpired(ctx, e)
	}
	return nil
}

func (m *Monitor) notifyExpired(ctx context.Context, e ExpiredRequest) {
	if m.notifier == nil {
		return
	}
	message := fmt.Sprintf(
		"Votre demande de prescription pour \"%s\" a expiré. La pharmacie %s n'a pas répondu dans les délais. Vous pouvez essayer avec une autre pharmacie.",
		e.ProductName, e.PharmacyName)

	err := m.notifier.Notify(ctx, e.UserID,
		"Prescription expirée",
		message,
		notify.TypePrescriptionExpired,
		map[string]any{
			"prescription_request_id": e.RequestID,
			"pharmacy_name":           e.PharmacyName,
			"product_name":            e.ProductName,
			"action":                  "expired",
		})
	if err != nil {
		m.logger.Warn("expiration notification failed",
			zap.String("request_id", e.RequestID),
			zap.Error(err))
	}
}
