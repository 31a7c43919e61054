// Package metrics provides Prometheus metrics for the marketplace core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics.
type Metrics struct {
	PrescriptionsCreated   prometheus.Counter
	PrescriptionsValidated *prometheus.CounterVec
	PrescriptionsExpired   prometheus.Counter
	MonitorCycleDuration   prometheus.Histogram
	MonitorCycleErrors     prometheus.Counter
	InventoryPriceFallback prometheus.Counter
	CartValidations        prometheus.Counter
	OrdersCreated          prometheus.Counter
	NotificationsCreated   prometheus.Counter
}

// New creates and registers all metrics on the given registerer;
// prometheus.DefaultRegisterer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PrescriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_requests_created_total",
			Help: "Total prescription requests created",
		}),
		PrescriptionsValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescription_requests_validated_total",
			Help: "Total prescription requests validated by pharmacists",
		}, []string{"action"}),
		PrescriptionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_requests_expired_total",
			Help: "Total prescription requests expired by the timeout monitor",
		}),
		MonitorCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timeout_monitor_cycle_duration_seconds",
			Help:    "Timeout monitor cycle duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		MonitorCycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timeout_monitor_cycle_errors_total",
			Help: "Timeout monitor cycles aborted by an error",
		}),
		InventoryPriceFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_price_fallback_total",
			Help: "Cart lines priced with the sentinel fallback because no inventory row matched",
		}),
		CartValidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cart_delivery_validations_total",
			Help: "Total cart delivery validations",
		}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total orders created from carts",
		}),
		NotificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total user notifications created",
		}),
	}

	reg.MustRegister(
		m.PrescriptionsCreated,
		m.PrescriptionsValidated,
		m.PrescriptionsExpired,
		m.MonitorCycleDuration,
		m.MonitorCycleErrors,
		m.InventoryPriceFallback,
		m.CartValidations,
		m.OrdersCreated,
		m.NotificationsCreated,
	)

	return m
}
