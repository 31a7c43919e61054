// Package main provides the prescription timeout monitor entry point.
// Runs as its own process next to the API; PostgreSQL is the only shared
// state between the two.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/config"
	"github.com/santemarket/pharma-backend/internal/events"
	"github.com/santemarket/pharma-backend/internal/monitor"
	"github.com/santemarket/pharma-backend/internal/notify"
	"github.com/santemarket/pharma-backend/internal/observability/metrics"
	"github.com/santemarket/pharma-backend/internal/observability/tracing"
	"github.com/santemarket/pharma-backend/internal/store/postgres"
	"github.com/santemarket/pharma-backend/pkg/workerpool"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	tracingCfg := tracing.DefaultConfig("timeout-monitor")
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := tracing.Init(context.Background(), tracingCfg)
	if err != nil {
		logger.Warn("tracing init failed, continuing without export", zap.Error(err))
	} else {
		defer provider.Shutdown(context.Background())
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var publisher notify.EventPublisher
	producerCfg := events.DefaultProducerConfig()
	producerCfg.Brokers = cfg.Brokers
	producer, err := events.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Warn("event producer unavailable, stream publishing disabled", zap.Error(err))
	} else {
		defer producer.Close()
		publisher = producer
	}

	dispatchPool := workerpool.New(workerpool.DefaultConfig(), logger)
	dispatchPool.Start()
	defer dispatchPool.Stop()

	prescriptionStore := postgres.NewPrescriptionStore(pool, logger)
	notificationStore := postgres.NewNotificationStore(pool)
	notifier := notify.NewService(notificationStore, publisher, dispatchPool, m.NotificationsCreated, logger)

	mon := monitor.New(prescriptionStore, notifier, monitor.Config{
		Interval:     cfg.MonitorInterval,
		ErrorBackoff: cfg.MonitorErrorBackoff,
	}, m, logger)

	// Metrics endpoint on its own listener; the monitor serves no API.
	metricsServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	mon.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	mon.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
}
