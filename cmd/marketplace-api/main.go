// Package main provides the marketplace API service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/santemarket/pharma-backend/internal/api/handlers"
	"github.com/santemarket/pharma-backend/internal/api/middleware"
	"github.com/santemarket/pharma-backend/internal/blob"
	"github.com/santemarket/pharma-backend/internal/config"
	"github.com/santemarket/pharma-backend/internal/domain/cart"
	"github.com/santemarket/pharma-backend/internal/domain/prescription"
	"github.com/santemarket/pharma-backend/internal/events"
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

	// Tracing
	tracingCfg := tracing.DefaultConfig("marketplace-api")
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := tracing.Init(context.Background(), tracingCfg)
	if err != nil {
		logger.Warn("tracing init failed, continuing without export", zap.Error(err))
	} else {
		defer provider.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("database ping failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Event stream. The API stays up when Kafka is down; notifications
	// degrade to durable rows only.
	var publisher notify.EventPublisher
	producer, err := events.NewProducer(producerConfig(cfg), logger)
	if err != nil {
		logger.Warn("event producer unavailable, stream publishing disabled", zap.Error(err))
	} else {
		defer producer.Close()
		publisher = producer
		ensureTopics(cfg, logger)
	}

	// Notification dispatch pool
	dispatchPool := workerpool.New(workerpool.DefaultConfig(), logger)
	dispatchPool.Start()
	defer dispatchPool.Stop()

	// Stores
	prescriptionStore := postgres.NewPrescriptionStore(pool, logger)
	catalogStore := postgres.NewCatalogStore(pool)
	cartStore := postgres.NewCartStore(pool)
	notificationStore := postgres.NewNotificationStore(pool)

	blobStore, err := blob.NewDiskStore(cfg.UploadDir, logger)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	// Services
	notifier := notify.NewService(notificationStore, publisher, dispatchPool, m.NotificationsCreated, logger)

	prescriptionService := prescription.NewService(
		prescriptionStore, catalogStore, blobStore, notifier,
		prescription.Config{
			ValidationTimeout: cfg.ValidationTimeout,
			PrescriptionTTL:   cfg.PrescriptionTTL,
		}, logger)

	cartService := cart.NewService(
		cartStore, catalogStore, notifier,
		cart.ServiceConfig{
			DeliveryFee:   cfg.DeliveryFee,
			FallbackPrice: cfg.FallbackPrice,
		}, m.InventoryPriceFallback, logger)

	// Handlers
	prescriptionHandler := handlers.NewPrescriptionHandler(prescriptionService, m, logger)
	cartHandler := handlers.NewCartHandler(cartService, m, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationStore, logger)

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("marketplace-api"))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Mount("/prescriptions", prescriptionHandler.Routes())
		r.Mount("/cart", cartHandler.Routes())
		r.Mount("/notifications", notificationHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting marketplace API", zap.String("port", cfg.Port))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func producerConfig(cfg config.Config) events.ProducerConfig {
	pc := events.DefaultProducerConfig()
	pc.Brokers = cfg.Brokers
	return pc
}

func ensureTopics(cfg config.Config, logger *zap.Logger) {
	admin, err := events.NewAdmin(cfg.Brokers, logger)
	if err != nil {
		logger.Warn("topic admin unavailable", zap.Error(err))
		return
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := admin.EnsureTopics(ctx); err != nil {
		logger.Warn("topic creation failed", zap.Error(err))
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"marketplace-api","version":"1.0.0"}`)
}
