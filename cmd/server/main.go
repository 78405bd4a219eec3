package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/carpool-engine/internal/config"
	"github.com/example/carpool-engine/internal/dispatch"
	"github.com/example/carpool-engine/internal/escrow"
	"github.com/example/carpool-engine/internal/geo"
	httpapi "github.com/example/carpool-engine/internal/http"
	"github.com/example/carpool-engine/internal/ingest"
	"github.com/example/carpool-engine/internal/lifecycle"
	"github.com/example/carpool-engine/internal/logging"
	"github.com/example/carpool-engine/internal/observability"
	"github.com/example/carpool-engine/internal/pipeline"
	"github.com/example/carpool-engine/internal/routing"
	"github.com/example/carpool-engine/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if err := runMigrations(cfg.PGDSN); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	var store storage.ReservationStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory reservation store")
		store = storage.NewMemoryStore()
	}

	var index pipeline.GeoIndex
	if cfg.RedisAddr != "" {
		index = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	}

	sink := observability.NewSink(logging.WithComponent(logger, "monitor"))

	var provider routing.Client
	switch {
	case cfg.GoogleMapsKey != "":
		mc, err := routing.NewMapsClient(cfg.GoogleMapsKey)
		if err != nil {
			logger.Error("maps client init failed", "error", err)
			os.Exit(1)
		}
		provider = mc
	case cfg.OSRMEndpoint != "":
		provider = routing.NewOSRMClient(cfg.OSRMEndpoint, cfg.Matching.RouteCallTimeout)
	default:
		logger.Warn("no routing endpoint configured, using static estimator")
		provider = routing.StaticEstimator{SpeedMps: cfg.DefaultSpeedMps}
	}

	enricher := routing.NewEnricher(provider, routing.NewCache(cfg.Matching.EnrichCacheTTL), sink)
	enricher.Concurrency = cfg.Matching.EnrichConcurrency
	enricher.CallTimeout = cfg.Matching.RouteCallTimeout
	enricher.RetryBase = cfg.Matching.RetryBase

	pipe := &pipeline.Service{
		Store:    store,
		Enricher: enricher,
		Index:    index,
		Cfg:      cfg.Matching,
		Logger:   logging.WithComponent(logger, "pipeline"),
	}

	var coordinator escrow.Coordinator
	if key := os.Getenv("STRIPE_API_KEY"); key != "" {
		coordinator = escrow.NewStripeCoordinator(key, cfg.Pricing.Currency)
	} else {
		logger.Warn("STRIPE_API_KEY not set, using in-memory escrow")
		coordinator = escrow.NewMemoryCoordinator()
	}

	var events lifecycle.EventPublisher
	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		events = producer
	}

	wsreg := dispatch.NewWSRegistry()
	manager := &lifecycle.Manager{
		Store:    store,
		Pipeline: pipe,
		Escrow:   coordinator,
		Notifier: wsreg,
		Events:   events,
		Logger:   logging.WithComponent(logger, "lifecycle"),
		Sink:     sink,
		Pricing:  cfg.Pricing,
	}

	srv := httpapi.NewServer(manager, wsreg, logging.WithComponent(logger, "http"))
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("carpool engine listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if producer != nil {
		_ = producer.Close()
	}
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_reservations.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
