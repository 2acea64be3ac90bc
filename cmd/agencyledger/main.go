package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"agencyledger/internal/amqp"
	"agencyledger/internal/auth"
	"agencyledger/internal/cache"
	"agencyledger/internal/cli"
	"agencyledger/internal/config"
	apphttp "agencyledger/internal/http"
	"agencyledger/internal/ledger"
	"agencyledger/internal/log"
	"agencyledger/internal/metrics"
	"agencyledger/internal/services"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = 5 * time.Minute
)

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentApp)
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backend, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Failed to close ledger store", log.FieldError, err)
		}
	}()

	m := metrics.New()
	publisher, closePublisher := newPublisher(cfg, backend.Store, logger, m)
	defer closePublisher()

	revocations := auth.NewMemoryRevocations()
	caches := cache.NewManager(logger)
	caches.Register(revocations.Cleaner())
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	svc := apphttp.NewServices(backend.Store,
		services.WithLogger(logger),
		services.WithMetrics(m),
		services.WithPublisher(publisher))

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               cfg.Addr(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Backend:            cfg.DataBackend,
		Logger:             logger,
		Metrics:            m,
		Auth:               auth.NewAuthenticator(auth.NewSigner(cfg.AuthSecret), revocations, logger),
	}, svc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting agencyledger server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"amqp_enabled", cfg.AMQPURL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := cli.ShutdownContext(shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newPublisher sends ledger events to AMQP when configured and records them
// directly in the store otherwise, or when the broker is unreachable.
func newPublisher(cfg *config.Config, store ledger.EventStore, logger *log.Logger, m *metrics.Metrics) (services.Publisher, func()) {
	recorder := services.NewEventRecorder(store)
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, recording ledger events in-process")
		return recorder, func() {}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		amqp.WithLogger(logger), amqp.WithMetrics(m))
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, recording ledger events in-process", log.FieldError, err)
		return recorder, func() {}
	}
	logger.Info("Initialized AMQP publisher", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close AMQP client", log.FieldError, err)
		}
	}
}

