package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"agencyledger/internal/amqp"
	"agencyledger/internal/cli"
	"agencyledger/internal/config"
	"agencyledger/internal/log"
	"agencyledger/internal/metrics"
	"agencyledger/internal/worker"
)

var errNeedsSQLite = errors.New("ledger-worker requires DATA_BACKEND=sqlite: the audit trail must be shared with the API")

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentWorker)
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	if cfg.AMQPURL == "" {
		cli.Fatal(logger, "Configuration validation failed", errors.New("AMQP_URL is required"))
	}
	if cfg.DataBackend != "sqlite" {
		cli.Fatal(logger, "Configuration validation failed", errNeedsSQLite)
	}

	logger.Info("Starting ledger-worker", "queue", cfg.AMQPQueue, "sqlite_db", cfg.SQLiteDBPath)
	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ledger-worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("ledger-worker stopped")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backend, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer backend.Cleanup()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		amqp.WithLogger(logger), amqp.WithMetrics(metrics.New()))
	if err != nil {
		return fmt.Errorf("connect to AMQP: %w", err)
	}

	audit := worker.NewAuditWorker(backend.Store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeLedgerEvents(gctx, audit.HandleLedgerEvent)
	})
	g.Go(func() error {
		<-gctx.Done()
		return client.Close()
	})
	return g.Wait()
}
