package main

import (
	"fmt"
	"os"
	"time"

	"agencyledger/internal/cli"
	"agencyledger/internal/config"
	"agencyledger/internal/log"
	"agencyledger/internal/metrics"
	"agencyledger/internal/services"
)

const stopTimeout = 10 * time.Second

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentWorker)
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	if cfg.DataBackend != "sqlite" {
		logger.Warn("reminder-worker is running against a private memory store; reminders will not reach the API")
	}

	logger.Info("Starting reminder-worker",
		"interval", cfg.ReminderInterval,
		"batch_size", cfg.ReminderBatchSize)
	if err := run(cfg, logger); err != nil {
		logger.Error("reminder-worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("reminder-worker stopped")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backend, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer backend.Cleanup()

	pcfg := services.DefaultReminderProcessorConfig()
	pcfg.Interval = cfg.ReminderInterval
	pcfg.BatchSize = cfg.ReminderBatchSize

	processor := services.NewReminderProcessor(backend.Store, pcfg,
		services.WithLogger(logger),
		services.WithMetrics(metrics.New()))
	if err := processor.Start(ctx); err != nil {
		return fmt.Errorf("start reminder processor: %w", err)
	}

	<-ctx.Done()

	stopCtx, done := cli.ShutdownContext(stopTimeout)
	defer done()
	return processor.Stop(stopCtx)
}
