package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	// The worker only reads; it publishes nothing.
	l, err := cli.OpenLedger(context.Background(), logger, cfg, nil)
	if err != nil {
		os.Exit(1)
	}

	exporter, err := cli.NewExporter(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", log.FieldError, err)
		l.Close()
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		l.Close()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
		if err := l.Close(); err != nil {
			logger.Warn("Failed to close ledger", log.FieldError, err)
		}
	})
	ctx = log.NewContext(ctx, logger)

	w := worker.NewExportWorker(l, exporter)

	logger.InfoContext(ctx, "Performing startup export", log.FieldOperation, log.OpStartup)
	if err := w.StartupExport(ctx); err != nil {
		// Left pending; the periodic retry picks it up.
		logger.ErrorContext(ctx, "Startup export failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeLedgerEvents(gctx, w.HandleEvent)
	})
	g.Go(func() error {
		w.Run(gctx, cfg.ExportInterval)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(ctx, "Worker stopped", log.FieldError, err)
	}

	<-done
}
