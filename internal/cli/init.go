// Package cli provides common initialization for cmd/ledger and
// cmd/ledger-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	"ledger/internal/sheets/memory"
)

// SetupLogger builds the process logger at the given level and format
// (text or json), installs it as the slog default and returns it. Unknown
// levels fall back to info and unknown formats to text.
func SetupLogger(component, level, format string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	if lvl, err := log.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	if asJSON, err := log.ParseFormat(format); err == nil {
		cfg.JSON = asJSON
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is not an
// error.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

// LoadAndValidateConfig loads configuration and validates it.
// Exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// NewNotifier connects the AMQP event publisher. It returns a nil Notifier
// when AMQP is not configured or the broker cannot be reached; writes still
// succeed without it.
func NewNotifier(ctx context.Context, logger *log.Logger, cfg *config.Config) (ledger.Notifier, func()) {
	if cfg.AMQPURL == "" {
		logger.DebugContext(ctx, "AMQP disabled - no AMQP_URL provided")
		return nil, func() {}
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.WarnContext(ctx, "AMQP unavailable, ledger events will not be published", log.FieldError, err)
		return nil, func() {}
	}
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
	}
}

// OpenLedger opens the ledger described by cfg.
func OpenLedger(ctx context.Context, logger *log.Logger, cfg *config.Config, notifier ledger.Notifier) (*ledger.Ledger, error) {
	l := ledger.New(ledger.Options{
		DBPath:   cfg.DBPath,
		Importer: cfg.ImporterOptions(),
		Notifier: notifier,
	})
	if err := l.Open(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to open ledger", log.FieldError, err, log.FieldPath, cfg.DBPath)
		return nil, err
	}
	return l, nil
}

// NewExporter returns the Google Sheets exporter when a spreadsheet is
// configured and the in-memory exporter otherwise.
func NewExporter(ctx context.Context, logger *log.Logger, cfg *config.Config) (sheets.MonthExporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.InfoContext(ctx, "Google Sheets disabled - exporting to memory")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM, and a
// channel closed once cleanup has run or timeout has passed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}
