package main

import (
	"context"
	"fmt"
	"os"

	"ledger/internal/cli"
	"ledger/internal/log"
)

const usage = `usage: ledger <command> [flags]

commands:
  import      import Alipay CSV exports
  add         add a record
  update      replace a record
  delete      delete a record
  report      print a day, week, month or year report as JSON
  export      export a month to the configured spreadsheet
  categories  list categories and transaction methods
`

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentCLI, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := log.NewContext(context.Background(), logger)
	notifier, closeNotifier := cli.NewNotifier(ctx, logger, cfg)
	defer closeNotifier()

	l, err := cli.OpenLedger(ctx, logger, cfg, notifier)
	if err != nil {
		closeNotifier()
		os.Exit(1)
	}
	defer l.Close()

	a := &app{
		ledger: l,
		out:    os.Stdout,
		newExporter: func(ctx context.Context) (exporter, error) {
			return cli.NewExporter(ctx, logger, cfg)
		},
	}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		logger.ErrorContext(ctx, "Command failed", log.FieldOperation, os.Args[1], log.FieldError, err)
		l.Close()
		closeNotifier()
		os.Exit(1)
	}
}
