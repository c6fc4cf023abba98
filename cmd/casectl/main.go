package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/dossier-summarizer/internal/adapters/cli"
	"github.com/kirillkom/dossier-summarizer/internal/bootstrap"
	"github.com/kirillkom/dossier-summarizer/internal/config"
	"github.com/kirillkom/dossier-summarizer/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout belongs to command output and the MCP transport.
	logging.Setup(os.Stderr, "casectl", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "casectl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "casectl: %v\n", err)
		os.Exit(1)
	}

	cli.Configure(cli.Services{
		Ingest:    app.IngestUC,
		Ledger:    app.Ledger,
		Runner:    app.RunnerUC,
		Reports:   app.ReportUC,
		Documents: app.Documents,
	})
	err = cli.Execute(ctx)
	app.Close()
	if err != nil {
		os.Exit(1)
	}
}
