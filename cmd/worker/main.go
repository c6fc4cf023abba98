package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/bootstrap"
	"github.com/kirillkom/dossier-summarizer/internal/config"
	"github.com/kirillkom/dossier-summarizer/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logging.Setup(os.Stdout, "worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux(app),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := app.Model.EnsureReady(ctx); err != nil {
		slog.Warn("model_not_ready", "model", cfg.OllamaGenModel, "error", err)
	}

	if cfg.WorkerResumeOnStart {
		resumePending(ctx, app)
	}

	if app.Queue == nil {
		slog.Info("worker_idle", "reason", "NATS_URL is not set")
		<-ctx.Done()
		return
	}

	err = app.Queue.SubscribeResumeRequests(ctx, func(handlerCtx context.Context, caseID string) error {
		report, err := app.RunnerUC.Resume(handlerCtx, caseID)
		app.Metrics.ObserveResumeRequest(err)
		if err != nil {
			return err
		}
		slog.Info("case_resume_finished",
			"case_id", caseID,
			"summarized", report.Summarized,
			"failed", report.Failed,
			"remaining", report.Remaining,
			"canceled", report.Canceled,
		)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func metricsMux(app *bootstrap.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// resumePending picks up committed cases that still have open documents,
// including ones left mid-summary by a previous process.
func resumePending(ctx context.Context, app *bootstrap.App) {
	cases, err := app.Ledger.List(ctx)
	if err != nil {
		slog.Error("resume_pending_list_failed", "error", err)
		return
	}
	for _, summary := range cases {
		if ctx.Err() != nil {
			return
		}
		if !summary.Committed || summary.Summarized+summary.Failed+summary.Skipped >= summary.Total {
			continue
		}
		report, err := app.RunnerUC.Resume(ctx, summary.CaseID)
		app.Metrics.ObserveResumeRequest(err)
		if err != nil {
			slog.Error("resume_pending_failed", "case_id", summary.CaseID, "error", err)
			continue
		}
		slog.Info("resume_pending_finished", "case_id", summary.CaseID, "summarized", report.Summarized, "failed", report.Failed)
	}
}
