package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/config"
	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
	"github.com/kirillkom/dossier-summarizer/internal/core/summarization"
	"github.com/kirillkom/dossier-summarizer/internal/core/usecase"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/chunking"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/classifier/rules"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/extractor/document"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/resilience"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/dossier-summarizer/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Storage  *localfs.Storage
	Ledger   *usecase.CaseLedgerUseCase
	IngestUC *usecase.CaseIngestUseCase
	RunnerUC *usecase.CaseRunnerUseCase
	ReportUC *usecase.CaseReportUseCase
	// Model is the gated runtime the engine uses; warm-up goes through it too.
	Model   *usecase.ModelGate
	Metrics *metrics.WorkerMetrics

	// Queue is nil when NATS_URL is empty; resume requests then have to run
	// in-process.
	Queue *nats.Queue
	// Documents is nil without POSTGRES_DSN.
	Documents ports.DocumentFinder

	closeFn func()
}

// New wires the application. Postgres and NATS are optional: without them the
// case index is a directory scan and events stay in-process.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	workerMetrics := metrics.NewWorkerMetrics(service)
	executor := resilience.NewExecutor(resilienceConfig(cfg))
	executor.OnStateChange(workerMetrics.ObserveBreakerState)

	storage, err := localfs.New(cfg.CasesRoot)
	if err != nil {
		return nil, fmt.Errorf("init case storage: %w", err)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var index ports.CaseIndex = localfs.NewIndex(storage)
	var events eventFanout
	var documents ports.DocumentFinder
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		caseRepo := postgres.NewCaseRepository(db)
		if err := caseRepo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		docRepo := postgres.NewDocumentRepository(db)
		index = caseRepo
		documents = docRepo
		events = append(events, docRepo)
	}

	var queue *nats.Queue
	if strings.TrimSpace(cfg.NATSURL) != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, nats.Options{
			ResumeSubject:      cfg.NATSResumeSubject,
			EventsSubject:      cfg.NATSEventsSubject,
			ResilienceExecutor: executor,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
		events = append(events, queue)
	}

	templates, err := summarization.LoadTemplates(cfg.PromptsDir)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}

	allowed := allowedTypes(cfg.AllowedTypes)
	classifier := rules.NewWithRuleFile(allowed, cfg.RulesFile, slog.Default())
	extractor := document.NewExtractor()

	model := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
		Timeout:            cfg.OllamaTimeout(),
		AutoPull:           cfg.OllamaAutoPull,
		ResilienceExecutor: executor,
	})
	gate := usecase.NewModelGate(model)
	engine := summarization.NewEngine(
		gate,
		chunking.NewSplitter(cfg.SummaryMaxChunkChars),
		templates,
		summaryConfig(cfg),
		workerMetrics,
	)

	settings := domain.DefaultCaseSettings()
	settings.Model = cfg.OllamaGenModel

	ledger := usecase.NewCaseLedgerUseCase(storage, index, events, allowed)
	ingestUC := usecase.NewCaseIngestUseCase(ledger, storage, storage, extractor, classifier, settings)
	runnerUC := usecase.NewCaseRunnerUseCase(ledger, storage, engine, workerMetrics)
	runnerUC.SetDocumentTimeout(cfg.DocumentTimeout())
	reportUC := usecase.NewCaseReportUseCase(ledger, storage)

	slog.Info("app_ready",
		"cases_root", storage.BasePath(),
		"model", cfg.OllamaGenModel,
		"postgres", documents != nil,
		"nats", queue != nil,
	)

	return &App{
		Config:    cfg,
		Storage:   storage,
		Ledger:    ledger,
		IngestUC:  ingestUC,
		RunnerUC:  runnerUC,
		ReportUC:  reportUC,
		Model:     gate,
		Metrics:   workerMetrics,
		Queue:     queue,
		Documents: documents,
		closeFn:   closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// ResumeQueue returns the queue as a port, or nil when NATS is not configured.
func (a *App) ResumeQueue() ports.ResumeQueue {
	if a.Queue == nil {
		return nil
	}
	return a.Queue
}

func allowedTypes(configured []string) []string {
	if len(configured) == 0 {
		return append([]string(nil), domain.DefaultAllowedTypes...)
	}
	out := make([]string, 0, len(configured))
	for _, code := range configured {
		if code = domain.NormalizeTypeCode(code); code != "" && code != domain.TypeUnknown {
			out = append(out, code)
		}
	}
	return out
}

func summaryConfig(cfg config.Config) summarization.Config {
	out := summarization.DefaultConfig()
	out.ContextTokens = cfg.SummaryContextTokens
	out.MaxNewTokens = cfg.SummaryMaxNewTokens
	out.GroupSize = cfg.SummaryGroupSize
	out.MaxPartials = cfg.SummaryMaxPartials
	out.CharsPerToken = cfg.SummaryCharsPerToken
	out.Temperature = cfg.SummaryTemperature
	out.TopP = cfg.SummaryTopP
	out.RepetitionPenalty = cfg.SummaryRepetitionPenalty
	return out
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = time.Duration(cfg.ResilienceRetryInitialBackoffMS) * time.Millisecond
	out.RetryMaxBackoff = time.Duration(cfg.ResilienceRetryMaxBackoffMS) * time.Millisecond
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerOpenTimeoutSec) * time.Second
	return out
}
