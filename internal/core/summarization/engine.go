package summarization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

const (
	stageMap    = "map"
	stageReduce = "reduce"
)

// Observer receives engine measurements. Implementations must be cheap.
type Observer interface {
	ObserveModelCall(stage string, duration time.Duration, err error)
	ObserveOverflow(stage string, contextTokens int)
	ObserveReduceRounds(rounds int)
}

type noopObserver struct{}

func (noopObserver) ObserveModelCall(string, time.Duration, error) {}
func (noopObserver) ObserveOverflow(string, int)                   {}
func (noopObserver) ObserveReduceRounds(int)                       {}

// Engine summarizes one document with a chunk-and-reduce strategy.
type Engine struct {
	runtime   ports.ModelRuntime
	chunker   ports.Chunker
	templates *Templates
	fitter    PromptFitter
	cfg       Config
	observer  Observer

	mu            sync.Mutex
	contextTokens int
}

func NewEngine(
	runtime ports.ModelRuntime,
	chunker ports.Chunker,
	templates *Templates,
	cfg Config,
	observer Observer,
) *Engine {
	cfg = cfg.normalize()
	if observer == nil {
		observer = noopObserver{}
	}
	return &Engine{
		runtime:       runtime,
		chunker:       chunker,
		templates:     templates,
		fitter:        NewPromptFitter(cfg),
		cfg:           cfg,
		observer:      observer,
		contextTokens: cfg.ContextTokens,
	}
}

// ContextTokens is the working budget. It only shrinks, and the reduction
// outlives the call that triggered it.
func (e *Engine) ContextTokens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contextTokens
}

func (e *Engine) shrinkContext(tokens int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tokens < e.contextTokens {
		e.contextTokens = tokens
	}
	return e.contextTokens
}

func (e *Engine) Summarize(ctx context.Context, docType, text string) (string, error) {
	body := TruncateForType(docType, Sanitize(text))
	chunks := e.chunker.Split(body)
	if len(chunks) == 0 {
		return e.cfg.NoTextResult, nil
	}

	if err := e.runtime.EnsureReady(ctx); err != nil {
		return "", e.classify("prepare model", err)
	}

	template := e.templates.For(docType)
	partials := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		partial, err := e.mapChunk(ctx, template, chunk)
		if err != nil {
			return "", fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		partials = append(partials, partial)
	}

	if len(partials) > e.cfg.MaxPartials {
		slog.Debug("summary_partials_capped", "doc_type", docType, "partials", len(partials), "max", e.cfg.MaxPartials)
		partials = partials[:e.cfg.MaxPartials]
	}

	summary, rounds, err := e.reduce(ctx, partials)
	if err != nil {
		return "", err
	}
	e.observer.ObserveReduceRounds(rounds)
	return summary, nil
}

func (e *Engine) mapChunk(ctx context.Context, template, chunk string) (string, error) {
	prompt := e.fitter.Fit(e.cfg.SystemPrompt, template, chunk, e.ContextTokens())
	out, err := e.generate(ctx, stageMap, prompt, e.cfg.MaxNewTokens)
	if err != nil {
		if !IsContextOverflow(err) {
			return "", e.classify("map chunk", err)
		}
		budget := e.onOverflow(stageMap, err)
		prompt = e.fitter.Fit(e.cfg.SystemPrompt, template, chunk, budget)
		out, err = e.generate(ctx, stageMap, prompt, e.cfg.OverflowMaxNewTokens)
		if err != nil {
			return "", e.classify("map chunk after overflow", err)
		}
	}
	return CleanEcho(out), nil
}

// reduce compresses partials group by group until one summary remains and
// reports the number of rounds it took.
func (e *Engine) reduce(ctx context.Context, partials []string) (string, int, error) {
	rounds := 0
	for len(partials) > 1 {
		rounds++
		next := make([]string, 0, len(partials)/e.cfg.GroupSize+1)
		for start := 0; start < len(partials); start += e.cfg.GroupSize {
			end := start + e.cfg.GroupSize
			if end > len(partials) {
				end = len(partials)
			}
			merged, err := e.reduceGroup(ctx, partials[start:end])
			if err != nil {
				return "", rounds, fmt.Errorf("reduce round %d: %w", rounds, err)
			}
			next = append(next, merged)
		}
		partials = next
	}
	return partials[0], rounds, nil
}

func (e *Engine) reduceGroup(ctx context.Context, group []string) (string, error) {
	budget := e.ContextTokens()
	prompt := reducePrompt(e.cfg.SystemPrompt, group)
	if e.fitter.EstimateTokens(prompt) > int(float64(budget)*e.cfg.BudgetRatio) {
		group = halve(group)
		prompt = fallbackReducePrompt(e.cfg.SystemPrompt, group)
	}

	out, err := e.generate(ctx, stageReduce, prompt, e.cfg.MaxNewTokens)
	if err != nil {
		if !IsContextOverflow(err) {
			return "", e.classify("reduce group", err)
		}
		e.onOverflow(stageReduce, err)
		prompt = fallbackReducePrompt(e.cfg.SystemPrompt, halve(group))
		out, err = e.generate(ctx, stageReduce, prompt, e.cfg.OverflowMaxNewTokens)
		if err != nil {
			return "", e.classify("reduce group after overflow", err)
		}
	}
	return CleanEcho(out), nil
}

func (e *Engine) onOverflow(stage string, err error) int {
	tier := OverflowTier(err, e.cfg.FallbackContextTokens)
	budget := e.shrinkContext(tier)
	e.observer.ObserveOverflow(stage, budget)
	slog.Warn("context_overflow_retry", "stage", stage, "context_tokens", budget, "error", err)
	return budget
}

func (e *Engine) generate(ctx context.Context, stage, prompt string, maxNewTokens int) (string, error) {
	opts := domain.GenerateOptions{
		MaxNewTokens:      maxNewTokens,
		Temperature:       e.cfg.Temperature,
		TopP:              e.cfg.TopP,
		RepetitionPenalty: e.cfg.RepetitionPenalty,
		Stop:              e.cfg.Stop,
		ContextTokens:     e.ContextTokens(),
	}
	start := time.Now()
	out, err := e.runtime.Generate(ctx, prompt, opts)
	e.observer.ObserveModelCall(stage, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// classify maps runtime failures onto the two failure kinds callers see.
func (e *Engine) classify(operation string, err error) error {
	switch {
	case errors.Is(err, domain.ErrModelUnavailable), errors.Is(err, domain.ErrGenerationFailed):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.WrapError(domain.ErrGenerationFailed, operation, err)
	}
}

// IsContextOverflow recognises a context-length failure by type or by message.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrContextOverflow) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "maximum context length") || strings.Contains(msg, "context length exceeded")
}

// OverflowTier picks the reduced budget named by the failure message.
func OverflowTier(err error, fallback int) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "512"):
		return 512
	case strings.Contains(msg, "1024"):
		return 1024
	default:
		return fallback
	}
}
