package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/resilience"
)

const defaultTimeout = 300 * time.Second

type Options struct {
	Timeout time.Duration
	// AutoPull downloads the model when the server does not have it yet.
	AutoPull           bool
	ResilienceExecutor *resilience.Executor
}

// Client is the model runtime backed by an Ollama server.
type Client struct {
	baseURL    string
	model      string
	autoPull   bool
	httpClient *http.Client
	executor   *resilience.Executor

	readyMu sync.Mutex
	ready   bool
}

func New(baseURL, model string) *Client {
	return NewWithOptions(baseURL, model, Options{})
}

func NewWithOptions(baseURL, model string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		autoPull:   opts.AutoPull,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.ResilienceExecutor,
	}
}

func (c *Client) Model() string {
	return c.model
}

// EnsureReady checks once that the model is present and pulls it when
// allowed. A successful check is remembered for the life of the client.
func (c *Client) EnsureReady(ctx context.Context) error {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	if c.ready {
		return nil
	}

	err := c.execute(ctx, "ollama.show", func(callCtx context.Context) error {
		var response struct {
			Details map[string]any `json:"details"`
		}
		return c.postJSON(callCtx, "/api/show", map[string]any{"model": c.model}, &response, "show")
	})
	if err != nil {
		var statusErr *HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
			return toRuntimeError("ensure model ready", err)
		}
		if !c.autoPull {
			return domain.WrapError(domain.ErrModelUnavailable, "ensure model ready", fmt.Errorf("model %s is not installed", c.model))
		}
		if err := c.pull(ctx); err != nil {
			return err
		}
	}

	c.ready = true
	slog.Info("model_ready", "model", c.model)
	return nil
}

func (c *Client) pull(ctx context.Context) error {
	slog.Info("model_pull_started", "model", c.model)
	start := time.Now()

	var response struct {
		Status string `json:"status"`
	}
	err := c.execute(ctx, "ollama.pull", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/pull", map[string]any{"model": c.model, "stream": false}, &response, "pull")
	})
	if err != nil {
		return toRuntimeError("pull model", err)
	}
	if !strings.EqualFold(strings.TrimSpace(response.Status), "success") {
		return domain.WrapError(domain.ErrModelUnavailable, "pull model", fmt.Errorf("unexpected pull status %q", response.Status))
	}
	slog.Info("model_pull_finished", "model", c.model, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (c *Client) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	request := buildGenerateRequest(c.model, prompt, opts)

	var response generateResponse
	err := c.execute(ctx, "ollama.generate", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", request, &response, "generate")
	})
	if err != nil {
		return "", toRuntimeError("generate", err)
	}
	if response.Error != "" {
		return "", toRuntimeError("generate", errors.New(response.Error))
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyOllamaError)
}
