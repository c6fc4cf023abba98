package usecase

import (
	"context"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

// ModelGate lets one model call run at a time across the process, the
// readiness check included. Waiting callers give up when their context ends.
type ModelGate struct {
	runtime ports.ModelRuntime
	slot    chan struct{}
}

func NewModelGate(runtime ports.ModelRuntime) *ModelGate {
	return &ModelGate{
		runtime: runtime,
		slot:    make(chan struct{}, 1),
	}
}

func (g *ModelGate) acquire(ctx context.Context) error {
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *ModelGate) release() {
	<-g.slot
}

func (g *ModelGate) EnsureReady(ctx context.Context) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()
	return g.runtime.EnsureReady(ctx)
}

func (g *ModelGate) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	if err := g.acquire(ctx); err != nil {
		return "", err
	}
	defer g.release()
	return g.runtime.Generate(ctx, prompt, opts)
}
