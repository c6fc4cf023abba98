package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/dossier-summarizer/internal/config"
	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

type publisherFake struct {
	calls int
	err   error
}

func (p *publisherFake) PublishDocumentEvent(context.Context, domain.DocumentEvent) error {
	p.calls++
	return p.err
}

func TestEventFanoutDeliversToEverySink(t *testing.T) {
	failing := &publisherFake{err: errors.New("nats down")}
	ok := &publisherFake{}
	fanout := eventFanout{failing, ok}

	err := fanout.PublishDocumentEvent(context.Background(), domain.DocumentEvent{CaseID: "c"})
	if err == nil || failing.calls != 1 || ok.calls != 1 {
		t.Fatalf("every sink must be called and errors joined: err=%v calls=%d/%d", err, failing.calls, ok.calls)
	}
	if err := (eventFanout{}).PublishDocumentEvent(context.Background(), domain.DocumentEvent{}); err != nil {
		t.Fatalf("empty fanout must drop silently, got %v", err)
	}
}

func TestAllowedTypesNormalizes(t *testing.T) {
	got := allowedTypes([]string{" pv", "unknown", "", "Vc"})
	if len(got) != 2 || got[0] != "PV" || got[1] != "VC" {
		t.Fatalf("unexpected allowed types %v", got)
	}
	if got := allowedTypes(nil); len(got) != len(domain.DefaultAllowedTypes) {
		t.Fatalf("expected defaults, got %v", got)
	}
}

func TestNewWithoutOptionalBackends(t *testing.T) {
	cfg := config.Config{
		CasesRoot:            t.TempDir(),
		OllamaURL:            "http://127.0.0.1:1",
		OllamaGenModel:       "tinyllama",
		OllamaTimeoutSeconds: 1,
		SummaryContextTokens: 2048,
	}
	app, err := New(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Model == nil {
		t.Fatal("the gated model must be exposed for warm-up")
	}
	if app.Queue != nil || app.ResumeQueue() != nil || app.Documents != nil {
		t.Fatal("optional backends must stay unset without configuration")
	}
	cases, err := app.Ledger.List(context.Background())
	if err != nil || len(cases) != 0 {
		t.Fatalf("List() = %v, %v", cases, err)
	}
}
