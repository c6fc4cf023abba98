package summarization

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/chunking"
)

type generateCall struct {
	prompt string
	opts   domain.GenerateOptions
}

type runtimeFake struct {
	readyErr   error
	readyCalls int
	calls      []generateCall
	// errs is consumed one per Generate call; a nil entry means success.
	errs   []error
	output func(prompt string) string
}

func (f *runtimeFake) EnsureReady(context.Context) error {
	f.readyCalls++
	return f.readyErr
}

func (f *runtimeFake) Generate(_ context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	f.calls = append(f.calls, generateCall{prompt: prompt, opts: opts})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if f.output != nil {
		return f.output(prompt), nil
	}
	return fmt.Sprintf("samenvatting %d", len(f.calls)), nil
}

func (f *runtimeFake) mapCalls() int {
	n := 0
	for _, call := range f.calls {
		if strings.Contains(call.prompt, "[TEKST]") {
			n++
		}
	}
	return n
}

type observerFake struct {
	modelCalls int
	overflows  []int
	rounds     []int
}

func (o *observerFake) ObserveModelCall(string, time.Duration, error) {
	o.modelCalls++
}

func (o *observerFake) ObserveOverflow(_ string, tokens int) {
	o.overflows = append(o.overflows, tokens)
}

func (o *observerFake) ObserveReduceRounds(rounds int) {
	o.rounds = append(o.rounds, rounds)
}

func newTestEngine(t *testing.T, runtime *runtimeFake, cfg Config, observer Observer) *Engine {
	t.Helper()
	templates, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	return NewEngine(runtime, chunking.NewSplitter(chunking.DefaultMaxChars), templates, cfg, observer)
}

func longText(chars int) string {
	line := "De verdachte verklaarde dat hij op de avond thuis was.\n"
	var b strings.Builder
	for b.Len() < chars {
		b.WriteString(line)
	}
	return b.String()[:chars]
}

func TestSummarizeEmptyTextSkipsModel(t *testing.T) {
	runtime := &runtimeFake{}
	engine := newTestEngine(t, runtime, DefaultConfig(), nil)

	got, err := engine.Summarize(context.Background(), "PV", " \n Pagina 1 van 3 \n ")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "Geen tekst aangetroffen." {
		t.Fatalf("unexpected summary: %q", got)
	}
	if runtime.readyCalls != 0 || len(runtime.calls) != 0 {
		t.Fatalf("model must not be used for empty text: ready=%d calls=%d", runtime.readyCalls, len(runtime.calls))
	}
}

func TestSummarizeSingleChunkNeedsNoReduce(t *testing.T) {
	runtime := &runtimeFake{output: func(string) string { return "  Korte samenvatting.  " }}
	observer := &observerFake{}
	engine := newTestEngine(t, runtime, DefaultConfig(), observer)

	got, err := engine.Summarize(context.Background(), "PV", "Proces-verbaal van verhoor van de getuige.")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "Korte samenvatting." {
		t.Fatalf("unexpected summary: %q", got)
	}
	if len(runtime.calls) != 1 {
		t.Fatalf("expected one model call, got %d", len(runtime.calls))
	}
	call := runtime.calls[0]
	if !strings.Contains(call.prompt, "proces-verbaal") || !strings.HasPrefix(call.prompt, "<|system|>\n") {
		t.Fatalf("prompt is not built from the PV template: %q", call.prompt)
	}
	if call.opts.MaxNewTokens != 180 || call.opts.ContextTokens != 2048 || call.opts.Temperature != 0.2 {
		t.Fatalf("unexpected generation options: %+v", call.opts)
	}
	if len(observer.rounds) != 1 || observer.rounds[0] != 0 {
		t.Fatalf("expected zero reduce rounds, got %v", observer.rounds)
	}
}

func TestSummarizeLongDocumentConvergesInTwoRounds(t *testing.T) {
	text := longText(20000)
	chunks := chunking.NewSplitter(chunking.DefaultMaxChars).Split(Sanitize(text))
	if len(chunks) < 11 || len(chunks) > 12 {
		t.Fatalf("expected 11-12 chunks, got %d", len(chunks))
	}

	for _, maxPartials := range []int{6, 11} {
		runtime := &runtimeFake{}
		observer := &observerFake{}
		cfg := DefaultConfig()
		cfg.MaxPartials = maxPartials
		engine := newTestEngine(t, runtime, cfg, observer)

		got, err := engine.Summarize(context.Background(), "VC", text)
		if err != nil {
			t.Fatalf("max partials %d: Summarize() error = %v", maxPartials, err)
		}
		if got == "" {
			t.Fatalf("max partials %d: empty summary", maxPartials)
		}
		if runtime.mapCalls() != len(chunks) {
			t.Fatalf("max partials %d: expected %d map calls, got %d", maxPartials, len(chunks), runtime.mapCalls())
		}
		if len(observer.rounds) != 1 || observer.rounds[0] != 2 {
			t.Fatalf("max partials %d: expected 2 reduce rounds, got %v", maxPartials, observer.rounds)
		}
	}
}

func TestSummarizeCapsPartials(t *testing.T) {
	runtime := &runtimeFake{}
	cfg := DefaultConfig()
	cfg.MaxPartials = 2
	engine := newTestEngine(t, runtime, cfg, nil)

	if _, err := engine.Summarize(context.Background(), "PV", longText(9000)); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	last := runtime.calls[len(runtime.calls)-1].prompt
	if !strings.Contains(last, "— 2. ") || strings.Contains(last, "— 3. ") {
		t.Fatalf("reduce prompt should hold exactly two partials: %q", last)
	}
}

func TestSummarizeOverflowShrinksBudgetForGood(t *testing.T) {
	runtime := &runtimeFake{errs: []error{errors.New("llama: maximum context length is 1024 tokens")}}
	observer := &observerFake{}
	engine := newTestEngine(t, runtime, DefaultConfig(), observer)

	if _, err := engine.Summarize(context.Background(), "PV", "Korte tekst."); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(runtime.calls) != 2 {
		t.Fatalf("expected a single retry, got %d calls", len(runtime.calls))
	}
	retry := runtime.calls[1].opts
	if retry.ContextTokens != 1024 || retry.MaxNewTokens != 140 {
		t.Fatalf("unexpected retry options: %+v", retry)
	}
	if engine.ContextTokens() != 1024 {
		t.Fatalf("expected sticky budget 1024, got %d", engine.ContextTokens())
	}
	if len(observer.overflows) != 1 || observer.overflows[0] != 1024 {
		t.Fatalf("unexpected overflow observations: %v", observer.overflows)
	}

	if _, err := engine.Summarize(context.Background(), "PV", "Nog een tekst."); err != nil {
		t.Fatalf("second Summarize() error = %v", err)
	}
	if got := runtime.calls[2].opts.ContextTokens; got != 1024 {
		t.Fatalf("next document must start from reduced budget, got %d", got)
	}
}

func TestSummarizeOverflowNeverGrowsBudget(t *testing.T) {
	runtime := &runtimeFake{errs: []error{
		domain.WrapError(domain.ErrContextOverflow, "generate", errors.New("context length exceeded")),
		nil,
		errors.New("maximum context length is 1024"),
	}}
	engine := newTestEngine(t, runtime, DefaultConfig(), nil)

	if _, err := engine.Summarize(context.Background(), "PV", "Eerste."); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if engine.ContextTokens() != 768 {
		t.Fatalf("expected fallback tier 768, got %d", engine.ContextTokens())
	}
	if _, err := engine.Summarize(context.Background(), "PV", "Tweede."); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if engine.ContextTokens() != 768 {
		t.Fatalf("budget must not grow back, got %d", engine.ContextTokens())
	}
}

func TestSummarizeReduceFallsBackToHalfGroup(t *testing.T) {
	long := strings.Repeat("x", 600)
	runtime := &runtimeFake{output: func(prompt string) string {
		if strings.Contains(prompt, "[TEKST]") {
			return long
		}
		return "eind"
	}}
	cfg := DefaultConfig()
	cfg.ContextTokens = 512
	cfg.MaxPartials = 4
	engine := newTestEngine(t, runtime, cfg, nil)

	got, err := engine.Summarize(context.Background(), "PV", longText(7000))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "eind" {
		t.Fatalf("unexpected summary: %q", got)
	}
	last := runtime.calls[len(runtime.calls)-1].prompt
	if !strings.Contains(last, "Vat kort samen (max. 3 zinnen):") {
		t.Fatalf("expected fallback reduce prompt: %q", last)
	}
	if strings.Count(last, long) != 2 {
		t.Fatalf("expected first half of the group, got %d partials", strings.Count(last, long))
	}
}

func TestSummarizeStripsEchoedInstructions(t *testing.T) {
	runtime := &runtimeFake{output: func(string) string {
		return "Je bent een assistent.\nDe getuige zag de auto."
	}}
	engine := newTestEngine(t, runtime, DefaultConfig(), nil)

	got, err := engine.Summarize(context.Background(), "PV", "tekst")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got != "De getuige zag de auto." {
		t.Fatalf("echo not stripped: %q", got)
	}
}

func TestSummarizeErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		runtime *runtimeFake
		kind    error
	}{
		{
			name:    "runtime not ready",
			runtime: &runtimeFake{readyErr: domain.WrapError(domain.ErrModelUnavailable, "ensure ready", errors.New("connection refused"))},
			kind:    domain.ErrModelUnavailable,
		},
		{
			name:    "generation error",
			runtime: &runtimeFake{errs: []error{errors.New("unexpected EOF")}},
			kind:    domain.ErrGenerationFailed,
		},
		{
			name:    "overflow twice",
			runtime: &runtimeFake{errs: []error{errors.New("maximum context length"), errors.New("maximum context length")}},
			kind:    domain.ErrGenerationFailed,
		},
		{
			name:    "breaker open while generating",
			runtime: &runtimeFake{errs: []error{domain.WrapError(domain.ErrModelUnavailable, "generate", errors.New("circuit open"))}},
			kind:    domain.ErrModelUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(t, tc.runtime, DefaultConfig(), nil)
			_, err := engine.Summarize(context.Background(), "PV", "tekst")
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestOverflowTier(t *testing.T) {
	cases := map[string]int{
		"maximum context length is 512":   512,
		"context length exceeded: 1024":   1024,
		"maximum context length exceeded": 768,
	}
	for msg, want := range cases {
		if got := OverflowTier(errors.New(msg), 768); got != want {
			t.Fatalf("%q: expected %d, got %d", msg, want, got)
		}
	}
	if IsContextOverflow(errors.New("timeout")) {
		t.Fatalf("timeout must not be treated as overflow")
	}
	if !IsContextOverflow(fmt.Errorf("wrap: %w", domain.ErrContextOverflow)) {
		t.Fatalf("typed overflow not recognised")
	}
}
