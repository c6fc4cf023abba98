package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/storage/localfs"
)

type fileExtractorFake struct {
	failOn string
}

func (f *fileExtractorFake) Extract(_ context.Context, path string) (string, error) {
	if f.failOn != "" && filepath.Base(path) == f.failOn {
		return "", errors.New("corrupt file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// prefixClassifierFake takes the type from the filename prefix before "_".
type prefixClassifierFake struct{}

func (prefixClassifierFake) Classify(filename, _ string) domain.Classification {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return domain.Classification{Type: domain.TypeUnknown, Detection: domain.Detection{Source: domain.DetectionNone}}
	}
	return domain.Classification{
		Type:      strings.ToUpper(prefix),
		Detection: domain.Detection{Source: domain.DetectionFilenamePrefix, Keyword: prefix},
	}
}

type summarizerFake struct {
	mu     sync.Mutex
	calls  []string
	errs   map[string]error
	during func(text string)
}

func (f *summarizerFake) Summarize(_ context.Context, docType, text string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	err := f.errs[text]
	during := f.during
	f.mu.Unlock()
	if during != nil {
		during(text)
	}
	if err != nil {
		return "", err
	}
	return "Samenvatting " + docType + ": " + text, nil
}

func (f *summarizerFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.DocumentEvent
	err    error
}

func (f *eventsFake) PublishDocumentEvent(_ context.Context, event domain.DocumentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *eventsFake) statuses(docID string) []domain.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DocumentStatus
	for _, e := range f.events {
		if e.DocumentID == docID {
			out = append(out, e.Status)
		}
	}
	return out
}

type indexFake struct {
	mu        sync.Mutex
	summaries map[string]domain.CaseSummary
	err       error
}

func (f *indexFake) Upsert(_ context.Context, summary domain.CaseSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.summaries == nil {
		f.summaries = make(map[string]domain.CaseSummary)
	}
	f.summaries[summary.CaseID] = summary
	return nil
}

func (f *indexFake) List(context.Context) ([]domain.CaseSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CaseSummary, 0, len(f.summaries))
	for _, s := range f.summaries {
		out = append(out, s)
	}
	return out, nil
}

// flakyStore fails saves on demand and otherwise delegates to the file store.
type flakyStore struct {
	*localfs.Storage
	failSave bool
}

func (s *flakyStore) Save(ctx context.Context, m *domain.CaseManifest) error {
	if s.failSave {
		return domain.WrapError(domain.ErrPersistence, "save manifest", errors.New("disk full"))
	}
	return s.Storage.Save(ctx, m)
}

type harness struct {
	store      *flakyStore
	events     *eventsFake
	index      *indexFake
	summarizer *summarizerFake
	ledger     *CaseLedgerUseCase
	ingest     *CaseIngestUseCase
	runner     *CaseRunnerUseCase
	report     *CaseReportUseCase
	extractor  *fileExtractorFake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs, err := localfs.New(filepath.Join(t.TempDir(), "cases"))
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	h := &harness{
		store:      &flakyStore{Storage: fs},
		events:     &eventsFake{},
		index:      &indexFake{},
		summarizer: &summarizerFake{errs: map[string]error{}},
		extractor:  &fileExtractorFake{},
	}
	h.ledger = NewCaseLedgerUseCase(h.store, h.index, h.events, nil)
	h.ingest = NewCaseIngestUseCase(h.ledger, h.store, fs, h.extractor, prefixClassifierFake{}, domain.DefaultCaseSettings())
	h.runner = NewCaseRunnerUseCase(h.ledger, fs, h.summarizer, nil)
	h.report = NewCaseReportUseCase(h.ledger, fs)
	return h
}

func writeSource(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

// classifiedCase creates a case over three readable documents and runs the
// classification stage.
func (h *harness) classifiedCase(t *testing.T) *domain.CaseManifest {
	t.Helper()
	src := writeSource(t, map[string]string{
		"PV_aangifte.txt":   "proces-verbaal tekst",
		"VC_rapport.txt":    "voorlichting tekst",
		"map/UJD_lijst.txt": "uittreksel tekst",
		"leeg.txt":          "   ",
		"__MACOSX/VC_x.txt": "junk",
		"._PV_aangifte.txt": "junk",
	})
	created, err := h.ingest.CreateCase(context.Background(), src)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}
	if _, err := h.ingest.ClassifyCase(context.Background(), created.Case.ID); err != nil {
		t.Fatalf("ClassifyCase() error = %v", err)
	}
	m, err := h.ledger.Get(context.Background(), created.Case.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return m
}

func (h *harness) committedCase(t *testing.T) *domain.CaseManifest {
	t.Helper()
	m := h.classifiedCase(t)
	committed, err := h.ledger.Commit(context.Background(), m.Case.ID)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return committed
}

func docByName(t *testing.T, m *domain.CaseManifest, name string) domain.DocumentRecord {
	t.Helper()
	for _, doc := range m.Documents {
		if doc.OriginalName == name {
			return doc
		}
	}
	t.Fatalf("document %s not in manifest", name)
	return domain.DocumentRecord{}
}
