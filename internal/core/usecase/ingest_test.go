package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

func TestClassifyCaseImportsReadableFiles(t *testing.T) {
	h := newHarness(t)
	m := h.classifiedCase(t)

	if len(m.Documents) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(m.Documents))
	}
	wantNames := []string{"PV_aangifte.txt", "VC_rapport.txt", "map/UJD_lijst.txt"}
	wantTypes := []string{"PV", "VC", "UJD"}
	for i, doc := range m.Documents {
		if doc.OriginalName != wantNames[i] || doc.DetectedType != wantTypes[i] {
			t.Fatalf("document %d = %s/%s, want %s/%s", i, doc.OriginalName, doc.DetectedType, wantNames[i], wantTypes[i])
		}
		if doc.Status != domain.StatusDetected || !doc.Selected {
			t.Fatalf("document %s should be detected and selected, got %s/%v", doc.OriginalName, doc.Status, doc.Selected)
		}
		if !strings.HasPrefix(doc.SourcePath, m.Case.ExtractedDir) {
			t.Fatalf("original not imported into case: %s", doc.SourcePath)
		}
		if _, err := os.Stat(doc.TextPath); err != nil {
			t.Fatalf("text artifact missing: %v", err)
		}
		if got := h.events.statuses(doc.ID); len(got) != 1 || got[0] != domain.StatusDetected {
			t.Fatalf("expected one detected event for %s, got %v", doc.OriginalName, got)
		}
	}
}

func TestClassifyCaseIsIncremental(t *testing.T) {
	h := newHarness(t)
	m := h.classifiedCase(t)

	report, err := h.ingest.ClassifyCase(context.Background(), m.Case.ID)
	if err != nil {
		t.Fatalf("ClassifyCase() error = %v", err)
	}
	if report.Added != 0 {
		t.Fatalf("second pass must not add known files, added %d", report.Added)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Path != "leeg.txt" || report.Skipped[0].Reason != "no extractable text" {
		t.Fatalf("unexpected skips %+v", report.Skipped)
	}
	again, _ := h.ledger.Get(context.Background(), m.Case.ID)
	if len(again.Documents) != 3 {
		t.Fatalf("expected 3 documents after second pass, got %d", len(again.Documents))
	}
}

func TestClassifyCaseSkipsUnreadableFile(t *testing.T) {
	h := newHarness(t)
	h.extractor.failOn = "VC_rapport.txt"
	src := writeSource(t, map[string]string{
		"PV_a.txt":       "tekst",
		"VC_rapport.txt": "tekst",
	})
	created, err := h.ingest.CreateCase(context.Background(), src)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}

	report, err := h.ingest.ClassifyCase(context.Background(), created.Case.ID)
	if err != nil {
		t.Fatalf("ClassifyCase() error = %v", err)
	}
	if report.Added != 1 || len(report.Skipped) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Skipped[0].Reason != "corrupt file" {
		t.Fatalf("skip reason should carry the extractor error, got %q", report.Skipped[0].Reason)
	}
}

func TestClassifyCaseStopsWhenCanceled(t *testing.T) {
	h := newHarness(t)
	src := writeSource(t, map[string]string{"PV_a.txt": "tekst"})
	created, err := h.ingest.CreateCase(context.Background(), src)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := h.ingest.ClassifyCase(ctx, created.Case.ID)
	if err != nil {
		t.Fatalf("ClassifyCase() error = %v", err)
	}
	if !report.Canceled || report.Added != 0 {
		t.Fatalf("expected a canceled pass without documents, got %+v", report)
	}
}

func TestClassifyCaseRejectsCommittedCase(t *testing.T) {
	h := newHarness(t)
	m := h.committedCase(t)

	_, err := h.ingest.ClassifyCase(context.Background(), m.Case.ID)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateCaseValidatesSourceDir(t *testing.T) {
	h := newHarness(t)
	file := filepath.Join(t.TempDir(), "los.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, dir := range []string{"", "  ", filepath.Join(t.TempDir(), "missing"), file} {
		if _, err := h.ingest.CreateCase(context.Background(), dir); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("CreateCase(%q) expected invalid input, got %v", dir, err)
		}
	}
}
