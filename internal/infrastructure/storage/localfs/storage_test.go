package localfs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

var testNow = time.Date(2026, 5, 2, 14, 5, 9, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cases"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestCreateCaseBuildsLayout(t *testing.T) {
	s := newTestStorage(t)
	m, err := s.CreateCase(context.Background(), "/import/dossier", domain.DefaultCaseSettings(), testNow)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}
	if !strings.HasPrefix(m.Case.ID, "2026-05-02_140509_") {
		t.Fatalf("unexpected case id %q", m.Case.ID)
	}
	for _, dir := range []string{m.Case.ExtractedDir, m.Case.TextDir, m.Case.SummariesDir, m.Case.FinalDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("missing case dir %s: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(m.Case.Dir, ManifestFile)); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	m, err := s.CreateCase(ctx, "/import/dossier", domain.DefaultCaseSettings(), testNow)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}

	done := testNow.Add(time.Minute)
	committed := testNow.Add(30 * time.Second)
	m.Case.ArchiveCreatedAt = &committed
	m.Documents = append(m.Documents,
		domain.DocumentRecord{
			ID: "d1", OriginalName: "PV_01.pdf", SourcePath: filepath.Join(m.Case.ExtractedDir, "PV_01.pdf"), FileExt: ".pdf",
			TextPath: filepath.Join(m.Case.TextDir, "d1.txt"), DetectedType: "PV",
			Detection: domain.Detection{Source: domain.DetectionFilenamePrefix, Keyword: "pv"},
			Selected:  true, Status: domain.StatusSummarized,
			Summary: &domain.SummaryArtifact{TxtPath: "/x/d1.summary.txt", JSONPath: "/x/d1.summary.json", UpdatedAt: &done},
		},
		domain.DocumentRecord{
			ID: "d2", OriginalName: "scan.docx", SourcePath: "/elders/scan.docx", FileExt: ".docx",
			DetectedType: "UNKNOWN", TypeOverride: "VC", Selected: false, Status: domain.StatusSkipped,
		},
	)
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, ref := range []string{m.Case.ID, m.Case.Dir, filepath.Join(m.Case.Dir, ManifestFile)} {
		loaded, err := s.Load(ctx, ref)
		if err != nil {
			t.Fatalf("Load(%q) error = %v", ref, err)
		}
		if !reflect.DeepEqual(loaded, m) {
			t.Fatalf("Load(%q) mismatch:\n got %+v\nwant %+v", ref, loaded, m)
		}
	}

	entries, err := os.ReadDir(m.Case.Dir)
	if err != nil {
		t.Fatalf("read case dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestLoadErrors(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Load(ctx, "2026-01-01_000000_ffffff"); !domain.IsKind(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected case not found, got %v", err)
	}
	if _, err := s.Load(ctx, ".."); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	dir := filepath.Join(s.BasePath(), "broken")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(`{"case":{"case_id":"broken"},"documents":[{"doc_id":"a","status":"paused"}]}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := s.Load(ctx, "broken"); !domain.IsKind(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error for unknown status, got %v", err)
	}
}

func TestSaveFailureIsPersistenceError(t *testing.T) {
	s := newTestStorage(t)
	m := domain.NewCaseManifest(domain.CaseInfo{ID: "ghost", Dir: filepath.Join(s.BasePath(), "missing", "ghost")}, domain.DefaultCaseSettings(), testNow)
	if err := s.Save(context.Background(), m); !domain.IsKind(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestImportOriginalAvoidsOverwrite(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	m, err := s.CreateCase(ctx, "", domain.DefaultCaseSettings(), testNow)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}

	srcDir := t.TempDir()
	first := filepath.Join(srcDir, "a", "verslag.pdf")
	second := filepath.Join(srcDir, "b", "verslag.pdf")
	for i, p := range []string{first, second} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte{byte('1' + i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	gotFirst, err := s.ImportOriginal(ctx, m, first)
	if err != nil {
		t.Fatalf("ImportOriginal() error = %v", err)
	}
	gotSecond, err := s.ImportOriginal(ctx, m, second)
	if err != nil {
		t.Fatalf("ImportOriginal() error = %v", err)
	}
	if filepath.Base(gotFirst) != "verslag.pdf" || filepath.Base(gotSecond) != "verslag__1.pdf" {
		t.Fatalf("unexpected names %s, %s", gotFirst, gotSecond)
	}
	raw, _ := os.ReadFile(gotSecond)
	if string(raw) != "2" {
		t.Fatalf("second import has wrong content %q", raw)
	}
}

func TestSummaryArtifacts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	m, err := s.CreateCase(ctx, "", domain.DefaultCaseSettings(), testNow)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}
	rec := domain.DocumentRecord{ID: "doc-1", Selected: true, Status: domain.StatusQueued}

	if _, ok := s.ProbeSummary(m, rec); ok {
		t.Fatalf("probe must miss before the summary exists")
	}

	artifact, err := s.WriteSummary(ctx, m, domain.SummaryDocument{
		ID: "doc-1", Filename: "PV_01.pdf", DocType: "PV", Workflow: domain.WorkflowFor("PV"),
		Summary: "De getuige verklaarde.", GeneratedAt: testNow,
	})
	if err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	if filepath.Base(artifact.TxtPath) != "doc-1.summary.txt" || filepath.Base(artifact.JSONPath) != "doc-1.summary.json" {
		t.Fatalf("unexpected artifact paths %+v", artifact)
	}

	var decoded domain.SummaryDocument
	raw, err := os.ReadFile(artifact.JSONPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.DocType != "PV" {
		t.Fatalf("bad json artifact %s: %v", raw, err)
	}

	probed, ok := s.ProbeSummary(m, rec)
	if !ok || probed.TxtPath != artifact.TxtPath || probed.JSONPath != artifact.JSONPath {
		t.Fatalf("probe mismatch: %+v ok=%v", probed, ok)
	}
	text, err := s.ReadSummary(ctx, probed)
	if err != nil || text != "De getuige verklaarde." {
		t.Fatalf("ReadSummary() = %q, %v", text, err)
	}
}

func TestTextAndReport(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	m, err := s.CreateCase(ctx, "", domain.DefaultCaseSettings(), testNow)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}

	path, err := s.WriteText(ctx, m, "doc-1", "inhoud")
	if err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if text, err := s.ReadText(ctx, path); err != nil || text != "inhoud" {
		t.Fatalf("ReadText() = %q, %v", text, err)
	}

	report, err := s.WriteReport(ctx, m, "--- a (PV) ---\nx\n")
	if err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}
	if report != filepath.Join(m.Case.FinalDir, "final_report.txt") {
		t.Fatalf("unexpected report path %s", report)
	}
}

func TestIndexListsNewestFirst(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	older, err := s.CreateCase(ctx, "", domain.DefaultCaseSettings(), testNow)
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}
	newer, err := s.CreateCase(ctx, "", domain.DefaultCaseSettings(), testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateCase() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(s.BasePath(), "not-a-case"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	index := NewIndex(s)
	if err := index.Upsert(ctx, newer.Summary()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	list, err := index.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].CaseID != newer.Case.ID || list[1].CaseID != older.Case.ID {
		t.Fatalf("unexpected listing %+v", list)
	}
}
