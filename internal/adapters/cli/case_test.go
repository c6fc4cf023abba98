package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

type mockIngest struct {
	report domain.ClassificationReport
}

func (m *mockIngest) CreateCase(_ context.Context, sourceDir string) (*domain.CaseManifest, error) {
	info := domain.CaseInfo{ID: "case-1", Dir: "/cases/case-1", SourcePath: sourceDir}
	return domain.NewCaseManifest(info, domain.DefaultCaseSettings(), time.Now()), nil
}

func (m *mockIngest) ClassifyCase(context.Context, string) (domain.ClassificationReport, error) {
	return m.report, nil
}

type mockLedger struct {
	manifest *domain.CaseManifest
}

func newMockLedger() *mockLedger {
	m := domain.NewCaseManifest(domain.CaseInfo{ID: "case-1", Dir: "/cases/case-1"}, domain.DefaultCaseSettings(), time.Now())
	_ = m.AddDocument(domain.DocumentRecord{ID: "doc-1", OriginalName: "PV_a.txt", DetectedType: "PV", Selected: true, Status: domain.StatusDetected})
	_ = m.AddDocument(domain.DocumentRecord{ID: "doc-2", OriginalName: "notes.txt", DetectedType: "UNKNOWN", Selected: true, Status: domain.StatusDetected})
	return &mockLedger{manifest: m}
}

func (m *mockLedger) List(context.Context) ([]domain.CaseSummary, error) {
	return []domain.CaseSummary{m.manifest.Summary()}, nil
}

func (m *mockLedger) Get(context.Context, string) (*domain.CaseManifest, error) {
	return m.manifest, nil
}

func (m *mockLedger) SetSelected(_ context.Context, _ string, docID string, selected bool) (*domain.DocumentRecord, error) {
	doc, err := m.manifest.Document(docID)
	if err != nil {
		return nil, err
	}
	if selected {
		return doc, doc.Select(m.manifest.Committed())
	}
	return doc, doc.Deselect()
}

func (m *mockLedger) OverrideType(_ context.Context, _ string, docID, typeCode string) (*domain.DocumentRecord, error) {
	doc, err := m.manifest.Document(docID)
	if err != nil {
		return nil, err
	}
	doc.TypeOverride = domain.NormalizeTypeCode(typeCode)
	return doc, nil
}

func (m *mockLedger) Commit(context.Context, string) (*domain.CaseManifest, error) {
	if err := m.manifest.CommitSelection(time.Now()); err != nil {
		return nil, err
	}
	return m.manifest, nil
}

func (m *mockLedger) Requeue(context.Context, string, string) (*domain.DocumentRecord, error) {
	return nil, domain.WrapError(domain.ErrInvalidTransition, "requeue document", errors.New("status is detected"))
}

type mockRunner struct {
	report domain.RunReport
}

func (m mockRunner) Resume(context.Context, string) (domain.RunReport, error) {
	return m.report, nil
}

func setupTestServices(s Services) func() {
	Configure(s)
	return func() {
		Configure(Services{})
		selectOff = false
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := Execute(context.Background())
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"new", "cases", "show", "select", "override", "commit", "requeue", "resume", "report", "failed", "mcp"} {
		assert.Contains(t, names, want)
	}
}

func TestShowCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestCommands_FailWithoutServices(t *testing.T) {
	cleanup := setupTestServices(Services{})
	defer cleanup()

	_, err := execute(t, "cases")
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestNewCmd_PrintsClassification(t *testing.T) {
	cleanup := setupTestServices(Services{Ingest: &mockIngest{report: domain.ClassificationReport{
		Added:   2,
		Skipped: []domain.SkippedFile{{Path: "scan.tif", Reason: "no text"}},
	}}})
	defer cleanup()

	out, err := execute(t, "new", "/data/in")
	require.NoError(t, err)
	assert.Contains(t, out, "Created case case-1")
	assert.Contains(t, out, "Classified 2 documents")
	assert.Contains(t, out, "skipped scan.tif: no text")
}

func TestSelectionWorkflow(t *testing.T) {
	ledger := newMockLedger()
	cleanup := setupTestServices(Services{Ledger: ledger})
	defer cleanup()

	out, err := execute(t, "select", "case-1", "doc-2", "--off")
	require.NoError(t, err)
	assert.Contains(t, out, "doc-2 selected=false status=skipped")

	out, err = execute(t, "override", "case-1", "doc-1", "vc")
	require.NoError(t, err)
	assert.Contains(t, out, "type=VC (VC Samenvatter)")

	out, err = execute(t, "commit", "case-1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 queued, 1 skipped")

	out, err = execute(t, "show", "case-1")
	require.NoError(t, err)
	assert.Contains(t, out, "[x] doc-1  VC")
	assert.Contains(t, out, "[ ] doc-2")
}

func TestRequeueCmd_WrapsError(t *testing.T) {
	cleanup := setupTestServices(Services{Ledger: newMockLedger()})
	defer cleanup()

	_, err := execute(t, "requeue", "case-1", "doc-1")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidTransition))
}

func TestResumeCmd_ReportsCancellation(t *testing.T) {
	cleanup := setupTestServices(Services{Runner: mockRunner{report: domain.RunReport{Summarized: 1, Remaining: 3, Canceled: true}}})
	defer cleanup()

	out, err := execute(t, "resume", "case-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Summarized: 1  failed: 0  remaining: 3")
	assert.Contains(t, out, `casectl resume case-1`)
}

func TestFailedCmd_RequiresDocumentIndex(t *testing.T) {
	cleanup := setupTestServices(Services{Ledger: newMockLedger()})
	defer cleanup()

	_, err := execute(t, "failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}
