package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

// CaseReportUseCase concatenates the summaries of the selected documents
// into the case's final report.
type CaseReportUseCase struct {
	ledger    *CaseLedgerUseCase
	artifacts ports.ArtifactStore
}

func NewCaseReportUseCase(ledger *CaseLedgerUseCase, artifacts ports.ArtifactStore) *CaseReportUseCase {
	return &CaseReportUseCase{ledger: ledger, artifacts: artifacts}
}

// BuildReport writes the final report and returns its path. Documents appear
// in ledger order; a summary that cannot be read leaves a marker instead of
// failing the report.
func (uc *CaseReportUseCase) BuildReport(ctx context.Context, caseRef string) (string, error) {
	manifest, err := uc.ledger.Get(ctx, caseRef)
	if err != nil {
		return "", err
	}
	docs := manifest.SummarizedSelection()
	if len(docs) == 0 {
		return "", domain.WrapError(domain.ErrConflict, "build report", fmt.Errorf("case %s has no summarized documents", manifest.Case.ID))
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, uc.section(ctx, manifest.Case.ID, doc))
	}
	content := strings.TrimSpace(strings.Join(parts, "\n\n"))

	path, err := uc.artifacts.WriteReport(ctx, manifest, content)
	if err != nil {
		return "", err
	}
	_, err = uc.ledger.Update(ctx, caseRef, func(m *domain.CaseManifest) (bool, error) {
		if m.Case.FinalReportPath == path {
			return false, nil
		}
		m.Case.FinalReportPath = path
		return true, nil
	})
	if err != nil {
		return "", err
	}

	slog.Info("case_report_built", "case_id", manifest.Case.ID, "documents", len(docs), "path", path)
	return path, nil
}

func (uc *CaseReportUseCase) section(ctx context.Context, caseID string, doc domain.DocumentRecord) string {
	header := fmt.Sprintf("--- %s (%s) ---", doc.OriginalName, doc.FinalType())
	if doc.Summary == nil {
		return header + "\n[Could not read summary: no summary artifact]\n"
	}
	text, err := uc.artifacts.ReadSummary(ctx, *doc.Summary)
	if err != nil {
		slog.Warn("case_report_summary_unreadable", "case_id", caseID, "doc_id", doc.ID, "error", err)
		return fmt.Sprintf("%s\n[Could not read summary: %v]\n", header, err)
	}
	return header + "\n" + text + "\n"
}
