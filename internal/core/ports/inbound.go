package ports

import (
	"context"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

// CaseIngestor is the inbound contract for the classification stage.
type CaseIngestor interface {
	CreateCase(ctx context.Context, sourceDir string) (*domain.CaseManifest, error)
	ClassifyCase(ctx context.Context, caseRef string) (domain.ClassificationReport, error)
}

// CaseLedger is the inbound contract for reading and editing a case's documents.
type CaseLedger interface {
	List(ctx context.Context) ([]domain.CaseSummary, error)
	Get(ctx context.Context, caseRef string) (*domain.CaseManifest, error)
	SetSelected(ctx context.Context, caseRef, docID string, selected bool) (*domain.DocumentRecord, error)
	OverrideType(ctx context.Context, caseRef, docID, typeCode string) (*domain.DocumentRecord, error)
	Commit(ctx context.Context, caseRef string) (*domain.CaseManifest, error)
	Requeue(ctx context.Context, caseRef, docID string) (*domain.DocumentRecord, error)
}

// CaseRunner is the inbound contract for the summarization stage.
type CaseRunner interface {
	Resume(ctx context.Context, caseRef string) (domain.RunReport, error)
}

// ReportBuilder assembles the final report of a case.
type ReportBuilder interface {
	BuildReport(ctx context.Context, caseRef string) (string, error)
}
