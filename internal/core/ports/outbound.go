package ports

import (
	"context"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

// TextExtractor turns a source file into plain text. Unsupported formats
// yield an empty string, not an error.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// DocumentClassifier assigns a type code from filename and content. It never fails.
type DocumentClassifier interface {
	Classify(filename, text string) domain.Classification
}

// Chunker splits text into ordered, bounded pieces.
type Chunker interface {
	Split(text string) []string
}

// ModelRuntime is the exclusive text generation backend.
type ModelRuntime interface {
	EnsureReady(ctx context.Context) error
	Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error)
}

// Summarizer produces one summary for a whole document.
type Summarizer interface {
	Summarize(ctx context.Context, docType, text string) (string, error)
}

// ManifestStore owns case directories and the durable manifest.
type ManifestStore interface {
	CreateCase(ctx context.Context, sourcePath string, settings domain.CaseSettings, now time.Time) (*domain.CaseManifest, error)
	Load(ctx context.Context, caseRef string) (*domain.CaseManifest, error)
	Save(ctx context.Context, manifest *domain.CaseManifest) error
}

// ArtifactStore reads and writes the files that live inside a case directory.
type ArtifactStore interface {
	ImportOriginal(ctx context.Context, manifest *domain.CaseManifest, srcPath string) (string, error)
	WriteText(ctx context.Context, manifest *domain.CaseManifest, docID, text string) (string, error)
	ReadText(ctx context.Context, path string) (string, error)
	WriteSummary(ctx context.Context, manifest *domain.CaseManifest, summary domain.SummaryDocument) (domain.SummaryArtifact, error)
	ProbeSummary(manifest *domain.CaseManifest, doc domain.DocumentRecord) (domain.SummaryArtifact, bool)
	ReadSummary(ctx context.Context, artifact domain.SummaryArtifact) (string, error)
	WriteReport(ctx context.Context, manifest *domain.CaseManifest, content string) (string, error)
}

// CaseIndex keeps a queryable listing of cases.
type CaseIndex interface {
	Upsert(ctx context.Context, summary domain.CaseSummary) error
	List(ctx context.Context) ([]domain.CaseSummary, error)
}

// EventPublisher announces document status changes.
type EventPublisher interface {
	PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error
}

// ResumeQueue carries resume requests from the API to the worker.
type ResumeQueue interface {
	PublishResumeRequest(ctx context.Context, caseID string) error
	SubscribeResumeRequests(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentRunObserver receives per-document summarization timings.
type DocumentRunObserver interface {
	StartDocument()
	FinishDocument(docType string, duration time.Duration, err error)
}

// DocumentFinder answers document queries that span cases.
type DocumentFinder interface {
	ListDocumentsByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]domain.DocumentEvent, error)
}
