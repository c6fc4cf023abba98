package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

// runGate admits one summarization loop per process.
var runGate = make(chan struct{}, 1)

type noopRunObserver struct{}

func (noopRunObserver) StartDocument()                              {}
func (noopRunObserver) FinishDocument(string, time.Duration, error) {}

// CaseRunnerUseCase runs the summarization stage of a committed case.
type CaseRunnerUseCase struct {
	ledger     *CaseLedgerUseCase
	artifacts  ports.ArtifactStore
	summarizer ports.Summarizer
	observer   ports.DocumentRunObserver
	now        func() time.Time

	documentTimeout time.Duration
}

func NewCaseRunnerUseCase(
	ledger *CaseLedgerUseCase,
	artifacts ports.ArtifactStore,
	summarizer ports.Summarizer,
	observer ports.DocumentRunObserver,
) *CaseRunnerUseCase {
	if observer == nil {
		observer = noopRunObserver{}
	}
	return &CaseRunnerUseCase{
		ledger:     ledger,
		artifacts:  artifacts,
		summarizer: summarizer,
		observer:   observer,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Resume repairs the ledger, then summarizes queued documents one at a time
// until none are left or ctx is canceled. Cancellation stops claiming; the
// document in flight is finished and recorded first. A failed document is
// marked error and the loop goes on; a failed save stops it.
func (uc *CaseRunnerUseCase) Resume(ctx context.Context, caseRef string) (domain.RunReport, error) {
	select {
	case runGate <- struct{}{}:
		defer func() { <-runGate }()
	default:
		return domain.RunReport{}, domain.WrapError(domain.ErrConflict, "resume case", errors.New("a summarization run is already active"))
	}

	normalized := 0
	manifest, err := uc.ledger.Update(ctx, caseRef, func(m *domain.CaseManifest) (bool, error) {
		n, err := m.NormalizeForResume(uc.probe(m), uc.now())
		normalized = n
		return n > 0, err
	})
	if err != nil {
		return domain.RunReport{}, err
	}
	report := domain.RunReport{CaseID: manifest.Case.ID, Normalized: normalized}
	if normalized > 0 {
		slog.Info("case_normalized", "case_id", report.CaseID, "changed", normalized)
	}
	if !manifest.Committed() {
		return report, domain.WrapError(domain.ErrConflict, "resume case", fmt.Errorf("case %s selection is not committed", report.CaseID))
	}

	for {
		if ctx.Err() != nil {
			report.Canceled = true
			break
		}

		var claimed domain.DocumentRecord
		manifest, err = uc.ledger.Update(ctx, caseRef, func(m *domain.CaseManifest) (bool, error) {
			doc, err := m.ClaimNext()
			if err != nil || doc == nil {
				return false, err
			}
			claimed = *doc
			return true, nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				report.Canceled = true
				break
			}
			return uc.finish(report, manifest), err
		}
		if claimed.ID == "" {
			break
		}

		// The claimed document always runs to a recorded outcome.
		failed, err := uc.process(context.WithoutCancel(ctx), caseRef, manifest, claimed)
		if err != nil {
			return uc.finish(report, manifest), err
		}
		if failed {
			report.Failed++
		} else {
			report.Summarized++
		}
	}

	manifest, err = uc.ledger.Snapshot(ctx, report.CaseID)
	if err != nil {
		manifest = nil
	}
	return uc.finish(report, manifest), nil
}

// process summarizes one claimed document and records the outcome. It
// reports whether the document failed; the error is a persistence failure.
func (uc *CaseRunnerUseCase) process(ctx context.Context, caseRef string, manifest *domain.CaseManifest, doc domain.DocumentRecord) (bool, error) {
	docType := doc.FinalType()
	uc.observer.StartDocument()
	start := time.Now()
	slog.Info("document_summarizing", "case_id", manifest.Case.ID, "doc_id", doc.ID, "doc_type", docType)

	artifact, docErr := uc.summarize(ctx, manifest, doc)
	uc.observer.FinishDocument(docType, time.Since(start), docErr)
	if domain.IsKind(docErr, domain.ErrPersistence) {
		return true, docErr
	}

	_, err := uc.ledger.Update(ctx, caseRef, func(m *domain.CaseManifest) (bool, error) {
		current, err := m.Document(doc.ID)
		if err != nil {
			return false, err
		}
		if current.Status != domain.StatusSummarizing {
			// Deselected while in flight; the outcome is dropped.
			slog.Warn("document_outcome_dropped", "case_id", m.Case.ID, "doc_id", doc.ID, "status", current.Status)
			return false, nil
		}
		if docErr != nil {
			return true, current.Fail(docErr.Error(), uc.now())
		}
		return true, current.Complete(artifact, uc.now())
	})
	if err != nil {
		return docErr != nil, err
	}

	if docErr != nil {
		slog.Warn("document_summary_failed", "case_id", manifest.Case.ID, "doc_id", doc.ID, "error", docErr)
	} else {
		slog.Info("document_summarized", "case_id", manifest.Case.ID, "doc_id", doc.ID, "duration_ms", time.Since(start).Milliseconds())
	}
	return docErr != nil, nil
}

// SetDocumentTimeout bounds the model work for one document. A document that
// runs out of time is marked error and the run moves on.
func (uc *CaseRunnerUseCase) SetDocumentTimeout(d time.Duration) {
	uc.documentTimeout = d
}

func (uc *CaseRunnerUseCase) summarize(ctx context.Context, manifest *domain.CaseManifest, doc domain.DocumentRecord) (domain.SummaryArtifact, error) {
	if uc.documentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.documentTimeout)
		defer cancel()
	}
	if doc.TextPath == "" {
		return domain.SummaryArtifact{}, fmt.Errorf("document %s has no extracted text", doc.ID)
	}
	text, err := uc.artifacts.ReadText(ctx, doc.TextPath)
	if err != nil {
		return domain.SummaryArtifact{}, err
	}

	docType := doc.FinalType()
	summary, err := uc.summarizer.Summarize(ctx, docType, text)
	if err != nil {
		return domain.SummaryArtifact{}, err
	}

	return uc.artifacts.WriteSummary(ctx, manifest, domain.SummaryDocument{
		ID:          doc.ID,
		Filename:    doc.OriginalName,
		DocType:     docType,
		Workflow:    domain.WorkflowFor(docType),
		Summary:     summary,
		Meta:        domain.ExtractBasicMeta(text),
		GeneratedAt: uc.now(),
	})
}

func (uc *CaseRunnerUseCase) probe(m *domain.CaseManifest) domain.ArtifactProbe {
	return func(doc domain.DocumentRecord) (domain.SummaryArtifact, bool) {
		return uc.artifacts.ProbeSummary(m, doc)
	}
}

func (uc *CaseRunnerUseCase) finish(report domain.RunReport, manifest *domain.CaseManifest) domain.RunReport {
	if manifest != nil {
		counts := manifest.Counts()
		report.Remaining = counts[domain.StatusQueued] + counts[domain.StatusSummarizing]
	}
	slog.Info("case_run_finished",
		"case_id", report.CaseID,
		"summarized", report.Summarized,
		"failed", report.Failed,
		"remaining", report.Remaining,
		"canceled", report.Canceled,
	)
	return report
}
