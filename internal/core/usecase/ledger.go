package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

// CaseLedgerUseCase is the single writer of case manifests in a process.
// A mutation reloads the manifest under the case lock, edits a copy, saves
// it and only then publishes the copy. A failed save changes nothing.
type CaseLedgerUseCase struct {
	store        ports.ManifestStore
	index        ports.CaseIndex
	events       ports.EventPublisher
	allowedTypes []string
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*caseSession
}

type caseSession struct {
	mu       sync.Mutex
	manifest *domain.CaseManifest
}

func NewCaseLedgerUseCase(
	store ports.ManifestStore,
	index ports.CaseIndex,
	events ports.EventPublisher,
	allowedTypes []string,
) *CaseLedgerUseCase {
	if len(allowedTypes) == 0 {
		allowedTypes = append([]string(nil), domain.DefaultAllowedTypes...)
	}
	return &CaseLedgerUseCase{
		store:        store,
		index:        index,
		events:       events,
		allowedTypes: allowedTypes,
		now:          func() time.Time { return time.Now().UTC() },
		sessions:     make(map[string]*caseSession),
	}
}

func (uc *CaseLedgerUseCase) session(caseID string) *caseSession {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	s, ok := uc.sessions[caseID]
	if !ok {
		s = &caseSession{}
		uc.sessions[caseID] = s
	}
	return s
}

// Snapshot returns a copy of the last manifest this process saw, loading it
// on first use.
func (uc *CaseLedgerUseCase) Snapshot(ctx context.Context, caseRef string) (*domain.CaseManifest, error) {
	uc.mu.Lock()
	s, ok := uc.sessions[caseRef]
	uc.mu.Unlock()
	if ok {
		s.mu.Lock()
		cached := s.manifest
		if cached != nil {
			cached = cached.Clone()
		}
		s.mu.Unlock()
		if cached != nil {
			return cached, nil
		}
	}
	return uc.Get(ctx, caseRef)
}

// Get reloads the manifest from storage and returns a copy.
func (uc *CaseLedgerUseCase) Get(ctx context.Context, caseRef string) (*domain.CaseManifest, error) {
	loaded, err := uc.store.Load(ctx, caseRef)
	if err != nil {
		return nil, err
	}
	s := uc.session(loaded.Case.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest = loaded
	return loaded.Clone(), nil
}

func (uc *CaseLedgerUseCase) List(ctx context.Context) ([]domain.CaseSummary, error) {
	if uc.index == nil {
		return []domain.CaseSummary{}, nil
	}
	return uc.index.List(ctx)
}

// Register publishes a manifest the store has just created.
func (uc *CaseLedgerUseCase) Register(ctx context.Context, manifest *domain.CaseManifest) {
	s := uc.session(manifest.Case.ID)
	s.mu.Lock()
	s.manifest = manifest.Clone()
	s.mu.Unlock()
	uc.refreshIndex(ctx, manifest)
}

// Update applies fn to a fresh copy of the manifest. fn reports whether it
// changed anything; an unchanged manifest is not written.
func (uc *CaseLedgerUseCase) Update(
	ctx context.Context,
	caseRef string,
	fn func(m *domain.CaseManifest) (bool, error),
) (*domain.CaseManifest, error) {
	probe, err := uc.store.Load(ctx, caseRef)
	if err != nil {
		return nil, err
	}
	s := uc.session(probe.Case.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another process may have written since the probe.
	current, err := uc.store.Load(ctx, caseRef)
	if err != nil {
		return nil, err
	}
	before := current.Clone()
	if s.manifest == nil {
		s.manifest = current.Clone()
	}

	changed, err := fn(current)
	if err != nil {
		return nil, err
	}
	if !changed {
		s.manifest = current
		return current.Clone(), nil
	}

	current.Touch(uc.now())
	if err := uc.store.Save(ctx, current); err != nil {
		s.manifest = before
		return nil, err
	}
	s.manifest = current

	uc.refreshIndex(ctx, current)
	uc.publishChanges(ctx, before, current)
	return current.Clone(), nil
}

func (uc *CaseLedgerUseCase) SetSelected(ctx context.Context, caseRef, docID string, selected bool) (*domain.DocumentRecord, error) {
	var out domain.DocumentRecord
	_, err := uc.Update(ctx, caseRef, func(m *domain.CaseManifest) (bool, error) {
		doc, err := m.Document(docID)
		if err != nil {
			return false, err
		}
		if doc.Selected == selected {
			out = *doc
			return false, nil
		}
		if selected {
			err = doc.Select(m.Committed())
		} else {
			err = doc.Deselect()
		}
		if err != nil {
			return false, err
		}
		out = *doc
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OverrideType sets the user's type for a document. An empty code clears
// the override; any other code must be an allowed type or UNKNOWN.
func (uc *CaseLedgerUseCase) OverrideType(ctx context.Context, caseRef, docID, typeCode string) (*domain.DocumentRecord, error) {
	code := domain.NormalizeTypeCode(typeCode)
	if code != "" && !domain.IsAllowedType(code, uc.allowedTypes) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "override type", fmt.Errorf("type %q is not allowed", typeCode))
	}

	var out domain.DocumentRecord
	_, err := uc.Update(ctx, caseRef, func(m *domain.CaseManifest) (bool, error) {
		doc, err := m.Document(docID)
		if err != nil {
			return false, err
		}
		changed := doc.TypeOverride != code
		doc.TypeOverride = code
		out = *doc
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (uc *CaseLedgerUseCase) Commit(ctx context.Context, caseRef string) (*domain.CaseManifest, error) {
	return uc.Update(ctx, caseRef, func(m *domain.CaseManifest) (bool, error) {
		if err := m.CommitSelection(uc.now()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Requeue gives a failed document another turn.
func (uc *CaseLedgerUseCase) Requeue(ctx context.Context, caseRef, docID string) (*domain.DocumentRecord, error) {
	var out domain.DocumentRecord
	_, err := uc.Update(ctx, caseRef, func(m *domain.CaseManifest) (bool, error) {
		doc, err := m.Document(docID)
		if err != nil {
			return false, err
		}
		if doc.Status != domain.StatusError {
			return false, domain.WrapError(domain.ErrInvalidTransition, "requeue document", fmt.Errorf("document %s is %s", docID, doc.Status))
		}
		if err := doc.Queue(); err != nil {
			return false, err
		}
		doc.ErrorMessage = ""
		out = *doc
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (uc *CaseLedgerUseCase) refreshIndex(ctx context.Context, m *domain.CaseManifest) {
	if uc.index == nil {
		return
	}
	if err := uc.index.Upsert(ctx, m.Summary()); err != nil {
		slog.Warn("case_index_upsert_failed", "case_id", m.Case.ID, "error", err)
	}
}

func (uc *CaseLedgerUseCase) publishChanges(ctx context.Context, before, after *domain.CaseManifest) {
	if uc.events == nil {
		return
	}
	previous := make(map[string]domain.DocumentRecord, len(before.Documents))
	for _, doc := range before.Documents {
		previous[doc.ID] = doc
	}
	for i := range after.Documents {
		doc := &after.Documents[i]
		old, existed := previous[doc.ID]
		if existed && old.Status == doc.Status && old.FinalType() == doc.FinalType() {
			continue
		}
		event := domain.DocumentEvent{
			CaseID:       after.Case.ID,
			DocumentID:   doc.ID,
			Filename:     doc.OriginalName,
			Status:       doc.Status,
			FinalType:    doc.FinalType(),
			ErrorMessage: doc.ErrorMessage,
			At:           after.UpdatedAt,
		}
		if err := uc.events.PublishDocumentEvent(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("document_event_publish_failed", "case_id", after.Case.ID, "doc_id", doc.ID, "error", err)
		}
	}
}
