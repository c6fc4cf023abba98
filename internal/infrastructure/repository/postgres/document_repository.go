package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

const defaultDocumentLimit = 100

// DocumentRepository keeps the latest status of every document, fed by the
// ledger's document events.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) PublishDocumentEvent(ctx context.Context, e domain.DocumentEvent) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO case_documents (case_id, doc_id, filename, status, final_type, error_message, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (case_id, doc_id) DO UPDATE SET
	filename = EXCLUDED.filename,
	status = EXCLUDED.status,
	final_type = EXCLUDED.final_type,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
WHERE case_documents.updated_at <= EXCLUDED.updated_at
`, e.CaseID, e.DocumentID, e.Filename, string(e.Status), e.FinalType, e.ErrorMessage, e.At)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "record document status", err)
	}
	return nil
}

func (r *DocumentRepository) ListDocumentsByStatus(ctx context.Context, status domain.DocumentStatus, limit int) ([]domain.DocumentEvent, error) {
	if !status.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown status %q", status))
	}
	if limit <= 0 {
		limit = defaultDocumentLimit
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT case_id, doc_id, filename, status, COALESCE(final_type, ''), COALESCE(error_message, ''), updated_at
FROM case_documents
WHERE status = $1
ORDER BY updated_at DESC
LIMIT $2
`, string(status), limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list documents", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentEvent, 0)
	for rows.Next() {
		var e domain.DocumentEvent
		var rawStatus string
		if err := rows.Scan(&e.CaseID, &e.DocumentID, &e.Filename, &rawStatus, &e.FinalType, &e.ErrorMessage, &e.At); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan document", err)
		}
		e.Status = domain.DocumentStatus(rawStatus)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate documents", err)
	}
	return out, nil
}
