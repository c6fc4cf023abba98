package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

// CaseRepository mirrors case summaries for listing. The manifest on disk
// stays the source of truth; rows here are overwritten on every save.
type CaseRepository struct {
	db *sql.DB
}

func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CaseRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026050201)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS cases (
	case_id TEXT PRIMARY KEY,
	case_dir TEXT NOT NULL,
	committed BOOLEAN NOT NULL DEFAULT FALSE,
	total INTEGER NOT NULL DEFAULT 0,
	queued INTEGER NOT NULL DEFAULT 0,
	summarized INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	report_ready BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_created_at ON cases(created_at DESC);

CREATE TABLE IF NOT EXISTS case_documents (
	case_id TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	status TEXT NOT NULL,
	final_type TEXT,
	error_message TEXT,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (case_id, doc_id)
);

CREATE INDEX IF NOT EXISTS idx_case_documents_status ON case_documents(status, updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CaseRepository) Upsert(ctx context.Context, s domain.CaseSummary) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO cases (
	case_id, case_dir, committed, total, queued, summarized, failed, skipped, report_ready, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (case_id) DO UPDATE SET
	case_dir = EXCLUDED.case_dir,
	committed = EXCLUDED.committed,
	total = EXCLUDED.total,
	queued = EXCLUDED.queued,
	summarized = EXCLUDED.summarized,
	failed = EXCLUDED.failed,
	skipped = EXCLUDED.skipped,
	report_ready = EXCLUDED.report_ready,
	updated_at = EXCLUDED.updated_at
`,
		s.CaseID, s.Dir, s.Committed, s.Total, s.Queued, s.Summarized, s.Failed, s.Skipped, s.ReportReady,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "upsert case", err)
	}
	return nil
}

func (r *CaseRepository) List(ctx context.Context) ([]domain.CaseSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT case_id, case_dir, committed, total, queued, summarized, failed, skipped, report_ready, created_at, updated_at
FROM cases
ORDER BY created_at DESC, case_id DESC
`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list cases", err)
	}
	defer rows.Close()

	out := make([]domain.CaseSummary, 0)
	for rows.Next() {
		var s domain.CaseSummary
		if err := rows.Scan(
			&s.CaseID, &s.Dir, &s.Committed, &s.Total, &s.Queued, &s.Summarized, &s.Failed, &s.Skipped,
			&s.ReportReady, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "scan case", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "iterate cases", err)
	}
	return out, nil
}
