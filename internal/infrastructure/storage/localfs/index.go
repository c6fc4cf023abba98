package localfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

// Index lists cases by scanning the cases root. It has nothing to store:
// every manifest already is the index entry of its case.
type Index struct {
	storage *Storage
}

func NewIndex(storage *Storage) *Index {
	return &Index{storage: storage}
}

func (i *Index) Upsert(context.Context, domain.CaseSummary) error {
	return nil
}

// List returns the cases newest first. Unreadable manifests are logged and skipped.
func (i *Index) List(ctx context.Context) ([]domain.CaseSummary, error) {
	entries, err := os.ReadDir(i.storage.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.CaseSummary{}, nil
		}
		return nil, fmt.Errorf("list cases: %w", err)
	}

	out := make([]domain.CaseSummary, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(i.storage.basePath, entry.Name(), ManifestFile)); err != nil {
			continue
		}
		manifest, err := i.storage.Load(ctx, entry.Name())
		if err != nil {
			slog.Warn("case_index_skip", "case", entry.Name(), "error", err)
			continue
		}
		out = append(out, manifest.Summary())
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CaseID > out[b].CaseID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}
