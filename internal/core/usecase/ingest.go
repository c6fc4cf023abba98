package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

// CaseIngestUseCase runs the classification stage: it walks a case's source
// directory file by file and appends one detected record per readable file.
type CaseIngestUseCase struct {
	ledger     *CaseLedgerUseCase
	store      ports.ManifestStore
	artifacts  ports.ArtifactStore
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	settings   domain.CaseSettings
	now        func() time.Time
}

func NewCaseIngestUseCase(
	ledger *CaseLedgerUseCase,
	store ports.ManifestStore,
	artifacts ports.ArtifactStore,
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	settings domain.CaseSettings,
) *CaseIngestUseCase {
	return &CaseIngestUseCase{
		ledger:     ledger,
		store:      store,
		artifacts:  artifacts,
		extractor:  extractor,
		classifier: classifier,
		settings:   settings,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (uc *CaseIngestUseCase) CreateCase(ctx context.Context, sourceDir string) (*domain.CaseManifest, error) {
	dir := strings.TrimSpace(sourceDir)
	if dir == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create case", errors.New("source directory is required"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create case", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create case", fmt.Errorf("%s is not a directory", sourceDir))
	}

	manifest, err := uc.store.CreateCase(ctx, abs, uc.settings, uc.now())
	if err != nil {
		return nil, err
	}
	uc.ledger.Register(ctx, manifest)
	return manifest.Clone(), nil
}

// ClassifyCase imports every file of the source directory that is not in the
// ledger yet. The manifest is saved after each file, so a canceled or
// crashed pass continues where it stopped.
func (uc *CaseIngestUseCase) ClassifyCase(ctx context.Context, caseRef string) (domain.ClassificationReport, error) {
	manifest, err := uc.ledger.Get(ctx, caseRef)
	if err != nil {
		return domain.ClassificationReport{}, err
	}
	report := domain.ClassificationReport{CaseID: manifest.Case.ID}
	if manifest.Committed() {
		return report, domain.WrapError(domain.ErrConflict, "classify case", fmt.Errorf("case %s selection is already committed", manifest.Case.ID))
	}
	sourceDir := manifest.Case.SourcePath
	if sourceDir == "" {
		return report, domain.WrapError(domain.ErrInvalidInput, "classify case", fmt.Errorf("case %s has no source directory", manifest.Case.ID))
	}

	files, err := listSourceFiles(sourceDir)
	if err != nil {
		return report, domain.WrapError(domain.ErrInvalidInput, "classify case", err)
	}
	known := make(map[string]struct{}, len(manifest.Documents))
	for _, doc := range manifest.Documents {
		known[doc.OriginalName] = struct{}{}
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			break
		}
		if _, ok := known[rel]; ok {
			continue
		}
		added, reason, err := uc.classifyFile(ctx, caseRef, manifest, sourceDir, rel)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				report.Canceled = true
				break
			}
			return report, err
		}
		if !added && ctx.Err() != nil {
			report.Canceled = true
			break
		}
		if !added {
			report.Skipped = append(report.Skipped, domain.SkippedFile{Path: rel, Reason: reason})
			continue
		}
		report.Added++
	}

	slog.Info("case_classified",
		"case_id", report.CaseID,
		"added", report.Added,
		"skipped", len(report.Skipped),
		"canceled", report.Canceled,
	)
	return report, nil
}

// classifyFile returns a skip reason for files without text. Only
// persistence failures are returned as errors.
func (uc *CaseIngestUseCase) classifyFile(ctx context.Context, caseRef string, manifest *domain.CaseManifest, sourceDir, rel string) (bool, string, error) {
	path := filepath.Join(sourceDir, filepath.FromSlash(rel))
	text, err := uc.extractor.Extract(ctx, path)
	if err != nil {
		slog.Warn("document_extract_failed", "case_id", manifest.Case.ID, "path", rel, "error", err)
		return false, err.Error(), nil
	}
	if strings.TrimSpace(text) == "" {
		slog.Warn("document_without_text", "case_id", manifest.Case.ID, "path", rel)
		return false, "no extractable text", nil
	}

	docID := uuid.NewString()
	imported, err := uc.artifacts.ImportOriginal(ctx, manifest, path)
	if err != nil {
		return false, "", err
	}
	textPath, err := uc.artifacts.WriteText(ctx, manifest, docID, text)
	if err != nil {
		return false, "", err
	}

	classification := uc.classifier.Classify(filepath.Base(rel), text)
	record := domain.DocumentRecord{
		ID:           docID,
		OriginalName: rel,
		SourcePath:   imported,
		FileExt:      strings.ToLower(filepath.Ext(rel)),
		TextPath:     textPath,
		DetectedType: classification.Type,
		Detection:    classification.Detection,
		Selected:     true,
		Status:       domain.StatusDetected,
	}
	// Persisting must finish even when the caller cancels mid-file.
	_, err = uc.ledger.Update(context.WithoutCancel(ctx), caseRef, func(m *domain.CaseManifest) (bool, error) {
		if err := m.AddDocument(record); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, "", err
	}
	return true, "", nil
}

// listSourceFiles returns slash-separated relative paths in lexical order,
// leaving out archive metadata such as __MACOSX and AppleDouble files.
func listSourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if name == "__MACOSX" && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if name == ".DS_Store" || strings.HasPrefix(name, "._") || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}
