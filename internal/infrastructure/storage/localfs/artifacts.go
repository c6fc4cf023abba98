package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

// ImportOriginal copies a source file into the case's extracted dir without
// overwriting: a clash becomes name__1.ext, name__2.ext and so on.
func (s *Storage) ImportOriginal(ctx context.Context, manifest *domain.CaseManifest, srcPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := caseSubdir(manifest, manifest.Case.ExtractedDir, extractedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.WrapError(domain.ErrPersistence, "import original", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", domain.WrapError(domain.ErrPersistence, "import original", err)
	}
	defer src.Close()

	dest, f, err := createUnique(dir, filepath.Base(srcPath))
	if err != nil {
		return "", domain.WrapError(domain.ErrPersistence, "import original", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return "", domain.WrapError(domain.ErrPersistence, "import original", fmt.Errorf("copy %s: %w", srcPath, err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return "", domain.WrapError(domain.ErrPersistence, "import original", err)
	}
	return dest, nil
}

func createUnique(dir, name string) (string, *os.File, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return candidate, f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", nil, err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s__%d%s", stem, i, ext))
	}
}

func (s *Storage) WriteText(_ context.Context, manifest *domain.CaseManifest, docID, text string) (string, error) {
	dir := caseSubdir(manifest, manifest.Case.TextDir, textDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.WrapError(domain.ErrPersistence, "write text", err)
	}
	path := filepath.Join(dir, docID+".txt")
	if err := writeAtomic(path, []byte(text)); err != nil {
		return "", domain.WrapError(domain.ErrPersistence, "write text", err)
	}
	return path, nil
}

func (s *Storage) ReadText(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text %s: %w", path, err)
	}
	return string(raw), nil
}

// WriteSummary stores <id>.summary.txt and <id>.summary.json. The text file
// goes last, so its presence marks a complete pair.
func (s *Storage) WriteSummary(_ context.Context, manifest *domain.CaseManifest, summary domain.SummaryDocument) (domain.SummaryArtifact, error) {
	txtPath, jsonPath := summaryPaths(manifest, summary.ID)
	if err := os.MkdirAll(filepath.Dir(txtPath), 0o755); err != nil {
		return domain.SummaryArtifact{}, domain.WrapError(domain.ErrPersistence, "write summary", err)
	}

	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return domain.SummaryArtifact{}, domain.WrapError(domain.ErrPersistence, "encode summary", err)
	}
	if err := writeAtomic(jsonPath, append(raw, '\n')); err != nil {
		return domain.SummaryArtifact{}, domain.WrapError(domain.ErrPersistence, "write summary", err)
	}
	if err := writeAtomic(txtPath, []byte(summary.Summary+"\n")); err != nil {
		return domain.SummaryArtifact{}, domain.WrapError(domain.ErrPersistence, "write summary", err)
	}

	generated := summary.GeneratedAt
	return domain.SummaryArtifact{TxtPath: txtPath, JSONPath: jsonPath, UpdatedAt: &generated}, nil
}

// ProbeSummary reports a summary already on disk, either at the paths the
// record names or at the conventional paths of its id.
func (s *Storage) ProbeSummary(manifest *domain.CaseManifest, doc domain.DocumentRecord) (domain.SummaryArtifact, bool) {
	txtPath, jsonPath := summaryPaths(manifest, doc.ID)
	if doc.Summary != nil && doc.Summary.TxtPath != "" {
		txtPath = doc.Summary.TxtPath
		if doc.Summary.JSONPath != "" {
			jsonPath = doc.Summary.JSONPath
		}
	}

	info, err := os.Stat(txtPath)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return domain.SummaryArtifact{}, false
	}
	artifact := domain.SummaryArtifact{TxtPath: txtPath}
	if _, err := os.Stat(jsonPath); err == nil {
		artifact.JSONPath = jsonPath
	}
	modified := info.ModTime().UTC()
	artifact.UpdatedAt = &modified
	return artifact, true
}

func (s *Storage) ReadSummary(_ context.Context, artifact domain.SummaryArtifact) (string, error) {
	if artifact.TxtPath == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "read summary", errors.New("summary path is empty"))
	}
	raw, err := os.ReadFile(artifact.TxtPath)
	if err != nil {
		return "", domain.WrapError(domain.ErrPersistence, "read summary", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *Storage) WriteReport(_ context.Context, manifest *domain.CaseManifest, content string) (string, error) {
	dir := caseSubdir(manifest, manifest.Case.FinalDir, finalDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.WrapError(domain.ErrPersistence, "write report", err)
	}
	path := filepath.Join(dir, finalReportFile)
	if err := writeAtomic(path, []byte(content)); err != nil {
		return "", domain.WrapError(domain.ErrPersistence, "write report", err)
	}
	return path, nil
}

func summaryPaths(manifest *domain.CaseManifest, docID string) (string, string) {
	dir := caseSubdir(manifest, manifest.Case.SummariesDir, summariesDir)
	return filepath.Join(dir, docID+".summary.txt"), filepath.Join(dir, docID+".summary.json")
}

func caseSubdir(manifest *domain.CaseManifest, configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(manifest.Case.Dir, fallback)
}
