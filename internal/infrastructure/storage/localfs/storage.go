package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

const (
	ManifestFile    = "manifest.json"
	extractedDir    = "extracted"
	textDir         = "text"
	summariesDir    = "summaries"
	finalDir        = "final"
	finalReportFile = "final_report.txt"
)

// Storage keeps one directory per case under basePath.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/cases"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create cases dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) BasePath() string {
	return s.basePath
}

func (s *Storage) CreateCase(_ context.Context, sourcePath string, settings domain.CaseSettings, now time.Time) (*domain.CaseManifest, error) {
	caseID := domain.NewCaseID(now)
	dir := filepath.Join(s.basePath, caseID)
	info := domain.CaseInfo{
		ID:           caseID,
		Dir:          dir,
		SourcePath:   sourcePath,
		ExtractedDir: filepath.Join(dir, extractedDir),
		TextDir:      filepath.Join(dir, textDir),
		SummariesDir: filepath.Join(dir, summariesDir),
		FinalDir:     filepath.Join(dir, finalDir),
		CreatedAt:    now,
	}
	if err := ensureCaseDirs(info); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "create case", err)
	}

	manifest := domain.NewCaseManifest(info, settings, now)
	if err := s.writeManifest(manifest); err != nil {
		return nil, err
	}
	slog.Info("case_created", "case_id", caseID, "case_dir", dir)
	return manifest, nil
}

// Load accepts a case id, a case directory or the path of a manifest file.
func (s *Storage) Load(_ context.Context, caseRef string) (*domain.CaseManifest, error) {
	path, err := s.resolveManifest(caseRef)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrCaseNotFound, "load manifest", fmt.Errorf("%s: %w", caseRef, err))
		}
		return nil, domain.WrapError(domain.ErrPersistence, "load manifest", err)
	}

	var manifest domain.CaseManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "decode manifest", fmt.Errorf("%s: %w", path, err))
	}
	if err := manifest.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "decode manifest", fmt.Errorf("%s: %w", path, err))
	}
	if manifest.Documents == nil {
		manifest.Documents = []domain.DocumentRecord{}
	}
	if err := ensureCaseDirs(manifest.Case); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "load manifest", err)
	}
	return &manifest, nil
}

func (s *Storage) Save(_ context.Context, manifest *domain.CaseManifest) error {
	if manifest == nil {
		return domain.WrapError(domain.ErrInvalidInput, "save manifest", errors.New("manifest is nil"))
	}
	if err := manifest.Validate(); err != nil {
		return err
	}
	return s.writeManifest(manifest)
}

func (s *Storage) writeManifest(manifest *domain.CaseManifest) error {
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "encode manifest", err)
	}
	if err := writeAtomic(filepath.Join(manifest.Case.Dir, ManifestFile), append(raw, '\n')); err != nil {
		return domain.WrapError(domain.ErrPersistence, "write manifest", err)
	}
	return nil
}

func (s *Storage) resolveManifest(caseRef string) (string, error) {
	ref := strings.TrimSpace(caseRef)
	if ref == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve case", errors.New("case reference is required"))
	}
	if ref == "." || ref == ".." {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve case", fmt.Errorf("invalid case reference %q", caseRef))
	}
	if !strings.ContainsAny(ref, `/\`) {
		return filepath.Join(s.basePath, ref, ManifestFile), nil
	}
	if filepath.Base(ref) == ManifestFile {
		return ref, nil
	}
	return filepath.Join(ref, ManifestFile), nil
}

func ensureCaseDirs(info domain.CaseInfo) error {
	for _, dir := range []string{info.Dir, info.ExtractedDir, info.TextDir, info.SummariesDir, info.FinalDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
