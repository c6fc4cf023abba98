package summarization

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

//go:embed templates/*.txt
var embeddedTemplates embed.FS

// Templates maps type codes to user-message instructions.
type Templates struct {
	byType map[string]string
}

// LoadTemplates reads the built-in templates and lets files named
// <code>.txt in overrideDir replace them or add new types.
func LoadTemplates(overrideDir string) (*Templates, error) {
	t := &Templates{byType: make(map[string]string)}

	entries, err := fs.ReadDir(embeddedTemplates, "templates")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}
	for _, entry := range entries {
		raw, err := embeddedTemplates.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read embedded template %s: %w", entry.Name(), err)
		}
		t.set(entry.Name(), string(raw))
	}

	if strings.TrimSpace(overrideDir) == "" {
		return t, nil
	}
	matches, err := filepath.Glob(filepath.Join(overrideDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("list prompt templates: %w", err)
	}
	for _, match := range matches {
		raw, err := os.ReadFile(match)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read prompt template %s: %w", match, err)
		}
		t.set(filepath.Base(match), string(raw))
		slog.Debug("prompt_template_override", "path", match)
	}
	return t, nil
}

func (t *Templates) set(filename, body string) {
	code := domain.NormalizeTypeCode(strings.TrimSuffix(filename, filepath.Ext(filename)))
	body = strings.TrimSpace(body)
	if code == "" || body == "" {
		return
	}
	t.byType[code] = body
}

// For returns the template of a type, falling back to the UNKNOWN template.
func (t *Templates) For(docType string) string {
	if body, ok := t.byType[domain.NormalizeTypeCode(docType)]; ok {
		return body
	}
	return t.byType[domain.TypeUnknown]
}
