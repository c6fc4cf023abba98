package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	blankLineRun = regexp.MustCompile(`\n{3,}`)
	pageNumber   = regexp.MustCompile(`(?i)Pagina\s+\d+\s+van\s+\d+\s*`)
)

type formatReader func(ctx context.Context, path string) (string, error)

// Extractor reads text from .txt, .md, .pdf, .docx and .xlsx files. Other
// formats yield an empty string and no error.
type Extractor struct {
	readers map[string]formatReader
}

func NewExtractor() *Extractor {
	return &Extractor{readers: map[string]formatReader{
		".txt":  readPlainText,
		".md":   readPlainText,
		".pdf":  readPDF,
		".docx": readDOCX,
		".xlsx": readXLSX,
	}}
}

func (e *Extractor) Supports(path string) bool {
	_, ok := e.readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	read, ok := e.readers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := read(ctx, path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	return normalize(text), nil
}

func readPlainText(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), "\ufeff"), nil
	}
	// Legacy exports are mostly Windows-1252.
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), ""), nil
	}
	return string(decoded), nil
}

func normalize(text string) string {
	t := strings.ReplaceAll(text, "\r\n", "\n")
	t = blankLineRun.ReplaceAllString(t, "\n\n")
	t = pageNumber.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}
