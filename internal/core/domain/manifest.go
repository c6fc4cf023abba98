package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const ManifestVersion = 1

type CaseInfo struct {
	ID               string     `json:"case_id"`
	Dir              string     `json:"case_dir"`
	SourcePath       string     `json:"source_path,omitempty"`
	ExtractedDir     string     `json:"extracted_dir"`
	TextDir          string     `json:"text_dir"`
	SummariesDir     string     `json:"summaries_dir"`
	FinalDir         string     `json:"final_dir"`
	FinalReportPath  string     `json:"final_report_path,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ArchiveCreatedAt *time.Time `json:"archive_created_at,omitempty"`
}

type CaseSettings struct {
	Language      string   `json:"language"`
	OutputFormats []string `json:"output_formats"`
	Model         string   `json:"model,omitempty"`
}

type CaseManifest struct {
	Version   int              `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
	Case      CaseInfo         `json:"case"`
	Documents []DocumentRecord `json:"documents"`
	Settings  CaseSettings     `json:"settings"`
}

// ArtifactProbe reports the summary artifact of a document if it already
// exists on durable storage.
type ArtifactProbe func(doc DocumentRecord) (SummaryArtifact, bool)

// ValidateCaseID accepts a bare case id. Network callers must not be able
// to name a directory outside the cases root.
func ValidateCaseID(caseID string) error {
	id := strings.TrimSpace(caseID)
	switch {
	case id == "":
		return WrapError(ErrInvalidInput, "validate case id", errors.New("case id is required"))
	case id == ".", strings.Contains(id, ".."), strings.ContainsAny(id, `/\`):
		return WrapError(ErrInvalidInput, "validate case id", fmt.Errorf("invalid case id %q", caseID))
	}
	return nil
}

// NewCaseID derives a case id from the creation time plus a random suffix.
func NewCaseID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return now.Format("2006-01-02_150405") + "_" + suffix
}

func DefaultCaseSettings() CaseSettings {
	return CaseSettings{
		Language:      "nl",
		OutputFormats: []string{"txt", "json"},
	}
}

func NewCaseManifest(info CaseInfo, settings CaseSettings, now time.Time) *CaseManifest {
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	return &CaseManifest{
		Version:   ManifestVersion,
		UpdatedAt: now,
		Case:      info,
		Documents: []DocumentRecord{},
		Settings:  settings,
	}
}

func (m *CaseManifest) Touch(now time.Time) {
	m.UpdatedAt = now
}

func (m *CaseManifest) Committed() bool {
	return m.Case.ArchiveCreatedAt != nil
}

func (m *CaseManifest) AddDocument(doc DocumentRecord) error {
	if strings.TrimSpace(doc.ID) == "" {
		return WrapError(ErrInvalidInput, "add document", errors.New("document id is required"))
	}
	if !doc.Status.Valid() {
		return WrapError(ErrInvalidInput, "add document", fmt.Errorf("invalid status %q", doc.Status))
	}
	if !doc.Selected && doc.Status != StatusSkipped {
		return WrapError(ErrInvalidInput, "add document", errors.New("unselected document must be skipped"))
	}
	for i := range m.Documents {
		if m.Documents[i].ID == doc.ID {
			return WrapError(ErrConflict, "add document", fmt.Errorf("duplicate document id %s", doc.ID))
		}
	}
	m.Documents = append(m.Documents, doc)
	return nil
}

func (m *CaseManifest) Document(id string) (*DocumentRecord, error) {
	for i := range m.Documents {
		if m.Documents[i].ID == id {
			return &m.Documents[i], nil
		}
	}
	return nil, WrapError(ErrDocumentNotFound, "find document", fmt.Errorf("case %s: %s", m.Case.ID, id))
}

// CommitSelection freezes the selected set: selected documents are queued,
// the rest are skipped, and summarization may start.
func (m *CaseManifest) CommitSelection(now time.Time) error {
	if m.Committed() {
		return WrapError(ErrConflict, "commit selection", fmt.Errorf("case %s already committed", m.Case.ID))
	}
	selected := 0
	for i := range m.Documents {
		if m.Documents[i].Selected {
			selected++
		}
	}
	if selected == 0 {
		return WrapError(ErrInvalidInput, "commit selection", errors.New("no documents selected"))
	}

	for i := range m.Documents {
		doc := &m.Documents[i]
		if !doc.Selected {
			if err := doc.Deselect(); err != nil {
				return err
			}
			continue
		}
		if doc.Status == StatusDetected || doc.Status == StatusExtracted || doc.Status == StatusError {
			if err := doc.Queue(); err != nil {
				return err
			}
		}
	}
	stamp := now
	m.Case.ArchiveCreatedAt = &stamp
	return nil
}

func (m *CaseManifest) NextQueued() *DocumentRecord {
	for i := range m.Documents {
		if m.Documents[i].Selected && m.Documents[i].Status == StatusQueued {
			return &m.Documents[i]
		}
	}
	return nil
}

func (m *CaseManifest) InFlight() *DocumentRecord {
	for i := range m.Documents {
		if m.Documents[i].Status == StatusSummarizing {
			return &m.Documents[i]
		}
	}
	return nil
}

// ClaimNext moves the first queued document to summarizing. It returns nil
// when nothing is queued and refuses while another document is in flight.
func (m *CaseManifest) ClaimNext() (*DocumentRecord, error) {
	if inflight := m.InFlight(); inflight != nil {
		return nil, WrapError(ErrConflict, "claim next document", fmt.Errorf("document %s is already summarizing", inflight.ID))
	}
	doc := m.NextQueued()
	if doc == nil {
		return nil, nil
	}
	if err := doc.Claim(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *CaseManifest) Counts() map[DocumentStatus]int {
	out := make(map[DocumentStatus]int, len(allowedTransitions))
	for i := range m.Documents {
		out[m.Documents[i].Status]++
	}
	return out
}

// SummarizedSelection returns selected, summarized documents in insertion order.
func (m *CaseManifest) SummarizedSelection() []DocumentRecord {
	out := make([]DocumentRecord, 0, len(m.Documents))
	for i := range m.Documents {
		if m.Documents[i].Selected && m.Documents[i].Status == StatusSummarized {
			out = append(out, m.Documents[i].clone())
		}
	}
	return out
}

// NormalizeForResume repairs the ledger after a restart and returns the
// number of documents it changed. A second call on the result changes nothing.
func (m *CaseManifest) NormalizeForResume(probe ArtifactProbe, now time.Time) (int, error) {
	changed := 0
	committed := m.Committed()
	for i := range m.Documents {
		doc := &m.Documents[i]
		if !doc.Selected {
			if doc.Status != StatusSkipped {
				if err := doc.Deselect(); err != nil {
					return changed, err
				}
				changed++
			}
			continue
		}

		if doc.Status != StatusSummarized && doc.Status != StatusSkipped && probe != nil {
			if artifact, ok := probe(*doc); ok {
				if err := doc.MarkSummarized(artifact, now); err != nil {
					return changed, err
				}
				changed++
				continue
			}
		}

		switch doc.Status {
		case StatusSummarizing:
			if err := doc.ResetInterrupted(); err != nil {
				return changed, err
			}
			changed++
		case StatusDetected, StatusExtracted:
			if !committed {
				continue
			}
			if err := doc.Queue(); err != nil {
				return changed, err
			}
			changed++
		}
	}
	return changed, nil
}

func (m *CaseManifest) Clone() *CaseManifest {
	if m == nil {
		return nil
	}
	out := *m
	if m.Case.ArchiveCreatedAt != nil {
		stamp := *m.Case.ArchiveCreatedAt
		out.Case.ArchiveCreatedAt = &stamp
	}
	if m.Documents != nil {
		out.Documents = make([]DocumentRecord, len(m.Documents))
		for i := range m.Documents {
			out.Documents[i] = m.Documents[i].clone()
		}
	}
	if m.Settings.OutputFormats != nil {
		out.Settings.OutputFormats = append([]string(nil), m.Settings.OutputFormats...)
	}
	return &out
}

// Validate checks invariants that decoding alone cannot enforce.
func (m *CaseManifest) Validate() error {
	if strings.TrimSpace(m.Case.ID) == "" {
		return WrapError(ErrInvalidInput, "validate manifest", errors.New("case id is required"))
	}
	seen := make(map[string]struct{}, len(m.Documents))
	inflight := 0
	for i := range m.Documents {
		doc := &m.Documents[i]
		if _, ok := seen[doc.ID]; ok {
			return WrapError(ErrInvalidInput, "validate manifest", fmt.Errorf("duplicate document id %s", doc.ID))
		}
		seen[doc.ID] = struct{}{}
		if !doc.Selected && doc.Status != StatusSkipped {
			return WrapError(ErrInvalidInput, "validate manifest", fmt.Errorf("document %s is unselected but %s", doc.ID, doc.Status))
		}
		if doc.Status == StatusSummarizing {
			inflight++
		}
	}
	if inflight > 1 {
		return WrapError(ErrInvalidInput, "validate manifest", fmt.Errorf("%d documents summarizing", inflight))
	}
	return nil
}

// CaseSummary is the listing view of a case, kept in the case index.
type CaseSummary struct {
	CaseID      string    `json:"case_id"`
	Dir         string    `json:"case_dir"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Committed   bool      `json:"committed"`
	Total       int       `json:"total"`
	Queued      int       `json:"queued"`
	Summarized  int       `json:"summarized"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	ReportReady bool      `json:"report_ready"`
}

func (m *CaseManifest) Summary() CaseSummary {
	counts := m.Counts()
	return CaseSummary{
		CaseID:      m.Case.ID,
		Dir:         m.Case.Dir,
		CreatedAt:   m.Case.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Committed:   m.Committed(),
		Total:       len(m.Documents),
		Queued:      counts[StatusQueued] + counts[StatusSummarizing],
		Summarized:  counts[StatusSummarized],
		Failed:      counts[StatusError],
		Skipped:     counts[StatusSkipped],
		ReportReady: m.Case.FinalReportPath != "",
	}
}
