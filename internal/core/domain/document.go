package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type DocumentStatus string

const (
	// StatusExtracted is only produced by older manifests; it is accepted on
	// load and advanced to queued by resume normalization.
	StatusExtracted   DocumentStatus = "extracted"
	StatusDetected    DocumentStatus = "detected"
	StatusQueued      DocumentStatus = "queued"
	StatusSummarizing DocumentStatus = "summarizing"
	StatusSummarized  DocumentStatus = "summarized"
	StatusError       DocumentStatus = "error"
	StatusSkipped     DocumentStatus = "skipped"
)

var allowedTransitions = map[DocumentStatus][]DocumentStatus{
	StatusExtracted:   {StatusDetected, StatusQueued, StatusSummarized, StatusSkipped},
	StatusDetected:    {StatusQueued, StatusSummarized, StatusSkipped},
	StatusQueued:      {StatusSummarizing, StatusSummarized, StatusSkipped},
	StatusSummarizing: {StatusSummarized, StatusError, StatusQueued, StatusSkipped},
	StatusSummarized:  {StatusSkipped},
	StatusError:       {StatusQueued, StatusSummarized, StatusSkipped},
	StatusSkipped:     {StatusDetected, StatusQueued},
}

func ParseDocumentStatus(raw string) (DocumentStatus, error) {
	status := DocumentStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", WrapError(ErrInvalidInput, "parse document status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

func (s DocumentStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether a document in this status needs no further work.
func (s DocumentStatus) Terminal() bool {
	return s == StatusSummarized || s == StatusError || s == StatusSkipped
}

func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s *DocumentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode document status: %w", err)
	}
	parsed, err := ParseDocumentStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type SummaryArtifact struct {
	TxtPath      string     `json:"txt_path,omitempty"`
	JSONPath     string     `json:"json_path,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type DocumentRecord struct {
	ID           string           `json:"doc_id"`
	OriginalName string           `json:"original_name"`
	SourcePath   string           `json:"source_path"`
	FileExt      string           `json:"file_ext"`
	TextPath     string           `json:"text_path,omitempty"`
	DetectedType string           `json:"detected_type"`
	Detection    Detection        `json:"detection"`
	TypeOverride string           `json:"type_override,omitempty"`
	Selected     bool             `json:"selected"`
	Status       DocumentStatus   `json:"status"`
	Summary      *SummaryArtifact `json:"summary,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// FinalType is the user override when set, otherwise the detected type.
func (d *DocumentRecord) FinalType() string {
	if override := strings.TrimSpace(d.TypeOverride); override != "" {
		return override
	}
	return d.DetectedType
}

func (d *DocumentRecord) Queue() error {
	if !d.Selected {
		return WrapError(ErrInvalidTransition, "queue document "+d.ID, fmt.Errorf("document is not selected"))
	}
	if d.Status == StatusQueued {
		return nil
	}
	return d.transition(StatusQueued)
}

func (d *DocumentRecord) Claim() error {
	if d.Status != StatusQueued {
		return WrapError(ErrInvalidTransition, "claim document "+d.ID, fmt.Errorf("status is %s", d.Status))
	}
	return d.transition(StatusSummarizing)
}

func (d *DocumentRecord) Complete(artifact SummaryArtifact, now time.Time) error {
	if d.Status != StatusSummarizing {
		return WrapError(ErrInvalidTransition, "complete document "+d.ID, fmt.Errorf("status is %s", d.Status))
	}
	if err := d.transition(StatusSummarized); err != nil {
		return err
	}
	d.recordArtifact(artifact, now)
	return nil
}

func (d *DocumentRecord) Fail(message string, now time.Time) error {
	if d.Status != StatusSummarizing {
		return WrapError(ErrInvalidTransition, "fail document "+d.ID, fmt.Errorf("status is %s", d.Status))
	}
	if err := d.transition(StatusError); err != nil {
		return err
	}
	d.ErrorMessage = message
	if d.Summary == nil {
		d.Summary = &SummaryArtifact{}
	}
	stamp := now
	d.Summary.UpdatedAt = &stamp
	d.Summary.ErrorMessage = message
	return nil
}

func (d *DocumentRecord) Deselect() error {
	d.Selected = false
	if d.Status == StatusSkipped {
		return nil
	}
	return d.transition(StatusSkipped)
}

// Select re-includes a skipped document. Once the selection is committed the
// document goes straight to the queue.
func (d *DocumentRecord) Select(committed bool) error {
	if d.Selected {
		return nil
	}
	next := StatusDetected
	if committed {
		next = StatusQueued
	}
	if d.Status != next {
		if err := d.transition(next); err != nil {
			return err
		}
	}
	d.Selected = true
	return nil
}

func (d *DocumentRecord) ResetInterrupted() error {
	if d.Status != StatusSummarizing {
		return nil
	}
	return d.transition(StatusQueued)
}

// MarkSummarized trusts artifacts already on disk over the recorded status.
func (d *DocumentRecord) MarkSummarized(artifact SummaryArtifact, now time.Time) error {
	if d.Status == StatusSummarized {
		return nil
	}
	if err := d.transition(StatusSummarized); err != nil {
		return err
	}
	d.recordArtifact(artifact, now)
	return nil
}

func (d *DocumentRecord) recordArtifact(artifact SummaryArtifact, now time.Time) {
	stamp := now
	artifact.UpdatedAt = &stamp
	artifact.ErrorMessage = ""
	d.Summary = &artifact
	d.ErrorMessage = ""
}

func (d *DocumentRecord) transition(next DocumentStatus) error {
	if !d.Status.CanTransitionTo(next) {
		return WrapError(ErrInvalidTransition, "document "+d.ID, fmt.Errorf("%s -> %s", d.Status, next))
	}
	d.Status = next
	return nil
}

func (d DocumentRecord) clone() DocumentRecord {
	out := d
	if d.Summary != nil {
		summary := *d.Summary
		if d.Summary.UpdatedAt != nil {
			stamp := *d.Summary.UpdatedAt
			summary.UpdatedAt = &stamp
		}
		out.Summary = &summary
	}
	return out
}
