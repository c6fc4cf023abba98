package domain

import "time"

// DocumentEvent announces a persisted status change of one document.
type DocumentEvent struct {
	CaseID       string         `json:"case_id"`
	DocumentID   string         `json:"doc_id"`
	Filename     string         `json:"filename"`
	Status       DocumentStatus `json:"status"`
	FinalType    string         `json:"final_type,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	At           time.Time      `json:"at"`
}

type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ClassificationReport describes one pass of the classification stage.
type ClassificationReport struct {
	CaseID   string        `json:"case_id"`
	Added    int           `json:"added"`
	Skipped  []SkippedFile `json:"skipped,omitempty"`
	Canceled bool          `json:"canceled,omitempty"`
}

// RunReport describes one pass of the summarization stage.
type RunReport struct {
	CaseID     string `json:"case_id"`
	Normalized int    `json:"normalized"`
	Summarized int    `json:"summarized"`
	Failed     int    `json:"failed"`
	Remaining  int    `json:"remaining"`
	Canceled   bool   `json:"canceled,omitempty"`
}
