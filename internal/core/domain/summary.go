package domain

import (
	"regexp"
	"strings"
	"time"
)

// GenerateOptions are the decoding parameters for one model call.
type GenerateOptions struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	Stop              []string
	ContextTokens     int
}

type BasicMeta struct {
	Verdachte     string `json:"verdachte"`
	Geboortedatum string `json:"geboortedatum"`
	Delict        string `json:"delict"`
	Advies        string `json:"advies"`
	Risico        string `json:"risico"`
}

// SummaryDocument is the structured summary artifact stored next to the plain text one.
type SummaryDocument struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	DocType     string    `json:"doc_type"`
	Workflow    string    `json:"workflow"`
	Summary     string    `json:"summary"`
	Meta        BasicMeta `json:"meta"`
	GeneratedAt time.Time `json:"generated_at"`
}

var (
	reVerdachte     = regexp.MustCompile(`(?i)(?:Verdachte|Betrokkene|Persoon):?\s*(.+)`)
	reGeboortedatum = regexp.MustCompile(`(?i)Geboortedatum:?\s*([\d\-.]{8,12})`)
	reDelict        = regexp.MustCompile(`(?i)Delict:?\s*(.+?)(?:\n|$)`)
	reAdvies        = regexp.MustCompile(`(?i)Advies:?\s*(.+?)(?:\n|$)`)
	reRisico        = regexp.MustCompile(`(?i)Risico(?:-inschatting)?:?\s*(Hoog|Midden|Laag)`)
)

// ExtractBasicMeta pulls a handful of labelled fields out of raw document text.
func ExtractBasicMeta(text string) BasicMeta {
	return BasicMeta{
		Verdachte:     firstGroup(reVerdachte, text),
		Geboortedatum: firstGroup(reGeboortedatum, text),
		Delict:        firstGroup(reDelict, text),
		Advies:        firstGroup(reAdvies, text),
		Risico:        capitalize(firstGroup(reRisico, text)),
	}
}

func firstGroup(re *regexp.Regexp, text string) string {
	match := re.FindStringSubmatch(text)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
