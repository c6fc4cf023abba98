package domain

import "strings"

const TypeUnknown = "UNKNOWN"

// DefaultAllowedTypes lists the type codes a classifier may emit besides UNKNOWN.
var DefaultAllowedTypes = []string{"PJ", "PV", "RECLASS", "TLL", "UJD", "VC"}

var basePriority = []string{"VC", "PJ", "PV", "RECLASS", "UJD", "TLL"}

var workflows = map[string]string{
	"PJ":      "Oude Pro Justitia rapportage",
	"VC":      "VC Samenvatter",
	"PV":      "PV Samenvatter",
	"RECLASS": "Reclasseringsrapport",
	"TLL":     "TLL Generator (obv vordering IBS)",
	"UJD":     "Uittreksel Samenvatter",
}

type DetectionSource string

const (
	DetectionFilenamePrefix DetectionSource = "filename_prefix"
	DetectionFilename       DetectionSource = "filename"
	DetectionContent        DetectionSource = "content"
	DetectionNone           DetectionSource = "none"
)

type Detection struct {
	Source  DetectionSource `json:"source,omitempty"`
	Keyword string          `json:"keyword,omitempty"`
	Score   int             `json:"score,omitempty"`
}

type Classification struct {
	Type string
	Detection
}

func NormalizeTypeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// TypePriority orders allowed types for tie-breaks: the fixed base order
// first, then any other configured type in configuration order.
func TypePriority(allowed []string) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, code := range allowed {
		allowedSet[NormalizeTypeCode(code)] = struct{}{}
	}

	out := make([]string, 0, len(allowed))
	seen := make(map[string]struct{}, len(allowed))
	for _, code := range basePriority {
		if _, ok := allowedSet[code]; ok {
			out = append(out, code)
			seen[code] = struct{}{}
		}
	}
	for _, code := range allowed {
		code = NormalizeTypeCode(code)
		if code == "" || code == TypeUnknown {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// IsAllowedType accepts UNKNOWN in addition to the configured codes.
func IsAllowedType(code string, allowed []string) bool {
	code = NormalizeTypeCode(code)
	if code == TypeUnknown {
		return true
	}
	for _, candidate := range allowed {
		if NormalizeTypeCode(candidate) == code {
			return true
		}
	}
	return false
}

func WorkflowFor(code string) string {
	if name, ok := workflows[NormalizeTypeCode(code)]; ok {
		return name
	}
	return "Standaard Samenvatting"
}
