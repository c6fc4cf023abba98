package summarization

import (
	"regexp"
	"strings"
)

var (
	blankLineRun    = regexp.MustCompile(`\n{3,}`)
	pageNumber      = regexp.MustCompile(`(?i)Pagina\s+\d+\s+van\s+\d+\s*`)
	returnAddress   = regexp.MustCompile(`(?im)^\s*Retouradres.*$`)
	tllCutMarker    = regexp.MustCompile(`(?i)\bOverwegende\b`)
	leadingEcho     = regexp.MustCompile(`(?i)^\s*je bent.*?\n`)
	repeatedEchoRun = regexp.MustCompile(`(?i)(\bje bent\b[\s,;:.!?]*){2,}`)
)

// Sanitize removes extraction boilerplate: page counters, return address
// lines and markdown bold markers.
func Sanitize(text string) string {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	s = pageNumber.ReplaceAllString(s, "")
	s = returnAddress.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}

// TruncateForType drops the part of a document that carries no content for
// its type. Only TLL requests are cut, at the first "Overwegende".
func TruncateForType(docType, text string) string {
	if !strings.EqualFold(strings.TrimSpace(docType), "TLL") {
		return text
	}
	loc := tllCutMarker.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return strings.TrimSpace(text[:loc[0]])
}

// CleanEcho strips instruction text the model repeated back.
func CleanEcho(text string) string {
	t := strings.TrimSpace(text)
	t = leadingEcho.ReplaceAllString(t, "")
	t = repeatedEchoRun.ReplaceAllString(t, "Je bent ")
	return strings.TrimSpace(t)
}
