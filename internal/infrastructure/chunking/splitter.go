package chunking

import "strings"

const (
	DefaultMaxChars = 1800
	// A window is cut at its last newline only when that newline lies past
	// this fraction of the window.
	paragraphBreakRatio = 0.6
)

type Splitter struct {
	MaxChars int
}

func NewSplitter(maxChars int) *Splitter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Splitter{MaxChars: maxChars}
}

// Split fills windows of MaxChars runes, preferring to end a window on a
// paragraph break. Every step consumes at least one rune.
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	maxChars := s.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	minBreak := int(float64(maxChars) * paragraphBreakRatio)

	out := make([]string, 0, len(runes)/maxChars+1)
	for start := 0; start < len(runes); {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		piece := runes[start:end]
		if cut := lastNewline(piece); cut > minBreak {
			piece = piece[:cut]
		}
		if chunk := strings.TrimSpace(string(piece)); chunk != "" {
			out = append(out, chunk)
		}
		start += len(piece)
	}
	return out
}

func lastNewline(piece []rune) int {
	for i := len(piece) - 1; i >= 0; i-- {
		if piece[i] == '\n' {
			return i
		}
	}
	return -1
}
