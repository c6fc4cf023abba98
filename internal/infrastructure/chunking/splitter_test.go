package chunking

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"
)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestSplitCoversTextWithinBounds(t *testing.T) {
	texts := []string{
		"kort",
		strings.Repeat("abcdefghij", 57),
		strings.Repeat("Eerste alinea met wat woorden.\n", 40),
		strings.Repeat("één twee drie vier\n\n", 33) + strings.Repeat("x", 250),
	}
	for _, size := range []int{1, 7, 64, 200, 1800} {
		splitter := NewSplitter(size)
		for _, text := range texts {
			chunks := splitter.Split(text)
			for _, chunk := range chunks {
				if utf8.RuneCountInString(chunk) > size {
					t.Fatalf("size %d: chunk exceeds bound: %d runes", size, utf8.RuneCountInString(chunk))
				}
				if chunk == "" {
					t.Fatalf("size %d: empty chunk emitted", size)
				}
			}
			if got, want := stripSpace(strings.Join(chunks, "")), stripSpace(text); got != want {
				t.Fatalf("size %d: chunks do not reconstruct text", size)
			}
		}
	}
}

func TestSplitPrefersParagraphBreak(t *testing.T) {
	first := strings.Repeat("a", 80)
	second := strings.Repeat("b", 80)
	chunks := NewSplitter(100).Split(first + "\n" + second)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != first || chunks[1] != second {
		t.Fatalf("expected cut on newline, got %q", chunks)
	}
}

func TestSplitIgnoresEarlyNewline(t *testing.T) {
	text := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 200)
	chunks := NewSplitter(100).Split(text)
	if utf8.RuneCountInString(chunks[0]) != 100 {
		t.Fatalf("newline before 60%% of window must not cut, got first chunk of %d runes", utf8.RuneCountInString(chunks[0]))
	}
}

func TestSplitScenarioTwentyThousandChars(t *testing.T) {
	var b strings.Builder
	for b.Len() < 20000 {
		b.WriteString("Dit is een regel uit het proces-verbaal van verhoor.\n")
	}
	text := b.String()[:20000]
	chunks := NewSplitter(1800).Split(text)
	if len(chunks) < 11 || len(chunks) > 12 {
		t.Fatalf("expected 11-12 chunks, got %d", len(chunks))
	}
}

func TestSplitEmptyAndDefaults(t *testing.T) {
	if chunks := NewSplitter(10).Split(" \n\t "); chunks != nil {
		t.Fatalf("expected no chunks, got %q", chunks)
	}
	if NewSplitter(0).MaxChars != DefaultMaxChars {
		t.Fatalf("expected default chunk size")
	}
}
