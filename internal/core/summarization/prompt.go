package summarization

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ChatML frames a system and user message for an instruction-tuned model.
func ChatML(system, user string) string {
	return "<|system|>\n" + system + "\n<|user|>\n" + user + "\n<|assistant|>\n"
}

// PromptFitter trims a prompt body until its estimated size fits a context budget.
type PromptFitter struct {
	CharsPerToken   float64
	BudgetRatio     float64
	MinPromptTokens int
	MinBodyChars    int
	ShrinkRatio     float64
	MaxSentences    int
}

func NewPromptFitter(cfg Config) PromptFitter {
	cfg = cfg.normalize()
	return PromptFitter{
		CharsPerToken:   cfg.CharsPerToken,
		BudgetRatio:     cfg.BudgetRatio,
		MinPromptTokens: cfg.MinPromptTokens,
		MinBodyChars:    cfg.MinBodyChars,
		ShrinkRatio:     cfg.ShrinkRatio,
		MaxSentences:    cfg.MaxSentences,
	}
}

func (f PromptFitter) EstimateTokens(s string) int {
	n := int(float64(utf8.RuneCountInString(s)) / f.CharsPerToken)
	if n < 1 {
		return 1
	}
	return n
}

// Limit is the token ceiling a prompt may use out of the given budget.
func (f PromptFitter) Limit(budget int) int {
	limit := int(float64(budget) * f.BudgetRatio)
	if limit < f.MinPromptTokens {
		return f.MinPromptTokens
	}
	return limit
}

// Fit rebuilds the prompt with a body shortened by ShrinkRatio until it fits
// or the body drops under MinBodyChars. The result may still exceed the budget.
func (f PromptFitter) Fit(system, template, body string, budget int) string {
	limit := f.Limit(budget)
	current := []rune(strings.TrimSpace(body))
	for {
		prompt := ChatML(system, f.wrapUser(template, string(current)))
		if f.EstimateTokens(prompt) <= limit || len(current) < f.MinBodyChars {
			return prompt
		}
		current = current[:int(float64(len(current))*f.ShrinkRatio)]
	}
}

func (f PromptFitter) wrapUser(template, body string) string {
	return strings.TrimSpace(template) +
		"\n[TEKST]\n" +
		strings.TrimSpace(body) +
		"\n</TEKST>\n" +
		fmt.Sprintf("Geef maximaal %d zinnen.", f.MaxSentences)
}

func reducePrompt(system string, partials []string) string {
	var b strings.Builder
	b.WriteString("Vat de volgende deelsamenvattingen samen tot één tekst van max. 4 zinnen.\n\n")
	for i, partial := range partials {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "— %d. %s", i+1, partial)
	}
	return ChatML(system, b.String())
}

func fallbackReducePrompt(system string, partials []string) string {
	return ChatML(system, "Vat kort samen (max. 3 zinnen):\n\n"+strings.Join(partials, "\n\n"))
}

func halve(partials []string) []string {
	n := len(partials) / 2
	if n < 1 {
		n = 1
	}
	return partials[:n]
}
