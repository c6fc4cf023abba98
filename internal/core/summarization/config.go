package summarization

// Config holds every numeric and textual knob of the engine.
type Config struct {
	ContextTokens         int
	FallbackContextTokens int
	MaxNewTokens          int
	OverflowMaxNewTokens  int
	GroupSize             int
	MaxPartials           int

	CharsPerToken   float64
	BudgetRatio     float64
	MinPromptTokens int
	MinBodyChars    int
	ShrinkRatio     float64
	MaxSentences    int

	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	Stop              []string

	SystemPrompt string
	NoTextResult string
}

func DefaultStopMarkers() []string {
	return []string{
		"<|user|>",
		"<|system|>",
		"</TEKST>",
		"</TEKST_WAAR_HET_OM_GAAT>",
		"JOUW ANTWOORD:",
		"JOUW ANTWOORD",
		"[TEKST_OM_SAMEN_TE_VATTEN]",
	}
}

func DefaultConfig() Config {
	return Config{
		ContextTokens:         2048,
		FallbackContextTokens: 768,
		MaxNewTokens:          180,
		OverflowMaxNewTokens:  140,
		GroupSize:             4,
		MaxPartials:           6,

		CharsPerToken:   3.6,
		BudgetRatio:     0.9,
		MinPromptTokens: 256,
		MinBodyChars:    200,
		ShrinkRatio:     0.85,
		MaxSentences:    4,

		Temperature:       0.2,
		TopP:              0.9,
		RepetitionPenalty: 1.15,
		Stop:              DefaultStopMarkers(),

		SystemPrompt: "Schrijf een korte, professionele samenvatting in het Nederlands.",
		NoTextResult: "Geen tekst aangetroffen.",
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.ContextTokens <= 0 {
		out.ContextTokens = def.ContextTokens
	}
	if out.FallbackContextTokens <= 0 {
		out.FallbackContextTokens = def.FallbackContextTokens
	}
	if out.MaxNewTokens <= 0 {
		out.MaxNewTokens = def.MaxNewTokens
	}
	if out.OverflowMaxNewTokens <= 0 {
		out.OverflowMaxNewTokens = def.OverflowMaxNewTokens
	}
	if out.OverflowMaxNewTokens > out.MaxNewTokens {
		out.OverflowMaxNewTokens = out.MaxNewTokens
	}
	if out.GroupSize < 2 {
		out.GroupSize = def.GroupSize
	}
	if out.MaxPartials <= 0 {
		out.MaxPartials = def.MaxPartials
	}
	if out.CharsPerToken <= 0 {
		out.CharsPerToken = def.CharsPerToken
	}
	if out.BudgetRatio <= 0 || out.BudgetRatio > 1 {
		out.BudgetRatio = def.BudgetRatio
	}
	if out.MinPromptTokens <= 0 {
		out.MinPromptTokens = def.MinPromptTokens
	}
	if out.MinBodyChars <= 0 {
		out.MinBodyChars = def.MinBodyChars
	}
	if out.ShrinkRatio <= 0 || out.ShrinkRatio >= 1 {
		out.ShrinkRatio = def.ShrinkRatio
	}
	if out.MaxSentences <= 0 {
		out.MaxSentences = def.MaxSentences
	}
	if out.Temperature <= 0 {
		out.Temperature = def.Temperature
	}
	if out.TopP <= 0 || out.TopP > 1 {
		out.TopP = def.TopP
	}
	if out.RepetitionPenalty <= 0 {
		out.RepetitionPenalty = def.RepetitionPenalty
	}
	if len(out.Stop) == 0 {
		out.Stop = def.Stop
	}
	if out.SystemPrompt == "" {
		out.SystemPrompt = def.SystemPrompt
	}
	if out.NoTextResult == "" {
		out.NoTextResult = def.NoTextResult
	}
	return out
}
