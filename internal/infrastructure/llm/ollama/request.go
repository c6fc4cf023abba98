package ollama

import "github.com/kirillkom/dossier-summarizer/internal/core/domain"

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Raw     bool            `json:"raw"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict    int      `json:"num_predict,omitempty"`
	NumCtx        int      `json:"num_ctx,omitempty"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`
	Stop          []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// buildGenerateRequest sends the prompt raw: it is already in chat format,
// so the server must not wrap it in the model's own template.
func buildGenerateRequest(model, prompt string, opts domain.GenerateOptions) generateRequest {
	return generateRequest{
		Model:  model,
		Prompt: prompt,
		Raw:    true,
		Stream: false,
		Options: generateOptions{
			NumPredict:    opts.MaxNewTokens,
			NumCtx:        opts.ContextTokens,
			Temperature:   opts.Temperature,
			TopP:          opts.TopP,
			RepeatPenalty: opts.RepetitionPenalty,
			Stop:          opts.Stop,
		},
	}
}
