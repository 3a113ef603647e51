package providers

import (
	"context"
)

// OllamaConfig holds the settings of the ollama group.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
}

// Ollama implements [Generation] over the Ollama HTTP API.
type Ollama struct {
	c   *client
	cfg OllamaConfig
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Format   string          `json:"format"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// NewOllama creates an Ollama generation client.
func NewOllama(cfg OllamaConfig, opts ClientOptions) *Ollama {
	return &Ollama{c: newClient("ollama", cfg.BaseURL, opts), cfg: cfg}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := o.c.get(ctx, "list models", "/api/tags", nil, &resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (o *Ollama) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	body := ollamaChatRequest{
		Model: o.cfg.Model,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt(req.SystemPrompt)},
			{Role: "user", Content: req.Prompt},
		},
		Format:  "json",
		Stream:  false,
		Options: map[string]any{"temperature": o.cfg.Temperature},
	}

	var resp ollamaChatResponse
	if err := o.c.post(ctx, "generate", "/api/chat", body, &resp); err != nil {
		return nil, err
	}

	candidates, bad, err := ParseCandidates(resp.Message.Content)
	if err != nil {
		return nil, malformed("ollama", "generate", err)
	}

	model := resp.Model
	if model == "" {
		model = o.cfg.Model
	}
	return &GenerateResult{
		Candidates: candidates,
		Malformed:  bad,
		Model:      model,
		Usage: Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}
