package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig holds the settings of the gemini group.
type GeminiConfig struct {
	APIKey         string
	Model          string
	Temperature    float64
	ThinkingBudget float64 // < 0 leaves thinking at the model default
	BaseURL        string  // overrides the Gemini API endpoint, mostly for tests
}

// Gemini implements [Generation] with the Google Gen AI SDK.
type Gemini struct {
	c   *client
	sdk *genai.Client
	cfg GeminiConfig
}

// NewGemini creates a Gemini generation client.
func NewGemini(ctx context.Context, cfg GeminiConfig, opts ClientOptions) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api_key is required")
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if opts.HTTPClient != nil {
		cc.HTTPClient = opts.HTTPClient
	}

	sdk, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{c: newClient("gemini", "", opts), sdk: sdk, cfg: cfg}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	err := g.c.guard(ctx, "list models", func(ctx context.Context) error {
		page, err := g.sdk.Models.List(ctx, nil)
		if err != nil {
			return classifyGenAI(err)
		}
		for _, m := range page.Items {
			names = append(names, strings.TrimPrefix(m.Name, "models/"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(req.SystemPrompt), genai.RoleUser),
		Temperature:       genai.Ptr(float32(g.cfg.Temperature)),
		ResponseMIMEType:  "application/json",
	}
	if g.cfg.ThinkingBudget >= 0 {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(g.cfg.ThinkingBudget))}
	}

	var result *GenerateResult
	err := g.c.guard(ctx, "generate", func(ctx context.Context) error {
		resp, err := g.sdk.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(req.Prompt), config)
		if err != nil {
			return classifyGenAI(err)
		}

		candidates, bad, err := ParseCandidates(resp.Text())
		if err != nil {
			return malformed("gemini", "generate", err)
		}

		result = &GenerateResult{Candidates: candidates, Malformed: bad, Model: g.cfg.Model}
		if u := resp.UsageMetadata; u != nil {
			result.Usage = Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// classifyGenAI maps SDK API errors onto provider error kinds.
func classifyGenAI(err error) error {
	if apiErr, ok := asAPIError(err); ok {
		switch apiErr.Code {
		case 401, 403:
			return newError("gemini", "call", KindUnauthorized, err)
		case 400:
			if strings.Contains(strings.ToLower(apiErr.Message), "api key") {
				return newError("gemini", "call", KindUnauthorized, err)
			}
		}
	}
	return err
}

func asAPIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}
