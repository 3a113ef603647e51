package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig holds the settings of the openai group.
//
// BaseURL may point at any OpenAI compatible server.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// OpenAI implements [Generation] with the eino OpenAI chat model.
type OpenAI struct {
	c     *client
	chat  *openai.ChatModel
	model string
}

// NewOpenAI creates an OpenAI generation client.
func NewOpenAI(ctx context.Context, cfg OpenAIConfig, opts ClientOptions) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIBaseURL
	}
	temperature := float32(cfg.Temperature)

	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		Model:       cfg.Model,
		Temperature: &temperature,
		HTTPClient:  opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat model: %w", err)
	}

	c := newClient("openai", cfg.BaseURL, opts)
	c.header.Set("Authorization", "Bearer "+cfg.APIKey)
	return &OpenAI{c: c, chat: chat, model: cfg.Model}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := o.c.get(ctx, "list models", "/models", nil, &resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		names = append(names, m.ID)
	}
	sort.Strings(names)
	return names, nil
}

func (o *OpenAI) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt(req.SystemPrompt)),
		schema.UserMessage(req.Prompt),
	}

	var result *GenerateResult
	err := o.c.guard(ctx, "generate", func(ctx context.Context) error {
		msg, err := o.chat.Generate(ctx, messages)
		if err != nil {
			return classifyOpenAI(err)
		}

		candidates, bad, err := ParseCandidates(msg.Content)
		if err != nil {
			return malformed("openai", "generate", err)
		}

		result = &GenerateResult{Candidates: candidates, Malformed: bad, Model: o.model}
		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			u := msg.ResponseMeta.Usage
			result.Usage = Usage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// classifyOpenAI treats authentication failures reported by the SDK as unauthorized.
func classifyOpenAI(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "401") || strings.Contains(msg, "invalid_api_key") || strings.Contains(msg, "incorrect api key") {
		return newError("openai", "generate", KindUnauthorized, err)
	}
	return err
}
