package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestOllama(t *testing.T) {
	var chat ollamaChatRequest
	content := `{"suggestions":[{"title":"Dune","mediaType":"movie"},{"title":"Severance","mediaType":"tv"}]}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"mistral:latest"}]}`))
		case "/api/chat":
			json.NewDecoder(r.Body).Decode(&chat)
			json.NewEncoder(w).Encode(map[string]any{
				"model":             "llama3",
				"message":           map[string]string{"role": "assistant", "content": content},
				"prompt_eval_count": 30,
				"eval_count":        12,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	o := NewOllama(OllamaConfig{BaseURL: server.URL, Model: "llama3", Temperature: 0.7}, testOptions())

	models, err := o.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("expected 2 models, got %v", models)
	}

	result, err := o.Generate(ctx, GenerateRequest{Prompt: "Recommend 2 titles", SystemPrompt: "You are helpful."})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(result.Candidates))
	}
	if result.Usage.TotalTokens != 42 {
		t.Errorf("expected 42 total tokens, got %d", result.Usage.TotalTokens)
	}
	if chat.Format != "json" || chat.Stream {
		t.Errorf("expected non-streaming json chat, got %+v", chat)
	}
	if len(chat.Messages) != 2 || !strings.HasPrefix(chat.Messages[0].Content, "You are helpful.") {
		t.Errorf("expected system prompt first, got %+v", chat.Messages)
	}
}

func TestOllamaMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"I think you would enjoy Dune."}}`))
	}))
	defer server.Close()

	o := NewOllama(OllamaConfig{BaseURL: server.URL, Model: "llama3"}, testOptions())
	_, err := o.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestOpenAIListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"gpt-4.1-mini"},{"id":"gpt-4.1"}]}`))
	}))
	defer server.Close()

	o, err := NewOpenAI(context.Background(), OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1", Model: "gpt-4.1-mini"}, testOptions())
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	models, err := o.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0] != "gpt-4.1" {
		t.Errorf("expected sorted models, got %v", models)
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiConfig{Model: "gemini-2.5-flash"}, testOptions()); err == nil {
		t.Error("expected error without api key")
	}
}
