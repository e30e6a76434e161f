package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

var DefaultOllamaModels = []string{
	"qwen2.5-coder:14b",
}

// OllamaTranslator talks to a self-hosted Ollama server via /api/chat.
type OllamaTranslator struct {
	httpBase
}

func NewOllamaTranslator(cfg Config) *OllamaTranslator {
	return &OllamaTranslator{httpBase: newHTTPBase(cfg, "http://localhost:11434", DefaultOllamaModels)}
}

func (s *OllamaTranslator) Name() string {
	return "ollama"
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Error   string        `json:"error,omitempty"`
}

func (s *OllamaTranslator) Translate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	return s.chat(ctx, prompt, systemInstruction, s.maxTokens)
}

func (s *OllamaTranslator) TranslateChunked(ctx context.Context, prompts []string, systemInstruction string, maxTokens int) ([]string, error) {
	return translateEach(ctx, prompts, func(ctx context.Context, p string) (string, error) {
		return s.chat(ctx, p, systemInstruction, maxTokens)
	})
}

func (s *OllamaTranslator) chat(ctx context.Context, prompt, systemInstruction string, maxTokens int) (string, error) {
	req := ollamaChatRequest{
		Model:  s.model(),
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
	}
	if maxTokens > 0 {
		req.Options = map[string]any{"num_predict": maxTokens}
	}

	var resp ollamaChatResponse
	if err := s.postJSON(ctx, trimBase(s.baseURL)+"/api/chat", nil, req, &resp); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// IsAvailable checks that the Ollama server answers and has the configured
// model pulled.
func (s *OllamaTranslator) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", trimBase(s.baseURL)+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama not available: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decoding Ollama tags: %w", err)
	}
	model := s.model()
	for _, m := range tags.Models {
		if m.Name == model || m.Name == model+":latest" {
			return nil
		}
	}
	return fmt.Errorf("Ollama model %q is not pulled", model)
}

func trimBase(u string) string {
	return strings.TrimRight(u, "/")
}
