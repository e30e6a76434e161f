package translator

import (
	"context"
	"fmt"
)

var DefaultOpenRouterModels = []string{
	"qwen/qwen-2.5-coder-32b-instruct",
	"deepseek/deepseek-chat",
}

// OpenRouterService calls the OpenAI-compatible OpenRouter chat API.
type OpenRouterService struct {
	httpBase
	apiKey string
}

func NewOpenRouterService(cfg Config) *OpenRouterService {
	return &OpenRouterService{
		httpBase: newHTTPBase(cfg, "https://openrouter.ai/api/v1", DefaultOpenRouterModels),
		apiKey:   cfg.APIKey,
	}
}

func (s *OpenRouterService) Name() string {
	return "openrouter"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (s *OpenRouterService) Translate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	return s.complete(ctx, prompt, systemInstruction, s.maxTokens)
}

func (s *OpenRouterService) TranslateChunked(ctx context.Context, prompts []string, systemInstruction string, maxTokens int) ([]string, error) {
	return translateEach(ctx, prompts, func(ctx context.Context, p string) (string, error) {
		return s.complete(ctx, p, systemInstruction, maxTokens)
	})
}

func (s *OpenRouterService) complete(ctx context.Context, prompt, systemInstruction string, maxTokens int) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("OpenRouter API key required")
	}

	req := chatCompletionRequest{
		Model: s.model(),
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxTokens,
	}
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", s.apiKey),
		"HTTP-Referer":  "https://codetran.local",
		"X-Title":       "codetran",
	}

	var resp chatCompletionResponse
	if err := s.postJSON(ctx, trimBase(s.baseURL)+"/chat/completions", headers, req, &resp); err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter: empty response from API")
	}
	return resp.Choices[0].Message.Content, nil
}
