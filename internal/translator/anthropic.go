package translator

import (
	"context"
	"fmt"
	"strings"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicTranslator calls the Anthropic Messages API.
type AnthropicTranslator struct {
	httpBase
	apiKey string
}

func NewAnthropicTranslator(cfg Config) *AnthropicTranslator {
	return &AnthropicTranslator{
		httpBase: newHTTPBase(cfg, "https://api.anthropic.com", []string{defaultAnthropicModel}),
		apiKey:   cfg.APIKey,
	}
}

func (a *AnthropicTranslator) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (a *AnthropicTranslator) Translate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	return a.message(ctx, prompt, systemInstruction, a.maxTokens)
}

func (a *AnthropicTranslator) TranslateChunked(ctx context.Context, prompts []string, systemInstruction string, maxTokens int) ([]string, error) {
	return translateEach(ctx, prompts, func(ctx context.Context, p string) (string, error) {
		return a.message(ctx, p, systemInstruction, maxTokens)
	})
}

func (a *AnthropicTranslator) message(ctx context.Context, prompt, systemInstruction string, maxTokens int) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("anthropic API key required")
	}
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	req := anthropicRequest{
		Model:     a.model(),
		MaxTokens: maxTokens,
		System:    systemInstruction,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"X-API-Key":         a.apiKey,
		"Anthropic-Version": "2023-06-01",
	}

	var resp anthropicResponse
	if err := a.postJSON(ctx, trimBase(a.baseURL)+"/v1/messages", headers, req, &resp); err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var b strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty response from API")
	}
	return b.String(), nil
}
