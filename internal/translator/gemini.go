package translator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiTranslator calls Google Gemini through the genai SDK.
type GeminiTranslator struct {
	client    *genai.Client
	model     string
	maxTokens int
	limiter   *rate.Limiter
}

func NewGeminiTranslator(ctx context.Context, cfg Config) (*GeminiTranslator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := defaultGeminiModel
	if len(cfg.Models) > 0 {
		model = cfg.Models[0]
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &GeminiTranslator{client: client, model: model, maxTokens: maxTokens, limiter: newLimiter(cfg)}, nil
}

func (g *GeminiTranslator) Name() string {
	return "gemini"
}

func (g *GeminiTranslator) Translate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	return g.generate(ctx, prompt, systemInstruction, g.maxTokens)
}

func (g *GeminiTranslator) TranslateChunked(ctx context.Context, prompts []string, systemInstruction string, maxTokens int) ([]string, error) {
	return translateEach(ctx, prompts, func(ctx context.Context, p string) (string, error) {
		return g.generate(ctx, p, systemInstruction, maxTokens)
	})
}

func (g *GeminiTranslator) generate(ctx context.Context, prompt, systemInstruction string, maxTokens int) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		MaxOutputTokens:   int32(maxTokens),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", classifyMessage(ctx, err))
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response from API")
	}
	return text, nil
}
