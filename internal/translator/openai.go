package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/valpere/codetran/internal/retry"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAITranslator uses the langchaingo OpenAI client. It also serves any
// OpenAI-compatible endpoint through BaseURL.
type OpenAITranslator struct {
	llm       llms.Model
	maxTokens int
	limiter   *rate.Limiter
}

func NewOpenAITranslator(cfg Config) (*OpenAITranslator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key required")
	}
	model := defaultOpenAIModel
	if len(cfg.Models) > 0 {
		model = cfg.Models[0]
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &OpenAITranslator{llm: llm, maxTokens: maxTokens, limiter: newLimiter(cfg)}, nil
}

func (o *OpenAITranslator) Name() string {
	return "openai"
}

func (o *OpenAITranslator) Translate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemInstruction),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	resp, err := o.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(o.maxTokens))
	if err != nil {
		return "", fmt.Errorf("openai: %w", classifyMessage(ctx, err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response from API")
	}
	return resp.Choices[0].Content, nil
}

var transientMarkers = []string{
	"429", "rate limit", "too many requests",
	"500", "502", "503", "504", "overloaded", "unavailable",
	"timeout", "deadline exceeded", "connection reset", "connection refused", "eof",
}

// classifyMessage marks SDK errors transient by their text; the SDKs do not
// expose a common status type.
func classifyMessage(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled {
		return err
	}
	if retry.IsTransient(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return retry.Transient(err)
		}
	}
	return err
}
