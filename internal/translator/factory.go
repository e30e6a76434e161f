package translator

import (
	"context"
	"fmt"
	"strings"
)

// Providers lists the accepted Config.Provider values.
var Providers = []string{"ollama", "openrouter", "anthropic", "openai", "gemini"}

// New binds the configured provider once; the returned Translator is used
// for the lifetime of the session.
func New(ctx context.Context, cfg Config) (Translator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewOllamaTranslator(cfg), nil
	case "openrouter":
		return NewOpenRouterService(cfg), nil
	case "anthropic":
		return NewAnthropicTranslator(cfg), nil
	case "openai":
		return NewOpenAITranslator(cfg)
	case "gemini":
		return NewGeminiTranslator(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q (want one of %s)", cfg.Provider, strings.Join(Providers, ", "))
	}
}
