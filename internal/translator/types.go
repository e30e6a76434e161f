package translator

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures the LLM provider behind a Translator.
type Config struct {
	Provider  string        `mapstructure:"provider" json:"provider"`
	Models    []string      `mapstructure:"models" json:"models"`
	BaseURL   string        `mapstructure:"base_url" json:"base_url"`
	APIKey    string        `mapstructure:"api_key" json:"-"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" json:"rate_limit"`
	Burst     int           `mapstructure:"burst" json:"burst"`
	MaxTokens int           `mapstructure:"max_tokens" json:"max_tokens"`
}

// Translator sends one prompt with a system instruction to an LLM and
// returns its raw text response. Errors wrapped with retry.Transient may
// succeed when the same call is repeated.
type Translator interface {
	Name() string
	Translate(ctx context.Context, prompt, systemInstruction string) (string, error)
}

// ChunkedTranslator is implemented by providers that accept a prompt split
// into several parts when it exceeds their context ceiling. The returned
// slice has one response per prompt, in order.
type ChunkedTranslator interface {
	Translator
	TranslateChunked(ctx context.Context, prompts []string, systemInstruction string, maxTokens int) ([]string, error)
}

// Prober is implemented by providers that can report whether they are
// reachable before any unit is sent.
type Prober interface {
	IsAvailable(ctx context.Context) error
}

// Preflight probes t when it supports probing. It bounds the probe with
// timeout when positive.
func Preflight(ctx context.Context, t Translator, timeout time.Duration) error {
	p, ok := t.(Prober)
	if !ok {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.IsAvailable(ctx); err != nil {
		return fmt.Errorf("%s unavailable: %w", t.Name(), err)
	}
	return nil
}

const (
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 4096
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)
