package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/retry"
)

// httpBase is shared by the providers that speak JSON over HTTP.
type httpBase struct {
	baseURL   string
	models    []string
	maxTokens int
	client    *http.Client
	limiter   *rate.Limiter
}

func newHTTPBase(cfg Config, defaultURL string, defaultModels []string) httpBase {
	base := httpBase{
		baseURL:   cfg.BaseURL,
		models:    cfg.Models,
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
	if base.baseURL == "" {
		base.baseURL = defaultURL
	}
	if len(base.models) == 0 {
		base.models = defaultModels
	}
	if base.maxTokens <= 0 {
		base.maxTokens = defaultMaxTokens
	}
	if base.client.Timeout <= 0 {
		base.client.Timeout = defaultTimeout
	}
	base.limiter = newLimiter(cfg)
	return base
}

func newLimiter(cfg Config) *rate.Limiter {
	limit, burst := cfg.RateLimit, cfg.Burst
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

func (b *httpBase) model() string {
	if len(b.models) == 1 {
		return b.models[0]
	}
	return b.models[rand.Intn(len(b.models))]
}

// postJSON sends in as JSON to url and decodes the 200 response into out.
// Network failures, 429 and 5xx responses are transient.
func (b *httpBase) postJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return retry.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return retry.Transientf("rate limited (429)")
	case resp.StatusCode >= 500:
		return retry.Transientf("server error (%d): %s", resp.StatusCode, truncate(string(body), 200))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &retry.MalformedResponseError{Reason: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

// translateEach implements TranslateChunked on top of a single-prompt call.
func translateEach(ctx context.Context, prompts []string, call func(ctx context.Context, prompt string) (string, error)) ([]string, error) {
	out := make([]string, 0, len(prompts))
	for i, p := range prompts {
		text, err := call(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("part %d/%d: %w", i+1, len(prompts), err)
		}
		out = append(out, text)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return internal.Clip(s, n) + "..."
}
