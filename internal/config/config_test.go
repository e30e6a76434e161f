package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ollama", cfg.Translator.Provider)
	assert.Equal(t, 120*time.Second, cfg.Translator.Timeout)
	assert.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, DefaultMaxLines, cfg.Chunking.MaxLines)
	assert.Equal(t, "treesitter", cfg.Chunking.Detector)
	assert.Equal(t, []string{"check", "--color=never"}, cfg.Checker.Args)
	assert.Equal(t, "rust", cfg.Output.TargetLang)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codetran.yaml")
	content := `
translator:
  provider: anthropic
  models: [claude-x]
  timeout: 30s
retry:
  max_attempts: 5
  base_delay: 250ms
chunking:
  max_lines: 80
  detector: regex
  workers: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Translator.Provider)
	assert.Equal(t, []string{"claude-x"}, cfg.Translator.Models)
	assert.Equal(t, 30*time.Second, cfg.Translator.Timeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 80, cfg.Chunking.MaxLines)
	assert.Equal(t, "regex", cfg.Chunking.Detector)
	assert.Equal(t, 4, cfg.Chunking.Workers)
	assert.Equal(t, DefaultFunctionThreshold, cfg.Chunking.FunctionThreshold)
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codetran.toml")
	require.NoError(t, os.WriteFile(path, []byte("[batch]\nconcurrency = 9\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Batch.Concurrency)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CODETRAN_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("CODETRAN_TRANSLATOR_PROVIDER", "gemini")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, "gemini", cfg.Translator.Provider)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"max lines", func(c *Config) { c.Chunking.MaxLines = -1 }, "chunking.max_lines"},
		{"workers", func(c *Config) { c.Chunking.Workers = 0 }, "chunking.workers"},
		{"detector", func(c *Config) { c.Chunking.Detector = "clang" }, "chunking.detector"},
		{"provider", func(c *Config) { c.Translator.Provider = "google" }, "translator.provider"},
		{"concurrency", func(c *Config) { c.Batch.Concurrency = 0 }, "batch.concurrency"},
		{"checker", func(c *Config) { c.Checker.Command = "" }, "checker.command"},
		{"embed provider", func(c *Config) {
			c.ContextStore.Enabled = true
			c.ContextStore.EmbedProvider = "cohere"
		}, "context_store.embed_provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
