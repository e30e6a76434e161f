// Package config loads codetran settings from defaults, an optional config
// file and CODETRAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/codetran/internal/translator"
)

const (
	envPrefix       = "CODETRAN"
	envKeySeparator = "_"
)

const (
	DefaultMaxAttempts         = 3
	DefaultBaseDelay           = time.Second
	DefaultMaxLines            = 200
	DefaultFunctionThreshold   = 50
	DefaultChunkThresholdLines = 400
	DefaultWorkers             = 1
	DefaultConcurrency         = 4
	DefaultMaxPromptTokens     = 32000
	DefaultCheckerTimeout      = 5 * time.Minute
	DefaultMaxDiagnostic       = 8 * 1024
	DefaultContextResults      = 1
)

// Detectors lists the accepted chunking.detector values.
var Detectors = []string{"regex", "treesitter"}

// EmbedProviders lists the accepted context_store.embed_provider values.
var EmbedProviders = []string{"ollama", "openai"}

type Config struct {
	Translator   TranslatorConfig   `mapstructure:"translator"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Chunking     ChunkingConfig     `mapstructure:"chunking"`
	Batch        BatchConfig        `mapstructure:"batch"`
	Checker      CheckerConfig      `mapstructure:"checker"`
	Store        StoreConfig        `mapstructure:"store"`
	ContextStore ContextStoreConfig `mapstructure:"context_store"`
	Prompts      PromptsConfig      `mapstructure:"prompts"`
	Output       OutputConfig       `mapstructure:"output"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type TranslatorConfig struct {
	translator.Config `mapstructure:",squash"`
	MaxPromptTokens   int    `mapstructure:"max_prompt_tokens"`
	SystemInstruction string `mapstructure:"system_instruction"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

type ChunkingConfig struct {
	MaxLines            int    `mapstructure:"max_lines"`
	FunctionThreshold   int    `mapstructure:"function_threshold"`
	ChunkThresholdLines int    `mapstructure:"chunk_threshold_lines"`
	Detector            string `mapstructure:"detector"`
	Workers             int    `mapstructure:"workers"`
}

type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type CheckerConfig struct {
	Command       string        `mapstructure:"command"`
	Args          []string      `mapstructure:"args"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxDiagnostic int           `mapstructure:"max_diagnostic"`
}

type StoreConfig struct {
	DBPath  string `mapstructure:"db_path"`
	NoCache bool   `mapstructure:"no_cache"`
}

type ContextStoreConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	EmbedProvider string `mapstructure:"embed_provider"`
	EmbedURL      string `mapstructure:"embed_url"`
	EmbedModel    string `mapstructure:"embed_model"`
	EmbedAPIKey   string `mapstructure:"embed_api_key"`
	Results       int    `mapstructure:"results"`
}

type PromptsConfig struct {
	Dir string `mapstructure:"dir"`
}

type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	TargetLang string `mapstructure:"target_lang"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from defaults, the file at path (if non-empty),
// and the environment. A missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName(".codetran")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("translator.provider", "ollama")
	v.SetDefault("translator.models", []string{})
	v.SetDefault("translator.base_url", "")
	v.SetDefault("translator.api_key", "")
	v.SetDefault("translator.timeout", 120*time.Second)
	v.SetDefault("translator.rate_limit", 50.0/60.0)
	v.SetDefault("translator.burst", 5)
	v.SetDefault("translator.max_tokens", 4096)
	v.SetDefault("translator.max_prompt_tokens", DefaultMaxPromptTokens)
	v.SetDefault("translator.system_instruction", "")

	v.SetDefault("retry.max_attempts", DefaultMaxAttempts)
	v.SetDefault("retry.base_delay", DefaultBaseDelay)

	v.SetDefault("chunking.max_lines", DefaultMaxLines)
	v.SetDefault("chunking.function_threshold", DefaultFunctionThreshold)
	v.SetDefault("chunking.chunk_threshold_lines", DefaultChunkThresholdLines)
	v.SetDefault("chunking.detector", "treesitter")
	v.SetDefault("chunking.workers", DefaultWorkers)

	v.SetDefault("batch.concurrency", DefaultConcurrency)

	v.SetDefault("checker.command", "cargo")
	v.SetDefault("checker.args", []string{"check", "--color=never"})
	v.SetDefault("checker.timeout", DefaultCheckerTimeout)
	v.SetDefault("checker.max_diagnostic", DefaultMaxDiagnostic)

	v.SetDefault("store.db_path", "codetran.db")
	v.SetDefault("store.no_cache", false)

	v.SetDefault("context_store.enabled", false)
	v.SetDefault("context_store.path", "")
	v.SetDefault("context_store.embed_provider", "ollama")
	v.SetDefault("context_store.embed_url", "http://localhost:11434")
	v.SetDefault("context_store.embed_model", "nomic-embed-text")
	v.SetDefault("context_store.embed_api_key", "")
	v.SetDefault("context_store.results", DefaultContextResults)

	v.SetDefault("prompts.dir", "")

	v.SetDefault("output.dir", "out")
	v.SetDefault("output.target_lang", "rust")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.addr", "")
}

// Validate rejects non-positive bounds and unknown names.
func (c *Config) Validate() error {
	var errs []error
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay must not be negative, got %s", c.Retry.BaseDelay))
	}
	if c.Chunking.MaxLines <= 0 {
		errs = append(errs, fmt.Errorf("chunking.max_lines must be positive, got %d", c.Chunking.MaxLines))
	}
	if c.Chunking.FunctionThreshold <= 0 {
		errs = append(errs, fmt.Errorf("chunking.function_threshold must be positive, got %d", c.Chunking.FunctionThreshold))
	}
	if c.Chunking.ChunkThresholdLines <= 0 {
		errs = append(errs, fmt.Errorf("chunking.chunk_threshold_lines must be positive, got %d", c.Chunking.ChunkThresholdLines))
	}
	if c.Chunking.Workers <= 0 {
		errs = append(errs, fmt.Errorf("chunking.workers must be positive, got %d", c.Chunking.Workers))
	}
	if !slices.Contains(Detectors, c.Chunking.Detector) {
		errs = append(errs, fmt.Errorf("chunking.detector %q is not one of %s", c.Chunking.Detector, strings.Join(Detectors, ", ")))
	}
	if c.Batch.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency must be positive, got %d", c.Batch.Concurrency))
	}
	if c.Checker.Command == "" {
		errs = append(errs, errors.New("checker.command must not be empty"))
	}
	if c.Translator.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("translator.timeout must be positive, got %s", c.Translator.Timeout))
	}
	if p := strings.ToLower(c.Translator.Provider); !slices.Contains(translator.Providers, p) {
		errs = append(errs, fmt.Errorf("translator.provider %q is not one of %s", c.Translator.Provider, strings.Join(translator.Providers, ", ")))
	}
	if c.ContextStore.Enabled && c.ContextStore.Results <= 0 {
		errs = append(errs, fmt.Errorf("context_store.results must be positive, got %d", c.ContextStore.Results))
	}
	if c.ContextStore.Enabled && !slices.Contains(EmbedProviders, c.ContextStore.EmbedProvider) {
		errs = append(errs, fmt.Errorf("context_store.embed_provider %q is not one of %s", c.ContextStore.EmbedProvider, strings.Join(EmbedProviders, ", ")))
	}
	return errors.Join(errs...)
}
