// Package orchestrator drives units through translation, validation and
// retry, in single-shot or chunked mode, and runs batches of units with a
// bounded pool.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/chunker"
	"github.com/valpere/codetran/internal/contextstore"
	"github.com/valpere/codetran/internal/metrics"
	"github.com/valpere/codetran/internal/progress"
	"github.com/valpere/codetran/internal/prompt"
	"github.com/valpere/codetran/internal/retry"
	"github.com/valpere/codetran/internal/store"
	"github.com/valpere/codetran/internal/translator"
	"github.com/valpere/codetran/internal/validator"
)

var tracer = otel.Tracer("codetran.orchestrator")

var ErrUnknownChunk = errors.New("unknown chunk id")

const (
	ModeSingle  = "single"
	ModeChunked = "chunked"
)

// History persists units, attempts and progress. *store.Store implements it.
type History interface {
	SaveUnit(ctx context.Context, u store.UnitRecord) error
	SaveAttempt(ctx context.Context, unitID string, a internal.Attempt) (string, error)
	ListAttempts(ctx context.Context, unitID string) ([]internal.Attempt, error)
	LoadProgress(ctx context.Context, unitID string) (progress.Record, bool, error)
}

// Memory is the exact-match translation cache. *store.Store implements it.
type Memory interface {
	GetCachedTranslation(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error)
	SaveToMemory(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error
}

// Deps are the collaborators owned by a Coordinator. Translator, Checker
// and Prompts are required; the rest are optional.
type Deps struct {
	Translator translator.Translator
	Checker    validator.Checker
	Prompts    prompt.Provider
	Planner    *chunker.Planner
	Tracker    *progress.Tracker
	History    History
	Memory     Memory
	Context    contextstore.Store
	Embedder   contextstore.Embedder
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type Config struct {
	OutputDir           string
	TargetLang          string
	MaxAttempts         int
	BaseDelay           time.Duration
	CallTimeout         time.Duration
	MaxLines            int
	ChunkThresholdLines int
	Workers             int
	Concurrency         int
	MaxPromptTokens     int
	MaxTokens           int
	SystemInstruction   string
	ContextResults      int
	NoCache             bool
	// TargetFunctions restricts single-shot prompts to these functions.
	TargetFunctions []string
}

// UnitResult describes the outcome of one unit, successful or not.
type UnitResult struct {
	Unit           internal.Unit
	Mode           string
	Attempts       int
	Cached         bool
	ArtifactPath   string
	Code           string
	Confidence     float64
	Warnings       []string
	Chunks         int
	FailedChunkIDs []int
	LastDiagnostic string
	Elapsed        time.Duration
}

// Succeeded reports whether the unit passed validation.
func (r *UnitResult) Succeeded() bool {
	return r != nil && r.LastDiagnostic == "" && len(r.FailedChunkIDs) == 0
}

// UnitFailure is a failed unit in a Report.
type UnitFailure struct {
	Result *UnitResult
	Err    error
}

// Report is the outcome of a batch run.
type Report struct {
	Succeeded []*UnitResult
	Failed    []UnitFailure
	Elapsed   time.Duration
}

// Coordinator owns its collaborators for the lifetime of a session.
type Coordinator struct {
	deps   Deps
	cfg    Config
	policy retry.Policy
	chunks *translator.ChunkTranslator
	logger *zap.Logger

	mu    sync.Mutex
	plans map[string]*unitPlan
}

func New(deps Deps, cfg Config) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Planner == nil {
		deps.Planner = chunker.NewPlanner(nil, 0)
	}
	if deps.Tracker == nil {
		deps.Tracker = progress.New(nil, deps.Logger)
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = "rust"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "out"
	}
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 200
	}
	if cfg.ChunkThresholdLines <= 0 {
		cfg.ChunkThresholdLines = 400
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ContextResults <= 0 {
		cfg.ContextResults = 1
	}

	c := &Coordinator{
		deps:   deps,
		cfg:    cfg,
		policy: retry.NewPolicy(cfg.MaxAttempts, cfg.BaseDelay),
		logger: deps.Logger,
		plans:  make(map[string]*unitPlan),
	}
	c.chunks = translator.NewChunkTranslator(deps.Translator, translator.ChunkOptions{
		TargetLang: cfg.TargetLang,
		Timeout:    cfg.CallTimeout,
		Logger:     deps.Logger,
	})
	return c
}

// WithPolicy replaces the retry policy, mainly so tests can stub sleeping.
func (c *Coordinator) WithPolicy(p retry.Policy) *Coordinator {
	c.policy = p
	return c
}
