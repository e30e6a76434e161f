package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/chunker"
	"github.com/valpere/codetran/internal/postprocess"
	"github.com/valpere/codetran/internal/retry"
)

// DefaultChunkInstruction is the system instruction used for chunk prompts.
const DefaultChunkInstruction = "Translate this C code chunk to safe, idiomatic Rust code. " +
	"Preserve the function signatures and logic. " +
	"Return only the Rust code without explanations."

const (
	// ChunkConfidence is assigned to chunks extracted from a code fence.
	ChunkConfidence = 0.75
	// RawConfidence is assigned when the raw response had to be used.
	RawConfidence = 0.5
)

// ChunkTranslator turns one chunk into one Attempt. It never returns an
// error: every failure is captured in a failed Attempt.
type ChunkTranslator struct {
	translator  Translator
	instruction string
	targetLang  string
	timeout     time.Duration
	logger      *zap.Logger
}

// ChunkOptions configures a ChunkTranslator. Zero values select defaults.
type ChunkOptions struct {
	Instruction string
	TargetLang  string
	Timeout     time.Duration
	Logger      *zap.Logger
}

func NewChunkTranslator(t Translator, opts ChunkOptions) *ChunkTranslator {
	ct := &ChunkTranslator{
		translator:  t,
		instruction: opts.Instruction,
		targetLang:  opts.TargetLang,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}
	if ct.instruction == "" {
		ct.instruction = DefaultChunkInstruction
	}
	if ct.targetLang == "" {
		ct.targetLang = "rust"
	}
	if ct.logger == nil {
		ct.logger = zap.NewNop()
	}
	return ct
}

// Translate sends the chunk prompt (plus rc's feedback, if any) and returns
// the resulting attempt numbered rc.Attempt.
func (c *ChunkTranslator) Translate(ctx context.Context, chunk chunker.Chunk, rc retry.Context) internal.Attempt {
	start := time.Now()
	attempt := c.translate(ctx, chunk, rc)
	attempt.Number = rc.Attempt
	attempt.Latency = time.Since(start)

	fields := []zap.Field{
		zap.Int("chunk", chunk.ID),
		zap.Int("attempt", rc.Attempt),
		zap.Duration("latency", attempt.Latency),
	}
	if attempt.Succeeded() {
		c.logger.Debug("chunk translated", fields...)
	} else {
		c.logger.Warn("chunk failed", append(fields, zap.String("reason", attempt.Reason), zap.Bool("transient", attempt.Transient))...)
	}
	return attempt
}

func (c *ChunkTranslator) translate(ctx context.Context, chunk chunker.Chunk, rc retry.Context) internal.Attempt {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	response, err := c.translator.Translate(callCtx, BuildChunkPrompt(chunk, rc), c.instruction)
	if err != nil {
		return internal.Failure(chunk.ID, err.Error(), retry.IsTransient(err))
	}

	code, src := postprocess.ExtractCode(response, c.targetLang)
	if src == postprocess.SourceNone {
		return internal.Failure(chunk.ID, (&retry.MalformedResponseError{Reason: "empty response"}).Error(), false)
	}

	confidence := ChunkConfidence
	var warnings []string
	if src == postprocess.SourceRaw {
		confidence = RawConfidence
		warnings = append(warnings, "no code block found; raw response used")
	}
	return internal.Success(chunk.ID, code, confidence, warnings, dependencyHints(code))
}

// BuildChunkPrompt renders the prompt for a chunk: the unit's global
// context, the chunk header, the code and, on retries, the error feedback.
func BuildChunkPrompt(chunk chunker.Chunk, rc retry.Context) string {
	var b strings.Builder
	if header := chunk.Context.Header(); header != "" {
		b.WriteString(header)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "// Chunk %d (lines %d-%d):\n", chunk.ID, chunk.StartLine+1, chunk.EndLine)
	fmt.Fprintf(&b, "// Functions in this chunk: %s\n", strings.Join(chunk.Functions, ", "))
	if len(chunk.Dependencies) > 0 {
		fmt.Fprintf(&b, "// Calls defined in other chunks: %s\n", strings.Join(chunk.Dependencies, ", "))
	}
	b.WriteString("\n")
	b.WriteString(chunk.Content)
	if fb := rc.Feedback(); fb != "" {
		b.WriteString("\n\n")
		b.WriteString(fb)
	}
	return b.String()
}

// dependencyHints lists identifiers called in code. They are informational
// only and never used for ordering.
func dependencyHints(code string) []string {
	return chunker.FunctionCalls(code)
}
