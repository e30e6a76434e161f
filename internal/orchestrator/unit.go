package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/postprocess"
	"github.com/valpere/codetran/internal/prompt"
	"github.com/valpere/codetran/internal/retry"
	"github.com/valpere/codetran/internal/skeleton"
	"github.com/valpere/codetran/internal/store"
	"github.com/valpere/codetran/internal/translator"
)

// step is what one attempt produced before validation. A non-empty Failure
// skips validation and counts as a failed attempt.
type step struct {
	Code           string
	Confidence     float64
	Warnings       []string
	Chunks         int
	FailedChunkIDs []int
	Failure        string
}

type producer func(ctx context.Context, rc retry.Context) (step, error)

// TranslateUnit runs the unit through Created, Translating(n), Validating
// until it succeeds or the attempt bound is reached. Units above the chunk
// threshold are translated chunk by chunk.
func (c *Coordinator) TranslateUnit(ctx context.Context, unit internal.Unit) (*UnitResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.TranslateUnit", trace.WithAttributes(attribute.String("unit", unit.ID)))
	defer span.End()
	start := time.Now()

	if strings.TrimSpace(unit.SourceText) == "" {
		err := &retry.PlanningError{Unit: unit.ID, Err: errors.New("source is empty")}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	layout, err := skeleton.Create(c.cfg.OutputDir, unit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("creating skeleton for %s: %w", unit.ID, err)
	}
	c.logger.Debug("unit created", zap.String("unit", unit.ID), zap.String("state", "created"), zap.String("root", layout.Root))

	mode := ModeSingle
	if unit.LineCount() > c.cfg.ChunkThresholdLines {
		mode = ModeChunked
	}
	span.SetAttributes(attribute.String("mode", mode))

	if res, ok := c.fromMemory(ctx, unit, layout, mode); ok {
		return res, nil
	}

	var (
		res       *UnitResult
		embedding []float32
	)
	if mode == ModeChunked {
		plan, perr := c.plan(ctx, unit)
		if perr != nil {
			span.SetStatus(codes.Error, perr.Error())
			return nil, perr
		}
		res, err = c.loop(ctx, unit, layout, mode, c.chunkedStep(unit, plan, plan.ids()))
	} else {
		var reference string
		reference, embedding = c.seed(ctx, unit)
		res, err = c.loop(ctx, unit, layout, mode, c.singleStep(unit, reference))
	}

	c.finish(ctx, unit, res, err, start, embedding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "translated")
	}
	return res, err
}

// loop is the attempt state machine shared by both modes.
func (c *Coordinator) loop(ctx context.Context, unit internal.Unit, layout skeleton.Layout, mode string, produce producer) (*UnitResult, error) {
	logger := c.logger.With(zap.String("unit", unit.ID), zap.String("mode", mode))
	res := &UnitResult{Unit: unit, Mode: mode, ArtifactPath: layout.Artifact}

	rc := retry.First()
	var previous string
	for {
		res.Attempts = rc.Attempt
		logger.Debug("translating", zap.String("state", "translating"), zap.Int("attempt", rc.Attempt))

		st, err := produce(ctx, rc)
		if err != nil {
			return res, err
		}
		res.Code = st.Code
		res.Confidence = st.Confidence
		res.Warnings = st.Warnings
		res.Chunks = st.Chunks
		res.FailedChunkIDs = st.FailedChunkIDs

		failure := st.Failure
		if st.Code != "" {
			c.logDiff(logger, previous, st.Code, rc.Attempt)
			previous = st.Code
			if err := layout.WriteArtifact(st.Code); err != nil {
				return res, fmt.Errorf("writing artifact: %w", err)
			}
		}

		if failure == "" {
			logger.Debug("validating", zap.String("state", "validating"), zap.Int("attempt", rc.Attempt))
			diag, verr := c.validate(ctx, layout.Root)
			if verr != nil {
				return res, verr
			}
			failure = diag
		}
		c.deps.Metrics.ObserveAttempt(mode, failure == "")

		if failure == "" {
			res.LastDiagnostic = ""
			logger.Info("unit succeeded", zap.String("state", "succeeded"), zap.Int("attempt", rc.Attempt))
			return res, nil
		}

		res.LastDiagnostic = failure
		logger.Warn("attempt failed", zap.Int("attempt", rc.Attempt), zap.String("diagnostic", firstLine(failure)))
		if c.policy.Exhausted(rc.Attempt) {
			logger.Error("unit failed", zap.String("state", "fatal"), zap.Int("attempts", rc.Attempt),
				zap.Strings("earlier_failures", rc.PreviousErrors()))
			return res, &retry.ExhaustedRetriesError{Unit: unit.ID, Attempts: rc.Attempt, LastDiagnostic: failure}
		}
		if err := c.policy.Wait(ctx, rc.Attempt); err != nil {
			return res, err
		}
		rc = rc.Next(failure)
	}
}

// validate returns the diagnostic of a failed check, or an error when the
// context ended.
func (c *Coordinator) validate(ctx context.Context, root string) (string, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.validate")
	defer span.End()

	err := c.deps.Checker.Check(ctx, root)
	if err == nil {
		span.SetStatus(codes.Ok, "passed")
		return "", nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	span.SetStatus(codes.Error, "failed")

	var vf *retry.ValidationFailure
	if errors.As(err, &vf) {
		return vf.Diagnostic, nil
	}
	return err.Error(), nil
}

func (c *Coordinator) singleStep(unit internal.Unit, reference string) producer {
	return func(ctx context.Context, rc retry.Context) (step, error) {
		text, err := c.deps.Prompts.Build(ctx, unit, c.cfg.TargetFunctions)
		if err != nil {
			if ctx.Err() != nil {
				return step{}, ctx.Err()
			}
			return step{}, &retry.PlanningError{Unit: unit.ID, Err: err}
		}
		if rc.Attempt == 1 && reference != "" {
			text += "\n\nA validated translation of a similar file, for reference:\n```" + c.cfg.TargetLang + "\n" + reference + "\n```"
		}
		if fb := rc.Feedback(); fb != "" {
			text += "\n\n" + fb
		}

		start := time.Now()
		response, err := c.call(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return step{}, ctx.Err()
			}
			a := internal.Failure(internal.WholeUnit, err.Error(), retry.IsTransient(err))
			c.recordAttempt(ctx, unit.ID, a, rc.Attempt, start)
			return step{Failure: "translation failed: " + err.Error()}, nil
		}

		code, src := postprocess.ExtractCode(response, c.cfg.TargetLang)
		if src == postprocess.SourceNone {
			reason := (&retry.MalformedResponseError{Reason: "empty response"}).Error()
			c.recordAttempt(ctx, unit.ID, internal.Failure(internal.WholeUnit, reason, false), rc.Attempt, start)
			return step{Failure: reason}, nil
		}

		confidence := translator.ChunkConfidence
		var warnings []string
		if src == postprocess.SourceRaw {
			confidence = translator.RawConfidence
			warnings = append(warnings, "no code block found; raw response used")
		}
		c.recordAttempt(ctx, unit.ID, internal.Success(internal.WholeUnit, code, confidence, warnings, nil), rc.Attempt, start)
		return step{Code: code, Confidence: confidence, Warnings: warnings}, nil
	}
}

// call sends text to the translator, splitting it when it exceeds the
// prompt ceiling and the provider accepts split prompts.
func (c *Coordinator) call(ctx context.Context, text string) (string, error) {
	system := c.systemInstruction()
	ct, chunked := c.deps.Translator.(translator.ChunkedTranslator)
	var parts []string
	if chunked && c.cfg.MaxPromptTokens > 0 && prompt.EstimateTokens(text) > c.cfg.MaxPromptTokens {
		parts = prompt.Split(text, c.cfg.MaxPromptTokens)
	}

	timeout := c.cfg.CallTimeout
	if timeout > 0 && len(parts) > 1 {
		timeout *= time.Duration(len(parts))
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if len(parts) <= 1 {
		return c.deps.Translator.Translate(ctx, text, system)
	}

	c.logger.Debug("prompt split", zap.Int("parts", len(parts)), zap.Int("estimated_tokens", prompt.EstimateTokens(text)))
	responses, err := ct.TranslateChunked(ctx, parts, system, c.cfg.MaxTokens)
	if err != nil {
		return "", err
	}
	var code []string
	for _, r := range responses {
		if piece, src := postprocess.ExtractCode(r, c.cfg.TargetLang); src != postprocess.SourceNone {
			code = append(code, piece)
		}
	}
	if len(code) == 0 {
		return "", nil
	}
	return "```" + c.cfg.TargetLang + "\n" + strings.Join(code, "\n\n") + "\n```", nil
}

func (c *Coordinator) systemInstruction() string {
	if c.cfg.SystemInstruction != "" {
		return c.cfg.SystemInstruction
	}
	return c.deps.Prompts.SystemInstruction()
}

func (c *Coordinator) recordAttempt(ctx context.Context, unitID string, a internal.Attempt, number int, start time.Time) {
	a.Number = number
	a.Latency = time.Since(start)
	c.saveAttempt(ctx, unitID, a)
}

func (c *Coordinator) saveAttempt(ctx context.Context, unitID string, a internal.Attempt) {
	if c.deps.History == nil {
		return
	}
	if _, err := c.deps.History.SaveAttempt(ctx, unitID, a); err != nil {
		c.logger.Warn("failed to save attempt", zap.String("unit", unitID), zap.Error(err))
	}
}

// fromMemory short-circuits units whose exact source was translated and
// validated before.
func (c *Coordinator) fromMemory(ctx context.Context, unit internal.Unit, layout skeleton.Layout, mode string) (*UnitResult, bool) {
	if c.deps.Memory == nil || c.cfg.NoCache {
		return nil, false
	}
	code, found, err := c.deps.Memory.GetCachedTranslation(ctx, unit.SourceText, sourceLang(unit), c.cfg.TargetLang)
	if err != nil {
		c.logger.Warn("translation memory lookup failed", zap.String("unit", unit.ID), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	if err := layout.WriteArtifact(code); err != nil {
		c.logger.Warn("failed to write cached artifact", zap.String("unit", unit.ID), zap.Error(err))
		return nil, false
	}
	c.logger.Info("translation memory hit", zap.String("unit", unit.ID))
	return &UnitResult{
		Unit:         unit,
		Mode:         mode,
		Cached:       true,
		ArtifactPath: layout.Artifact,
		Code:         code,
		Confidence:   1.0,
	}, true
}

// finish records the outcome in metrics, history, memory and the context
// store. Failures of these sinks are logged and ignored.
func (c *Coordinator) finish(ctx context.Context, unit internal.Unit, res *UnitResult, err error, start time.Time, embedding []float32) {
	if res == nil {
		return
	}
	res.Elapsed = time.Since(start)
	succeeded := err == nil && res.Succeeded()
	c.deps.Metrics.ObserveUnit(res.Mode, succeeded, res.Elapsed)

	if c.deps.History != nil {
		rec := store.UnitRecord{
			ID:             unit.ID,
			Path:           unit.Path,
			SourceLang:     sourceLang(unit),
			TargetLang:     c.cfg.TargetLang,
			Mode:           res.Mode,
			Status:         string(internal.StatusSucceeded),
			Attempts:       res.Attempts,
			LastDiagnostic: res.LastDiagnostic,
			ArtifactPath:   res.ArtifactPath,
		}
		if !succeeded {
			rec.Status = string(internal.StatusFailed)
			if rec.LastDiagnostic == "" && err != nil {
				rec.LastDiagnostic = err.Error()
			}
		}
		// a canceled ctx must not prevent recording the outcome
		if serr := c.deps.History.SaveUnit(context.WithoutCancel(ctx), rec); serr != nil {
			c.logger.Warn("failed to save unit", zap.String("unit", unit.ID), zap.Error(serr))
		}
	}

	if !succeeded {
		return
	}
	if c.deps.Memory != nil && !c.cfg.NoCache {
		if merr := c.deps.Memory.SaveToMemory(ctx, unit.SourceText, sourceLang(unit), c.cfg.TargetLang, res.Code, c.deps.Translator.Name()); merr != nil {
			c.logger.Warn("failed to save translation memory", zap.String("unit", unit.ID), zap.Error(merr))
		}
	}
	c.remember(ctx, unit, res.Code, embedding)
}

func sourceLang(unit internal.Unit) string {
	if unit.SourceLang == "" {
		return "c"
	}
	return unit.SourceLang
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
