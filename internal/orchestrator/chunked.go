package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/chunker"
	"github.com/valpere/codetran/internal/merger"
	"github.com/valpere/codetran/internal/progress"
	"github.com/valpere/codetran/internal/retry"
	"github.com/valpere/codetran/internal/skeleton"
)

// unitPlan is the cached chunk list of a unit with the latest attempt per
// chunk. mu guards latest.
type unitPlan struct {
	source string
	chunks []chunker.Chunk

	mu     sync.Mutex
	latest map[int]internal.Attempt
}

func (p *unitPlan) ids() []int {
	ids := make([]int, len(p.chunks))
	for i := range p.chunks {
		ids[i] = i
	}
	return ids
}

// Plan returns the chunk list of a unit, planning it on first use. The
// plan is cached for the session.
func (c *Coordinator) Plan(ctx context.Context, unit internal.Unit) ([]chunker.Chunk, error) {
	p, err := c.plan(ctx, unit)
	if err != nil {
		return nil, err
	}
	return p.chunks, nil
}

func (c *Coordinator) plan(ctx context.Context, unit internal.Unit) (*unitPlan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.plans[unit.ID]; ok && p.source == unit.SourceText {
		return p, nil
	}

	chunks, err := c.deps.Planner.Split(unit.SourceText, c.cfg.MaxLines)
	if err != nil {
		var pe *retry.PlanningError
		if errors.As(err, &pe) && pe.Unit == "" {
			pe.Unit = unit.ID
		}
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, &retry.PlanningError{Unit: unit.ID, Err: errors.New("source produced no chunks")}
	}

	p := &unitPlan{source: unit.SourceText, chunks: chunks, latest: make(map[int]internal.Attempt)}
	c.plans[unit.ID] = p
	c.deps.Tracker.Register(ctx, unit.ID, len(chunks))
	c.logger.Info("unit planned", zap.String("unit", unit.ID), zap.Int("chunks", len(chunks)), zap.Int("lines", unit.LineCount()))
	return p, nil
}

// resumePlan returns the cached plan, or re-plans the unit and restores its
// progress and last attempts from history.
func (c *Coordinator) resumePlan(ctx context.Context, unit internal.Unit) (*unitPlan, error) {
	c.mu.Lock()
	cached, ok := c.plans[unit.ID]
	c.mu.Unlock()
	if ok && cached.source == unit.SourceText {
		return cached, nil
	}

	if c.deps.History == nil {
		return c.plan(ctx, unit)
	}

	// loaded before planning, which registers the unit and persists a fresh record
	rec, found, err := c.deps.History.LoadProgress(ctx, unit.ID)
	if err != nil {
		c.logger.Warn("failed to load progress", zap.String("unit", unit.ID), zap.Error(err))
		found = false
	}
	p, err := c.plan(ctx, unit)
	if err != nil {
		return nil, err
	}
	if found && rec.TotalChunks == len(p.chunks) {
		c.deps.Tracker.Restore(ctx, rec)
	}

	attempts, err := c.deps.History.ListAttempts(ctx, unit.ID)
	if err != nil {
		c.logger.Warn("failed to load attempts", zap.String("unit", unit.ID), zap.Error(err))
		return p, nil
	}
	// attempts arrive in insertion order; the last one per chunk wins
	// regardless of which session or attempt number produced it
	p.mu.Lock()
	for _, a := range attempts {
		if a.ChunkID < 0 || a.ChunkID >= len(p.chunks) {
			continue
		}
		p.latest[a.ChunkID] = a
	}
	p.mu.Unlock()
	return p, nil
}

// Resume re-translates only the given chunk ids of a previously planned
// unit and merges them with the last attempts of the other chunks. Ids
// outside the plan are rejected before anything is translated.
func (c *Coordinator) Resume(ctx context.Context, unit internal.Unit, chunkIDs []int) (*UnitResult, error) {
	ctx, span := tracer.Start(ctx, "Coordinator.Resume", trace.WithAttributes(
		attribute.String("unit", unit.ID),
		attribute.IntSlice("chunks", chunkIDs),
	))
	defer span.End()
	start := time.Now()

	if len(chunkIDs) == 0 {
		return nil, errors.New("no chunk ids to resume")
	}
	p, err := c.resumePlan(ctx, unit)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ids := dedupe(chunkIDs)
	for _, id := range ids {
		if _, err := chunker.Lookup(p.chunks, id); err != nil {
			err = fmt.Errorf("%w: %d (plan has %d chunks)", ErrUnknownChunk, id, len(p.chunks))
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	layout, err := skeleton.Create(c.cfg.OutputDir, unit)
	if err != nil {
		return nil, fmt.Errorf("creating skeleton for %s: %w", unit.ID, err)
	}

	c.logger.Info("resuming unit", zap.String("unit", unit.ID), zap.Ints("chunks", ids))
	res, err := c.loop(ctx, unit, layout, ModeChunked, c.chunkedStep(unit, p, ids))
	c.finish(ctx, unit, res, err, start, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// chunkedStep translates pending chunks on the first attempt. A retry after
// chunk failures re-translates only the failed chunks; a retry after a
// validation failure re-translates every chunk with the feedback.
func (c *Coordinator) chunkedStep(unit internal.Unit, p *unitPlan, pending []int) producer {
	next := pending
	return func(ctx context.Context, rc retry.Context) (step, error) {
		attempts := c.translateChunks(ctx, p, next, rc)
		if err := ctx.Err(); err != nil {
			return step{}, err
		}

		p.mu.Lock()
		for _, a := range attempts {
			p.latest[a.ChunkID] = a
		}
		all := make([]internal.Attempt, 0, len(p.latest))
		for _, a := range p.latest {
			all = append(all, a)
		}
		p.mu.Unlock()

		var reasons []string
		for _, a := range attempts {
			outcome := progress.Succeeded
			if !a.Succeeded() {
				outcome = progress.Failed
				reasons = append(reasons, fmt.Sprintf("chunk %d: %s", a.ChunkID, a.Reason))
			}
			if err := c.deps.Tracker.RecordResult(ctx, unit.ID, a.ChunkID, outcome); err != nil {
				c.logger.Warn("failed to record progress", zap.String("unit", unit.ID), zap.Int("chunk", a.ChunkID), zap.Error(err))
			}
			c.deps.Metrics.ObserveChunk(a.Succeeded())
			c.saveAttempt(ctx, unit.ID, a)
		}

		art := merger.Merge(all, len(p.chunks))
		st := step{
			Code:           art.Code,
			Confidence:     art.OverallConfidence,
			Warnings:       art.Warnings,
			Chunks:         len(p.chunks),
			FailedChunkIDs: art.FailedChunkIDs,
		}
		if !art.Complete() {
			if len(reasons) == 0 {
				reasons = append(reasons, fmt.Sprintf("chunks %v have no successful translation", art.FailedChunkIDs))
			}
			st.Failure = "chunk translation failed:\n" + strings.Join(reasons, "\n")
			next = art.FailedChunkIDs
		} else {
			next = p.ids()
		}
		return st, nil
	}
}

// translateChunks runs the chunk translator over ids with at most
// Config.Workers in flight. Results are in ids order.
func (c *Coordinator) translateChunks(ctx context.Context, p *unitPlan, ids []int, rc retry.Context) []internal.Attempt {
	results := make([]internal.Attempt, len(ids))
	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i, id := range ids {
		chunk := p.chunks[id]
		g.Go(func() error {
			results[i] = c.chunks.Translate(ctx, chunk, rc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
