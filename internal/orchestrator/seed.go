package orchestrator

import (
	"context"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/valpere/codetran/internal"
)

// maxEmbedBytes caps the source text sent to the embedder.
const maxEmbedBytes = 8 * 1024

// seed embeds the unit source and returns the best matching stored
// artifact as a reference for the first prompt. All failures degrade to no
// reference.
func (c *Coordinator) seed(ctx context.Context, unit internal.Unit) (string, []float32) {
	if c.deps.Context == nil || c.deps.Embedder == nil {
		return "", nil
	}
	embedding, err := c.embed(ctx, unit)
	if err != nil {
		c.logger.Warn("failed to embed source", zap.String("unit", unit.ID), zap.Error(err))
		return "", nil
	}

	matches, err := c.deps.Context.Search(ctx, embedding, nil, c.cfg.ContextResults)
	if err != nil {
		c.logger.Warn("context search failed", zap.String("unit", unit.ID), zap.Error(err))
		return "", embedding
	}
	for _, m := range matches {
		if m.UnitID == unit.ID {
			continue
		}
		c.logger.Debug("seeded prompt with reference",
			zap.String("unit", unit.ID),
			zap.String("reference", m.UnitID),
			zap.Float32("similarity", m.Similarity),
		)
		return m.Content, embedding
	}
	return "", embedding
}

// remember stores a validated artifact in the context store.
func (c *Coordinator) remember(ctx context.Context, unit internal.Unit, code string, embedding []float32) {
	if c.deps.Context == nil || c.deps.Embedder == nil || code == "" {
		return
	}
	if embedding == nil {
		var err error
		if embedding, err = c.embed(ctx, unit); err != nil {
			c.logger.Warn("failed to embed source", zap.String("unit", unit.ID), zap.Error(err))
			return
		}
	}
	if _, err := c.deps.Context.Store(ctx, unit.ID, code, embedding); err != nil {
		c.logger.Warn("failed to store artifact context", zap.String("unit", unit.ID), zap.Error(err))
	}
}

func (c *Coordinator) embed(ctx context.Context, unit internal.Unit) ([]float32, error) {
	return c.deps.Embedder.Embed(ctx, internal.Clip(unit.SourceText, maxEmbedBytes))
}

// logDiff logs how much the artifact changed between attempts.
func (c *Coordinator) logDiff(logger *zap.Logger, previous, current string, attempt int) {
	if previous == "" || !logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(previous, current, false)

	var inserted, deleted int
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += len(d.Text)
		case diffmatchpatch.DiffDelete:
			deleted += len(d.Text)
		}
	}
	logger.Debug("artifact changed",
		zap.Int("attempt", attempt),
		zap.Int("inserted", inserted),
		zap.Int("deleted", deleted),
		zap.Int("distance", dmp.DiffLevenshtein(diffs)),
	)
}
