// Package progress tracks per-unit chunk completion for chunked
// translations. Each unit has its own lock; concurrent chunk workers of one
// unit serialize on it while other units proceed independently.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrUnknownUnit     = errors.New("unknown unit")
	ErrChunkOutOfRange = errors.New("chunk id out of range")
)

// Outcome is the result reported for one chunk.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
)

// Record is the persisted progress of one unit.
type Record struct {
	UnitID          string `json:"unit_id"`
	TotalChunks     int    `json:"total_chunks"`
	CompletedChunks int    `json:"completed_chunks"`
	FailedChunkIDs  []int  `json:"failed_chunk_ids"`
}

// Persister saves records after every change. Implementations must be safe
// for concurrent use.
type Persister interface {
	SaveProgress(ctx context.Context, rec Record) error
}

type entry struct {
	mu        sync.Mutex
	total     int
	completed map[int]struct{}
	failed    map[int]struct{}
}

// Tracker holds progress for all units of a session.
type Tracker struct {
	mu      sync.Mutex
	units   map[string]*entry
	persist Persister
	logger  *zap.Logger
}

// New returns a Tracker. persist and logger may be nil.
func New(persist Persister, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		units:   make(map[string]*entry),
		persist: persist,
		logger:  logger,
	}
}

// Register starts (or restarts) tracking a unit with total chunks.
func (t *Tracker) Register(ctx context.Context, unitID string, total int) {
	e := &entry{
		total:     total,
		completed: make(map[int]struct{}),
		failed:    make(map[int]struct{}),
	}
	t.mu.Lock()
	t.units[unitID] = e
	t.mu.Unlock()

	e.mu.Lock()
	t.save(ctx, e.record(unitID))
	e.mu.Unlock()
}

// Restore loads a previously persisted record, replacing any current state,
// and persists it again.
func (t *Tracker) Restore(ctx context.Context, rec Record) {
	e := &entry{
		total:     rec.TotalChunks,
		completed: make(map[int]struct{}),
		failed:    make(map[int]struct{}),
	}
	for _, id := range rec.FailedChunkIDs {
		e.failed[id] = struct{}{}
		e.completed[id] = struct{}{}
	}
	// Completed ids other than the failed ones are not persisted; fill the
	// count with the lowest ids not already present.
	for id := 0; len(e.completed) < rec.CompletedChunks && id < rec.TotalChunks; id++ {
		e.completed[id] = struct{}{}
	}

	t.mu.Lock()
	t.units[rec.UnitID] = e
	t.mu.Unlock()

	e.mu.Lock()
	t.save(ctx, e.record(rec.UnitID))
	e.mu.Unlock()
}

// RecordResult marks chunkID of unitID as finished with the given outcome.
// Recording the same chunk twice never increases the completed count; a
// later success clears an earlier failure.
func (t *Tracker) RecordResult(ctx context.Context, unitID string, chunkID int, outcome Outcome) error {
	e, err := t.lookup(unitID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if chunkID < 0 || chunkID >= e.total {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, chunkID, e.total)
	}
	e.completed[chunkID] = struct{}{}
	if outcome == Failed {
		e.failed[chunkID] = struct{}{}
	} else {
		delete(e.failed, chunkID)
	}
	rec := e.record(unitID)
	// saved under the unit lock so persisted records never go backwards
	t.save(ctx, rec)
	e.mu.Unlock()

	t.logger.Debug("chunk recorded",
		zap.String("unit", unitID),
		zap.Int("chunk", chunkID),
		zap.Bool("failed", outcome == Failed),
		zap.Int("completed", rec.CompletedChunks),
		zap.Int("total", rec.TotalChunks),
	)
	return nil
}

// Snapshot returns a copy of the unit's current record.
func (t *Tracker) Snapshot(unitID string) (Record, bool) {
	e, err := t.lookup(unitID)
	if err != nil {
		return Record{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record(unitID), true
}

// Forget drops a unit's state.
func (t *Tracker) Forget(unitID string) {
	t.mu.Lock()
	delete(t.units, unitID)
	t.mu.Unlock()
}

func (t *Tracker) lookup(unitID string) (*entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.units[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	return e, nil
}

func (t *Tracker) save(ctx context.Context, rec Record) {
	if t.persist == nil {
		return
	}
	if err := t.persist.SaveProgress(ctx, rec); err != nil {
		t.logger.Warn("failed to persist progress", zap.String("unit", rec.UnitID), zap.Error(err))
	}
}

// record must be called with e.mu held.
func (e *entry) record(unitID string) Record {
	failed := make([]int, 0, len(e.failed))
	for id := range e.failed {
		failed = append(failed, id)
	}
	sort.Ints(failed)
	return Record{
		UnitID:          unitID,
		TotalChunks:     e.total,
		CompletedChunks: len(e.completed),
		FailedChunkIDs:  failed,
	}
}
