package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/chunker"
	"github.com/valpere/codetran/internal/retry"
)

// LoadUnit reads the C file at path into a Unit. A header with the same
// stem next to it is folded into the unit. Read failures are planning
// errors.
func LoadUnit(path, targetLang string) (internal.Unit, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return internal.Unit{Path: path, ID: filepath.Clean(path), Name: stem(path)}, &retry.PlanningError{Unit: path, Err: err}
	}
	unit := internal.NewUnit(path, string(b), "c", targetLang)

	header := strings.TrimSuffix(path, filepath.Ext(path)) + ".h"
	if h, err := os.ReadFile(header); err == nil {
		unit = unit.WithHeader(header, string(h))
	} else if !errors.Is(err, os.ErrNotExist) {
		return unit, &retry.PlanningError{Unit: unit.ID, Err: fmt.Errorf("reading header: %w", err)}
	}
	return unit, nil
}

// LoadUnits reads every path. Unreadable files come back as failures so a
// batch report can list them next to the translated units.
func LoadUnits(paths []string, targetLang string) ([]internal.Unit, []UnitFailure) {
	var units []internal.Unit
	var failed []UnitFailure
	for _, p := range paths {
		u, err := LoadUnit(p, targetLang)
		if err != nil {
			failed = append(failed, UnitFailure{Result: &UnitResult{Unit: u, LastDiagnostic: err.Error()}, Err: err})
			continue
		}
		units = append(units, u)
	}
	return units, failed
}

// Schedule orders units leaf to root along their local #include edges.
// Each level only depends on earlier levels. Units caught in a cycle are
// returned together as the last level.
func Schedule(units []internal.Unit) [][]internal.Unit {
	byStem := make(map[string]int, len(units))
	for i, u := range units {
		byStem[stemPath(u.Path)] = i
	}

	indegree := make([]int, len(units))
	dependents := make([][]int, len(units))
	for i, u := range units {
		seen := make(map[int]struct{})
		dir := filepath.Dir(u.Path)
		for _, inc := range chunker.LocalIncludes(u.SourceText) {
			j, ok := byStem[stemPath(filepath.Join(dir, inc))]
			if !ok || j == i {
				continue
			}
			if _, dup := seen[j]; dup {
				continue
			}
			seen[j] = struct{}{}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var levels [][]internal.Unit
	done := make([]bool, len(units))
	var ready []int
	for i := range units {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return units[ready[a]].ID < units[ready[b]].ID })
		level := make([]internal.Unit, 0, len(ready))
		var next []int
		for _, i := range ready {
			done[i] = true
			level = append(level, units[i])
			for _, d := range dependents[i] {
				indegree[d]--
				if indegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		levels = append(levels, level)
		ready = next
	}

	var cyclic []internal.Unit
	for i, u := range units {
		if !done[i] {
			cyclic = append(cyclic, u)
		}
	}
	if len(cyclic) > 0 {
		sort.Slice(cyclic, func(a, b int) bool { return cyclic[a].ID < cyclic[b].ID })
		levels = append(levels, cyclic)
	}
	return levels
}

// Run translates units level by level in dependency order, at most
// Config.Concurrency at a time within a level. A failing unit never stops
// the others.
func (c *Coordinator) Run(ctx context.Context, units []internal.Unit) *Report {
	start := time.Now()
	report := &Report{}
	sem := semaphore.NewWeighted(int64(c.cfg.Concurrency))

	var mu sync.Mutex
	add := func(res *UnitResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed = append(report.Failed, UnitFailure{Result: res, Err: err})
			return
		}
		report.Succeeded = append(report.Succeeded, res)
	}

	levels := Schedule(units)
	if len(levels) > 1 {
		c.logger.Info("batch scheduled by include order", zap.Int("units", len(units)), zap.Int("levels", len(levels)))
	}
	for n, level := range levels {
		c.logger.Debug("running level", zap.Int("level", n), zap.Int("units", len(level)))
		var wg sync.WaitGroup
		for _, unit := range level {
			if err := sem.Acquire(ctx, 1); err != nil {
				add(&UnitResult{Unit: unit}, err)
				continue
			}
			wg.Add(1)
			go func(u internal.Unit) {
				defer wg.Done()
				defer sem.Release(1)
				res, err := c.TranslateUnit(ctx, u)
				if res == nil {
					res = &UnitResult{Unit: u}
				}
				add(res, err)
			}(unit)
		}
		wg.Wait()
	}

	report.order()
	report.Elapsed = time.Since(start)
	return report
}

// Merge adds failures found outside the run, such as unreadable files.
func (r *Report) Merge(failed []UnitFailure) {
	r.Failed = append(r.Failed, failed...)
	r.order()
}

func (r *Report) order() {
	sort.Slice(r.Succeeded, func(i, j int) bool {
		return r.Succeeded[i].Unit.ID < r.Succeeded[j].Unit.ID
	})
	sort.Slice(r.Failed, func(i, j int) bool {
		return r.Failed[i].Result.Unit.ID < r.Failed[j].Result.Unit.ID
	})
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func stemPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}
