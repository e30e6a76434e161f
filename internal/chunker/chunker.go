// Package chunker splits a source unit into contiguous, line-bounded chunks.
// When the chunk budget is large enough to hold whole functions, chunks are
// cut at function boundaries; otherwise fixed line windows are used. Every
// chunk shares the unit's GlobalContext so it can be translated in isolation.
package chunker

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/codetran/internal/retry"
)

// DefaultFunctionThreshold is the smallest max-lines budget for which
// function-aware grouping is attempted.
const DefaultFunctionThreshold = 50

// Chunk is a contiguous line range of a unit. Lines are 0-based and
// half-open: [StartLine, EndLine).
type Chunk struct {
	ID           int            `json:"id"`
	Content      string         `json:"content"`
	StartLine    int            `json:"start_line"`
	EndLine      int            `json:"end_line"`
	Functions    []string       `json:"functions,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Context      *GlobalContext `json:"-"`
}

// Lines returns the number of lines covered by the chunk.
func (c Chunk) Lines() int {
	return c.EndLine - c.StartLine
}

// Planner turns a unit's source into chunks. The zero value uses the regex
// detector and the default function threshold.
type Planner struct {
	Detector          BoundaryDetector
	FunctionThreshold int
}

// NewPlanner returns a Planner with the given detector (nil = regex).
func NewPlanner(detector BoundaryDetector, functionThreshold int) *Planner {
	return &Planner{Detector: detector, FunctionThreshold: functionThreshold}
}

func (p *Planner) detector() BoundaryDetector {
	if p == nil || p.Detector == nil {
		return RegexDetector{}
	}
	return p.Detector
}

func (p *Planner) threshold() int {
	if p == nil || p.FunctionThreshold <= 0 {
		return DefaultFunctionThreshold
	}
	return p.FunctionThreshold
}

// Split partitions source into chunks of at most maxLines lines (a single
// function longer than maxLines stays whole). The result is deterministic;
// concatenating the Content of all chunks yields source.
func (p *Planner) Split(source string, maxLines int) ([]Chunk, error) {
	if maxLines <= 0 {
		return nil, &retry.PlanningError{Err: fmt.Errorf("max lines must be positive, got %d", maxLines)}
	}
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	lines := splitLines(source)
	gctx := ExtractGlobalContext(source)
	bounds := normalizeBoundaries(p.detector().Detect(source), len(lines))

	var ranges [][2]int
	if maxLines > p.threshold() && len(bounds) > 0 {
		ranges = groupByFunctions(bounds, len(lines), maxLines)
	} else {
		ranges = windows(len(lines), maxLines)
	}

	chunks := make([]Chunk, len(ranges))
	owner := make(map[string]int, len(bounds))
	for i, r := range ranges {
		chunks[i] = Chunk{
			ID:        i,
			Content:   strings.Join(lines[r[0]:r[1]], ""),
			StartLine: r[0],
			EndLine:   r[1],
			Context:   gctx,
		}
		for _, b := range bounds {
			if b.Line >= r[0] && b.Line < r[1] {
				chunks[i].Functions = append(chunks[i].Functions, b.Name)
				if _, ok := owner[b.Name]; !ok {
					owner[b.Name] = i
				}
			}
		}
	}

	for i := range chunks {
		for _, call := range FunctionCalls(chunks[i].Content) {
			if at, ok := owner[call]; ok && at != i {
				chunks[i].Dependencies = append(chunks[i].Dependencies, call)
			}
		}
	}
	return chunks, nil
}

// groupByFunctions accumulates whole functions into chunks. The preamble
// before the first function is counted against the first chunk.
func groupByFunctions(bounds []Boundary, total, maxLines int) [][2]int {
	var ranges [][2]int
	start := 0
	for i, b := range bounds {
		end := total
		if i+1 < len(bounds) {
			end = bounds[i+1].Line
		}
		current := b.Line - start
		if current > 0 && current+(end-b.Line) > maxLines {
			ranges = append(ranges, [2]int{start, b.Line})
			start = b.Line
		}
	}
	return append(ranges, [2]int{start, total})
}

func windows(total, maxLines int) [][2]int {
	var ranges [][2]int
	for start := 0; start < total; start += maxLines {
		end := start + maxLines
		if end > total {
			end = total
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// normalizeBoundaries sorts boundaries by line and drops duplicates and
// out-of-range entries.
func normalizeBoundaries(bounds []Boundary, total int) []Boundary {
	sort.SliceStable(bounds, func(i, j int) bool { return bounds[i].Line < bounds[j].Line })
	out := bounds[:0]
	last := -1
	for _, b := range bounds {
		if b.Line < 0 || b.Line >= total || b.Line == last {
			continue
		}
		out = append(out, b)
		last = b.Line
	}
	return out
}

// splitLines splits s keeping line terminators. A trailing newline does not
// produce an empty final line.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ErrChunkNotFound is returned by Lookup for an id outside the plan.
var ErrChunkNotFound = errors.New("chunk not found")

// Lookup returns the chunk with the given id from a plan.
func Lookup(chunks []Chunk, id int) (Chunk, error) {
	if id < 0 || id >= len(chunks) || chunks[id].ID != id {
		return Chunk{}, fmt.Errorf("%w: %d", ErrChunkNotFound, id)
	}
	return chunks[id], nil
}
