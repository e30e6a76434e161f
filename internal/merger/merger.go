// Package merger combines per-chunk attempts into one target-language
// artifact with exactly one section per chunk id, in id order.
package merger

import (
	"fmt"
	"strings"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/placeholder"
)

// Header opens every merged artifact.
const Header = "// Auto-generated Rust code from C translation\n// Generated using chunked translation\n\n"

// Section is the merged output for one chunk id.
type Section struct {
	ChunkID    int
	Succeeded  bool
	Code       string
	Warnings   []string
	Confidence float64
	Reason     string
}

// Artifact is the merged result of a chunked translation.
type Artifact struct {
	Sections          []Section
	Code              string
	Warnings          []string
	OverallConfidence float64
	FailedChunkIDs    []int
}

// Complete reports whether every chunk has a successful translation.
func (a Artifact) Complete() bool {
	return len(a.FailedChunkIDs) == 0
}

// Merge orders attempts by chunk id, keeps the attempt with the highest
// number for each id (the later one on ties) and renders a placeholder for
// ids whose kept attempt failed or that have no attempt at all. When total is
// not positive it is derived from the highest chunk id seen.
func Merge(attempts []internal.Attempt, total int) Artifact {
	latest := make(map[int]internal.Attempt, len(attempts))
	maxID := -1
	for _, a := range attempts {
		if a.ChunkID < 0 {
			continue
		}
		if a.ChunkID > maxID {
			maxID = a.ChunkID
		}
		if prev, ok := latest[a.ChunkID]; ok && prev.Number > a.Number {
			continue
		}
		latest[a.ChunkID] = a
	}
	if total <= 0 {
		total = maxID + 1
	}

	art := Artifact{Sections: make([]Section, 0, total)}
	var code strings.Builder
	code.WriteString(Header)
	var sum float64

	for id := 0; id < total; id++ {
		a, ok := latest[id]
		sec := Section{ChunkID: id}
		switch {
		case ok && a.Succeeded():
			sec.Succeeded = true
			sec.Code = a.Code
			sec.Warnings = a.Warnings
			sec.Confidence = a.Confidence
		case ok:
			sec.Reason = a.Reason
			sec.Code = placeholder.Render(id, a.Reason)
			sec.Warnings = []string{fmt.Sprintf("Translation failed: %s", firstLine(a.Reason))}
		default:
			sec.Reason = "no attempt recorded"
			sec.Code = placeholder.Render(id, sec.Reason)
			sec.Warnings = []string{"Translation failed: no attempt recorded"}
		}
		if !sec.Succeeded {
			art.FailedChunkIDs = append(art.FailedChunkIDs, id)
		}

		sum += sec.Confidence
		art.Warnings = append(art.Warnings, prefixed(id, sec.Warnings)...)
		art.Sections = append(art.Sections, sec)
		writeSection(&code, sec)
	}

	if total > 0 {
		art.OverallConfidence = sum / float64(total)
	}
	art.Code = code.String()
	return art
}

func writeSection(b *strings.Builder, sec Section) {
	fmt.Fprintf(b, "// ========== Chunk %d ==========\n", sec.ChunkID)
	for _, w := range sec.Warnings {
		fmt.Fprintf(b, "// WARNING: %s\n", firstLine(w))
	}
	b.WriteString(strings.TrimRight(sec.Code, "\n"))
	b.WriteString("\n\n")
}

func prefixed(id int, warnings []string) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = fmt.Sprintf("chunk %d: %s", id, w)
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
