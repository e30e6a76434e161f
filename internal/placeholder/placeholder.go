// Package placeholder renders and recognises the delimited sections that
// stand in for chunks with no successful translation in a merged artifact.
// Each section is a comment block that compiles in the target language and
// can be found again later to resume only the failed chunks.
package placeholder

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	beginMarker = "// BEGIN UNTRANSLATED CHUNK"
	endMarker   = "// END UNTRANSLATED CHUNK"
)

var (
	reBegin = regexp.MustCompile(`(?m)^// BEGIN UNTRANSLATED CHUNK (\d+)\s*$`)
	reEnd   = regexp.MustCompile(`(?m)^// END UNTRANSLATED CHUNK (\d+)\s*$`)
)

// Render returns the placeholder section for a failed chunk. The reason is
// kept on comment lines so multi-line diagnostics stay inside the block.
func Render(chunkID int, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n", beginMarker, chunkID)
	fmt.Fprintf(&b, "// Failed to translate chunk %d\n", chunkID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no successful attempt recorded"
	}
	for i, line := range strings.Split(reason, "\n") {
		if i == 0 {
			fmt.Fprintf(&b, "// Error: %s\n", strings.TrimRight(line, "\r"))
			continue
		}
		fmt.Fprintf(&b, "//   %s\n", strings.TrimRight(line, "\r"))
	}
	fmt.Fprintf(&b, "%s %d", endMarker, chunkID)
	return b.String()
}

// FailedChunks returns the sorted ids of every complete placeholder section
// found in code. A BEGIN marker without its END is ignored.
func FailedChunks(code string) []int {
	ends := make(map[int]struct{})
	for _, m := range reEnd.FindAllStringSubmatch(code, -1) {
		if id, err := strconv.Atoi(m[1]); err == nil {
			ends[id] = struct{}{}
		}
	}

	seen := make(map[int]struct{})
	var ids []int
	for _, m := range reBegin.FindAllStringSubmatch(code, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := ends[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Reason extracts the error text recorded in the placeholder for chunkID.
func Reason(code string, chunkID int) (string, bool) {
	begin := fmt.Sprintf("%s %d\n", beginMarker, chunkID)
	end := fmt.Sprintf("%s %d", endMarker, chunkID)
	i := strings.Index(code, begin)
	if i < 0 {
		return "", false
	}
	rest := code[i+len(begin):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false
	}

	var lines []string
	for _, line := range strings.Split(strings.TrimRight(rest[:j], "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "// Error: "):
			lines = append(lines, strings.TrimPrefix(line, "// Error: "))
		case strings.HasPrefix(line, "//   "):
			lines = append(lines, strings.TrimPrefix(line, "//   "))
		}
	}
	return strings.Join(lines, "\n"), true
}
