package merger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/placeholder"
)

func ok(id, n int, code string, conf float64) internal.Attempt {
	a := internal.Success(id, code, conf, nil, nil)
	a.Number = n
	return a
}

func failed(id, n int, reason string) internal.Attempt {
	a := internal.Failure(id, reason, false)
	a.Number = n
	return a
}

func TestMerge_OrdersSectionsByID(t *testing.T) {
	art := Merge([]internal.Attempt{
		ok(2, 1, "fn c() {}", 0.75),
		ok(0, 1, "fn a() {}", 0.75),
		ok(1, 1, "fn b() {}", 0.75),
	}, 3)

	require.Len(t, art.Sections, 3)
	for i, s := range art.Sections {
		assert.Equal(t, i, s.ChunkID)
	}
	a := strings.Index(art.Code, "fn a()")
	b := strings.Index(art.Code, "fn b()")
	c := strings.Index(art.Code, "fn c()")
	assert.True(t, a < b && b < c, "sections out of order:\n%s", art.Code)
	assert.True(t, strings.HasPrefix(art.Code, Header))
	assert.True(t, art.Complete())
}

func TestMerge_ConfidenceIsMean(t *testing.T) {
	art := Merge([]internal.Attempt{
		ok(0, 1, "fn a() {}", 0.9),
		ok(1, 1, "fn b() {}", 0.6),
	}, 2)
	assert.InDelta(t, 0.75, art.OverallConfidence, 1e-9)
}

func TestMerge_FailedChunkCountsZero(t *testing.T) {
	art := Merge([]internal.Attempt{
		ok(0, 1, "fn a() {}", 0.6),
		failed(1, 1, "rate limited (429)"),
	}, 2)

	assert.InDelta(t, 0.3, art.OverallConfidence, 1e-9)
	assert.Equal(t, []int{1}, art.FailedChunkIDs)
	assert.False(t, art.Complete())
	assert.Contains(t, art.Code, "rate limited (429)")
	assert.Equal(t, []int{1}, placeholder.FailedChunks(art.Code))
}

func TestMerge_MissingChunkGetsPlaceholder(t *testing.T) {
	art := Merge([]internal.Attempt{ok(0, 1, "fn a() {}", 0.8)}, 3)

	require.Len(t, art.Sections, 3)
	assert.Equal(t, []int{1, 2}, art.FailedChunkIDs)
	assert.Equal(t, []int{1, 2}, placeholder.FailedChunks(art.Code))
	assert.InDelta(t, 0.8/3, art.OverallConfidence, 1e-9)
}

func TestMerge_LatestAttemptWins(t *testing.T) {
	art := Merge([]internal.Attempt{
		ok(0, 2, "fn retried() {}", 0.75),
		failed(0, 1, "first failure"),
	}, 1)

	assert.True(t, art.Sections[0].Succeeded)
	assert.Contains(t, art.Code, "fn retried()")
	assert.NotContains(t, art.Code, "first failure")
	assert.Empty(t, art.FailedChunkIDs)
}

func TestMerge_LaterFailureReplacesEarlierSuccess(t *testing.T) {
	art := Merge([]internal.Attempt{
		ok(0, 1, "fn old() {}", 0.75),
		failed(0, 2, "regressed"),
	}, 1)

	assert.False(t, art.Sections[0].Succeeded)
	assert.Equal(t, []int{0}, art.FailedChunkIDs)
}

func TestMerge_DerivesTotal(t *testing.T) {
	art := Merge([]internal.Attempt{ok(2, 1, "fn c() {}", 1)}, 0)
	assert.Len(t, art.Sections, 3)
}

func TestMerge_WarningsRenderedAsComments(t *testing.T) {
	a := internal.Success(0, "fn a() {}", 0.5, []string{"raw response used"}, nil)
	art := Merge([]internal.Attempt{a}, 1)

	assert.Contains(t, art.Code, "// WARNING: raw response used\n")
	assert.Equal(t, []string{"chunk 0: raw response used"}, art.Warnings)
}

func TestMerge_Deterministic(t *testing.T) {
	in := []internal.Attempt{ok(1, 1, "b", 0.5), ok(0, 1, "a", 0.5)}
	assert.Equal(t, Merge(in, 2).Code, Merge(in, 2).Code)
}
