package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Defaults(t *testing.T) {
	p := NewPolicy(0, -1)
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, p.BaseDelay)
}

func TestPolicy_DelayIsLinear(t *testing.T) {
	p := NewPolicy(3, 100*time.Millisecond)
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 300*time.Millisecond, p.Delay(3))
}

func TestPolicy_Exhausted(t *testing.T) {
	p := NewPolicy(3, 0)
	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
}

func TestPolicy_WaitUsesInjectedSleep(t *testing.T) {
	var got []time.Duration
	p := NewPolicy(3, time.Second).WithSleep(func(ctx context.Context, d time.Duration) error {
		got = append(got, d)
		return nil
	})

	require.NoError(t, p.Wait(context.Background(), 1))
	require.NoError(t, p.Wait(context.Background(), 2))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, got)
}

func TestPolicy_WaitHonoursCancellation(t *testing.T) {
	p := NewPolicy(3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContext_FirstHasNoFeedback(t *testing.T) {
	c := First()
	assert.Equal(t, 1, c.Attempt)
	assert.False(t, c.HasFeedback())
	assert.Empty(t, c.Feedback())
}

func TestContext_NextKeepsLastThree(t *testing.T) {
	c := First()
	for i := 1; i <= 5; i++ {
		c = c.Next(fmt.Sprintf("error %d", i))
	}

	assert.Equal(t, 6, c.Attempt)
	assert.Equal(t, []string{"error 3", "error 4", "error 5"}, c.PreviousErrors())
	assert.Equal(t, "error 5", c.Last())
}

func TestContext_NextDoesNotMutateReceiver(t *testing.T) {
	a := First().Next("first")
	b := a.Next("second")

	assert.Equal(t, []string{"first"}, a.PreviousErrors())
	assert.Equal(t, []string{"first", "second"}, b.PreviousErrors())
}

func TestContext_FeedbackContainsDiagnostic(t *testing.T) {
	c := First().Next("error[E0308]: mismatched types")

	fb := c.Feedback()
	assert.Contains(t, fb, "Previous compilation failed")
	assert.Contains(t, fb, "error[E0308]: mismatched types")
}

func TestContext_FeedbackRendersHistory(t *testing.T) {
	c := First().Next("error A").Next("error B").Next("error C")

	fb := c.Feedback()
	assert.True(t, strings.HasPrefix(fb, "Previous compilation failed with these errors:\n```\nerror C\n```"))
	assert.Contains(t, fb, "Attempt 1:\n```\nerror A")
	assert.Contains(t, fb, "Attempt 2:\n```\nerror B")
	assert.Less(t, strings.Index(fb, "error A"), strings.Index(fb, "error B"))
	assert.True(t, strings.HasSuffix(fb, "Please fix these issues in the translation."))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"transient", Transientf("rate limited (429)"), KindTransient},
		{"wrapped transient", fmt.Errorf("call: %w", Transient(errors.New("boom"))), KindTransient},
		{"deadline", context.DeadlineExceeded, KindTransient},
		{"canceled", context.Canceled, KindCanceled},
		{"malformed", &MalformedResponseError{Reason: "empty"}, KindMalformedResponse},
		{"validation", &ValidationFailure{Diagnostic: "x"}, KindValidation},
		{"exhausted", &ExhaustedRetriesError{Unit: "u", Attempts: 3}, KindExhausted},
		{"planning", &PlanningError{Err: errors.New("bad")}, KindPlanning},
		{"plain", errors.New("plain"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestExhaustedRetriesError_Message(t *testing.T) {
	err := &ExhaustedRetriesError{Unit: "foo.c", Attempts: 3, LastDiagnostic: "E0425"}
	assert.Equal(t, "unit foo.c failed after 3 attempts: E0425", err.Error())
}
