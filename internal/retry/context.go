package retry

import (
	"fmt"
	"strings"
)

// MaxRecentErrors is how many previous failure texts a Context keeps.
const MaxRecentErrors = 3

// Context is the explicit error history handed to the next attempt. Values
// are immutable; Next returns a new Context.
type Context struct {
	Attempt int
	errors  []string
}

// First is the context of the first attempt: no feedback.
func First() Context {
	return Context{Attempt: 1}
}

// Next records a failure text and advances the attempt counter.
func (c Context) Next(failure string) Context {
	errs := make([]string, 0, MaxRecentErrors)
	errs = append(errs, c.errors...)
	if failure = strings.TrimSpace(failure); failure != "" {
		errs = append(errs, failure)
	}
	if len(errs) > MaxRecentErrors {
		errs = errs[len(errs)-MaxRecentErrors:]
	}
	return Context{Attempt: c.Attempt + 1, errors: errs}
}

// PreviousErrors returns a copy of the remembered failure texts, oldest first.
func (c Context) PreviousErrors() []string {
	out := make([]string, len(c.errors))
	copy(out, c.errors)
	return out
}

// HasFeedback reports whether the attempt carries prior failure context.
func (c Context) HasFeedback() bool {
	return len(c.errors) > 0
}

// Last returns the most recent failure text.
func (c Context) Last() string {
	if len(c.errors) == 0 {
		return ""
	}
	return c.errors[len(c.errors)-1]
}

// Feedback renders the block appended to the prompt of a retried attempt.
// The latest failure comes first; older remembered failures follow, oldest
// first. It is empty on the first attempt.
func (c Context) Feedback() string {
	if !c.HasFeedback() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Previous compilation failed with these errors:\n```\n%s\n```\n", c.Last())
	if older := c.errors[:len(c.errors)-1]; len(older) > 0 {
		b.WriteString("\nEarlier attempts failed with:\n")
		for i, e := range older {
			fmt.Fprintf(&b, "\nAttempt %d:\n```\n%s\n```\n", c.Attempt-len(c.errors)+i, e)
		}
	}
	b.WriteString("\nPlease fix these issues in the translation.")
	return b.String()
}
