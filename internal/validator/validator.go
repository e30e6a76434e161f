// Package validator checks a produced artifact by running an external build
// command (cargo by default) in the artifact's project directory.
package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/retry"
)

// Checker validates the artifact at location. A failed check returns a
// *retry.ValidationFailure carrying the diagnostic text.
type Checker interface {
	Check(ctx context.Context, location string) error
}

const defaultMaxDiagnostic = 8 * 1024

// CommandChecker runs Command with Args in the location directory and
// treats a non-zero exit as a validation failure.
type CommandChecker struct {
	Command       string
	Args          []string
	Timeout       time.Duration
	MaxDiagnostic int
	logger        *zap.Logger
}

// NewCargoChecker returns a checker running `cargo check --color=never`.
func NewCargoChecker(logger *zap.Logger) *CommandChecker {
	return NewCommandChecker("cargo", []string{"check", "--color=never"}, 0, 0, logger)
}

func NewCommandChecker(command string, args []string, timeout time.Duration, maxDiagnostic int, logger *zap.Logger) *CommandChecker {
	if maxDiagnostic <= 0 {
		maxDiagnostic = defaultMaxDiagnostic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandChecker{
		Command:       command,
		Args:          args,
		Timeout:       timeout,
		MaxDiagnostic: maxDiagnostic,
		logger:        logger,
	}
}

func (c *CommandChecker) Check(ctx context.Context, location string) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = location
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	c.logger.Debug("check finished",
		zap.String("location", location),
		zap.String("command", c.Command),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("check %s: %w", location, ctxErr)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// The command could not be started at all.
		return fmt.Errorf("running %s: %w", c.Command, err)
	}

	diag := strings.TrimSpace(out.String())
	if diag == "" {
		diag = exitErr.Error()
	}
	return &retry.ValidationFailure{Diagnostic: truncateDiagnostic(diag, c.MaxDiagnostic)}
}

// truncateDiagnostic keeps the head of long compiler output, where the first
// errors are reported.
func truncateDiagnostic(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return internal.Clip(s, max) + "\n... (truncated)"
}
