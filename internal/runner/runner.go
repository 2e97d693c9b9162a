// Package runner executes external programs on behalf of the pipeline
// services. A failed invocation is reported to a diagnostic logger and
// surfaced as a false result, never as an error.
package runner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner runs one external program per call.
type Runner interface {
	// Run executes name with args and reports whether it exited cleanly.
	Run(ctx context.Context, name string, args ...string) bool
	// Output is like Run but also returns the captured stdout.
	Output(ctx context.Context, name string, args ...string) (string, bool)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// Logger receives a record for every failed invocation. Defaults to slog.Default().
	Logger *slog.Logger
	// Timeout bounds a single invocation. Zero means wait forever.
	Timeout time.Duration
}

// New returns an ExecRunner reporting failures to logger.
func New(logger *slog.Logger, timeout time.Duration) *ExecRunner {
	return &ExecRunner{Logger: logger, Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) bool {
	_, ok := r.exec(ctx, name, args, false)
	return ok
}

func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, bool) {
	return r.exec(ctx, name, args, true)
}

func (r *ExecRunner) exec(ctx context.Context, name string, args []string, split bool) (string, bool) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	if split {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		// Combined output keeps the diagnostic in the order the tool wrote it.
		cmd.Stdout = &stdout
		cmd.Stderr = &stdout
	}

	err := cmd.Run()
	if err == nil {
		return stdout.String(), true
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"command", commandLine(name, args),
		"error", err,
		"output", strings.TrimSpace(stdout.String()),
	}
	if split {
		attrs = append(attrs, "stderr", strings.TrimSpace(stderr.String()))
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		attrs = append(attrs, "exitCode", exitErr.ExitCode())
	}
	if ctx.Err() != nil {
		attrs = append(attrs, "contextError", ctx.Err())
	}
	logger.Error("Command failed", attrs...)
	return stdout.String(), false
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
