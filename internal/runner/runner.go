// Package runner executes local read-only commands with timeout and retry.
package runner

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/m0rik/panenap/internal/config"
)

type RunResult struct {
	Output   string
	Duration time.Duration
}

// Runner executes a local command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Executor wraps a Runner with the configured per-command timeout and retry
// backoff. Every command it runs is a read-only query (ps, tmux list-panes),
// so retrying is always safe.
type Executor struct {
	cfg    config.Config
	runner Runner
}

func NewExecutor(cfg config.Config) *Executor {
	return &Executor{cfg: cfg, runner: OSRunner{}}
}

func NewExecutorWithRunner(cfg config.Config, runner Runner) *Executor {
	e := NewExecutor(cfg)
	e.runner = runner
	return e
}

func (e *Executor) Run(ctx context.Context, name string, args ...string) (RunResult, error) {
	maxAttempts := 1 + len(e.cfg.RetryBackoff)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		runCtx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
		out, err := e.runner.Run(runCtx, name, args...)
		cancel()
		if err == nil {
			return RunResult{Output: string(out), Duration: time.Since(start)}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return RunResult{}, ctx.Err()
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return RunResult{}, ctx.Err()
			case <-time.After(e.cfg.RetryBackoff[attempt-1]):
			}
		}
	}
	return RunResult{}, fmt.Errorf("run %s: %w", name, lastErr)
}
