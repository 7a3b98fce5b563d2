package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Result is the outcome of a completed command.
type Result struct {
	Command    string        `json:"command"`
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	TimedOut   bool          `json:"timed_out"`
}

// Runner executes shell commands on behalf of the remote-execution
// endpoints. Every run is bounded by a timeout; there is no unbounded
// execution path.
type Runner struct {
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	logger         *slog.Logger
}

func New(defaultTimeout, maxTimeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
		logger:         logger,
	}
}

// clampTimeout resolves the effective timeout for one run.
func (r *Runner) clampTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return r.defaultTimeout
	}
	if requested > r.maxTimeout {
		return r.maxTimeout
	}
	return requested
}

// Run executes a command through the shell and captures its output.
func (r *Runner) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	effective := r.clampTimeout(timeout)
	runCtx, cancel := context.WithTimeout(ctx, effective)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := &Result{
		Command:    command,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Duration:   elapsed,
		DurationMS: elapsed.Milliseconds(),
		TimedOut:   errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else if !result.TimedOut {
			return nil, fmt.Errorf("failed to start command: %w", err)
		}
	}
	if result.TimedOut {
		result.ExitCode = -1
	}

	r.logger.Info("command executed",
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", elapsed),
		slog.Bool("timed_out", result.TimedOut))
	return result, nil
}

// Stream executes a command and sends combined output line by line on the
// returned channel. The channel closes when the command finishes; the final
// Result is delivered on the second channel.
func (r *Runner) Stream(ctx context.Context, command string, timeout time.Duration) (<-chan string, <-chan *Result, error) {
	effective := r.clampTimeout(timeout)
	runCtx, cancel := context.WithTimeout(ctx, effective)

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start command: %w", err)
	}

	lines := make(chan string, 64)
	done := make(chan *Result, 1)
	start := time.Now()

	go func() {
		defer cancel()
		defer close(lines)
		defer close(done)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-runCtx.Done():
			}
		}

		err := cmd.Wait()
		elapsed := time.Since(start)
		result := &Result{
			Command:    command,
			Duration:   elapsed,
			DurationMS: elapsed.Milliseconds(),
			TimedOut:   errors.Is(runCtx.Err(), context.DeadlineExceeded),
		}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitCode()
			} else {
				result.ExitCode = -1
			}
		}
		if result.TimedOut {
			result.ExitCode = -1
		}

		r.logger.Info("streamed command finished",
			slog.Int("exit_code", result.ExitCode),
			slog.Duration("duration", elapsed),
			slog.Bool("timed_out", result.TimedOut))
		done <- result
	}()

	return lines, done, nil
}
