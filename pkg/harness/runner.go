package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/alessio/shellescape"
	"github.com/hashicorp/go-hclog"
)

// TestResult describes how the test command ended.
type TestResult struct {
	// ExitCode is the command's exit code, -1 when it was killed.
	ExitCode int

	// Duration is how long the command ran.
	Duration time.Duration

	// TimedOut reports whether the command was killed because it
	// exceeded the configured timeout.
	TimedOut bool
}

// RunnerConfig holds configuration for a Runner.
type RunnerConfig struct {
	// Command is the test command argv. Required.
	Command []string

	// Dir is the working directory the command runs in.
	Dir string

	// Env adds environment variables to the child. Entries here override
	// inherited and injected variables of the same name.
	Env map[string]string

	// Timeout kills the command when it runs longer. Zero means no
	// timeout.
	Timeout time.Duration

	// CoverDir, when set, is exported to the child as GOCOVERDIR and
	// FINK_COVERDIR so the suite can drop coverage profiles there. How
	// the suite instruments itself is its own business.
	CoverDir string

	// Stdout and Stderr receive the child's output unmodified. They
	// default to the process's own streams.
	Stdout io.Writer
	Stderr io.Writer

	Logger hclog.Logger
}

// Runner executes the test command.
type Runner struct {
	command  []string
	dir      string
	env      map[string]string
	timeout  time.Duration
	coverDir string
	stdout   io.Writer
	stderr   io.Writer
	logger   hclog.Logger
}

// NewRunner validates cfg and returns a ready Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("test command is required")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Runner{
		command:  cfg.Command,
		dir:      cfg.Dir,
		env:      cfg.Env,
		timeout:  cfg.Timeout,
		coverDir: cfg.CoverDir,
		stdout:   cfg.Stdout,
		stderr:   cfg.Stderr,
		logger:   cfg.Logger.Named("runner"),
	}, nil
}

// Run executes the test command and reports how it ended. A non-nil
// error means the command could not run at all; a command that ran and
// failed comes back with a nil error and a non-zero ExitCode.
func (r *Runner) Run(ctx context.Context) (*TestResult, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.command[0], r.command[1:]...)
	cmd.Dir = r.dir
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Env = os.Environ()
	if r.coverDir != "" {
		cmd.Env = append(cmd.Env,
			"GOCOVERDIR="+r.coverDir,
			"FINK_COVERDIR="+r.coverDir,
		)
	}
	for k, v := range r.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	r.logger.Info("running test command",
		"command", shellescape.QuoteCommand(r.command),
		"dir", r.dir,
	)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting test command %s: %w", r.command[0], err)
	}

	waitErr := cmd.Wait()
	result := &TestResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(started),
		TimedOut: r.timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("waiting for test command: %w", waitErr)
		}
	}

	r.logger.Info("test command finished",
		"exit_code", result.ExitCode,
		"duration", result.Duration,
		"timed_out", result.TimedOut,
	)
	return result, nil
}
