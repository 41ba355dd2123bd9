// Package compose manages the lifecycle of a named Docker Compose project:
// starting and tearing down the service group through the compose CLI and
// inspecting the engine-side state of the project's containers.
//
// The container runtime is always invoked, never reimplemented. Lifecycle
// operations shell out to the compose plugin; state queries go through the
// Docker Engine API using the labels compose stamps on every container it
// creates.
package compose

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/hashicorp/go-hclog"
)

// defaultStopTimeout bounds graceful container shutdown on Down and Stop.
const defaultStopTimeout = 30 * time.Second

// DefaultCommand is the compose invocation used when none is configured.
// Modern Docker ships compose as a CLI plugin rather than the legacy
// docker-compose binary.
var DefaultCommand = []string{"docker", "compose"}

// Config holds configuration for a compose project.
type Config struct {
	// Name is the compose project name. Every container started for the
	// project carries it in the com.docker.compose.project label, which is
	// what scopes teardown and state inspection to this group.
	Name string

	// File is the path to the compose file.
	File string

	// Dir is the working directory for compose commands. Relative paths in
	// the compose file resolve against it. Defaults to the directory
	// containing File.
	Dir string

	// Command overrides the compose invocation (optional).
	Command []string

	// Env is appended to the inherited environment of every compose
	// command, for variable substitution in the compose file (optional).
	Env map[string]string

	// StopTimeout bounds graceful shutdown on Down and Stop (optional).
	StopTimeout time.Duration

	// Logger (optional).
	Logger hclog.Logger
}

// Project manages one named Docker Compose project.
type Project struct {
	name        string
	file        string
	dir         string
	command     []string
	env         map[string]string
	stopTimeout time.Duration
	logger      hclog.Logger
}

// New creates a Project from the given configuration.
func New(cfg Config) (*Project, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if cfg.File == "" {
		return nil, fmt.Errorf("compose file is required")
	}
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCommand
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Dir(cfg.File)
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Project{
		name:        cfg.Name,
		file:        cfg.File,
		dir:         cfg.Dir,
		command:     cfg.Command,
		env:         cfg.Env,
		stopTimeout: cfg.StopTimeout,
		logger:      cfg.Logger.Named("compose"),
	}, nil
}

// Name returns the compose project name.
func (p *Project) Name() string {
	return p.name
}

// File returns the compose file path.
func (p *Project) File() string {
	return p.file
}

// Up starts the project detached. It blocks until compose has created and
// started every container, not until the services are usable; readiness is
// the caller's concern.
func (p *Project) Up(ctx context.Context) error {
	return p.run(ctx, "up", "-d")
}

// Down stops and removes the project's containers and networks, dropping
// named and anonymous volumes along with any orphans left behind by
// earlier compose file revisions. Down on an absent project is a no-op for
// compose, which keeps teardown idempotent.
func (p *Project) Down(ctx context.Context) error {
	return p.run(ctx, "down", "--volumes", "--remove-orphans",
		"--timeout", p.stopTimeoutSeconds())
}

// Stop stops the project's containers without removing them, so the group
// can be restarted with Up and keep its state.
func (p *Project) Stop(ctx context.Context) error {
	return p.run(ctx, "stop", "--timeout", p.stopTimeoutSeconds())
}

func (p *Project) stopTimeoutSeconds() string {
	return strconv.Itoa(int(p.stopTimeout.Seconds()))
}

// run executes one compose command with the project name and file pinned.
func (p *Project) run(ctx context.Context, args ...string) error {
	argv := append([]string{}, p.command...)
	argv = append(argv, "-p", p.name, "-f", p.file)
	argv = append(argv, args...)

	p.logger.Debug("running compose command",
		"cmd", shellescape.QuoteCommand(argv))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = p.dir
	cmd.Env = os.Environ()
	for k, v := range p.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		p.logger.Debug("compose output",
			"output", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("compose %s failed for project %q: %s: %w",
			args[0], p.name, strings.TrimSpace(string(out)), err)
	}

	return nil
}
