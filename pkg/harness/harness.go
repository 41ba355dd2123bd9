// Package harness orchestrates one integration run: bring up the
// containerized dependency group, wait until it is ready, seed alert
// fixtures, run the test suite under coverage instrumentation, tear the
// group down no matter what happened before, and only then report
// coverage.
package harness

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/cAbhi15/fink-client/pkg/compose"
	"github.com/cAbhi15/fink-client/pkg/coverage"
	"github.com/cAbhi15/fink-client/pkg/probe"
	"github.com/cAbhi15/fink-client/pkg/seed"
)

const (
	// DefaultReadyTimeout bounds the readiness probes after the group
	// comes up.
	DefaultReadyTimeout = 2 * time.Minute

	// DefaultTeardownTimeout bounds teardown, which runs on its own
	// context so a cancelled run cannot skip cleanup.
	DefaultTeardownTimeout = 3 * time.Minute
)

// ComposeProject is the slice of pkg/compose the harness drives.
type ComposeProject interface {
	Name() string
	Up(ctx context.Context) error
	Down(ctx context.Context) error
}

// StateInspector reports container state for the project namespace.
type StateInspector interface {
	Containers(ctx context.Context, project string) ([]compose.ContainerState, error)
	AllRunning(ctx context.Context, project string, services []string) (bool, error)
}

// FixtureSeeder publishes alert fixtures once the group is ready.
type FixtureSeeder interface {
	Publish(ctx context.Context) (*seed.Report, error)
}

// TestRunner executes the test suite.
type TestRunner interface {
	Run(ctx context.Context) (*TestResult, error)
}

// CoverageReporter merges coverage profiles and prints the summary.
type CoverageReporter interface {
	Merge() (*coverage.Summary, error)
	Print(w io.Writer, s *coverage.Summary)
}

// Config holds the components a Harness drives.
type Config struct {
	// Compose manages the dependency group. Required.
	Compose ComposeProject

	// Services lists the group's service names, used to decide whether
	// the group is already running.
	Services []string

	// Inspector looks at container state before start and after
	// teardown. Optional; without it already-running detection and
	// leftover verification are skipped.
	Inspector StateInspector

	// Probes gate the test run on group readiness.
	Probes []probe.Prober

	// StartTimeout bounds the compose up call. Zero means no bound
	// beyond the run context.
	StartTimeout time.Duration

	// ReadyTimeout bounds the probes. Defaults to DefaultReadyTimeout.
	ReadyTimeout time.Duration

	// TeardownTimeout bounds teardown. Defaults to
	// DefaultTeardownTimeout.
	TeardownTimeout time.Duration

	// Seeder publishes alert fixtures before the tests run. Optional.
	Seeder FixtureSeeder

	// Runner executes the test suite. Required.
	Runner TestRunner

	// Coverage merges and prints the post-run report. Optional; without
	// it the run produces no report.
	Coverage CoverageReporter

	// ReportTo receives the printed coverage table. Defaults to stdout.
	ReportTo io.Writer

	Logger hclog.Logger
}

// Harness runs the integration pipeline.
type Harness struct {
	compose         ComposeProject
	services        []string
	inspector       StateInspector
	probes          []probe.Prober
	startTimeout    time.Duration
	readyTimeout    time.Duration
	teardownTimeout time.Duration
	seeder          FixtureSeeder
	runner          TestRunner
	coverage        CoverageReporter
	reportTo        io.Writer
	logger          hclog.Logger
}

// New validates cfg and returns a ready Harness.
func New(cfg Config) (*Harness, error) {
	if cfg.Compose == nil {
		return nil, fmt.Errorf("compose project is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("test runner is required")
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.TeardownTimeout == 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}
	if cfg.ReportTo == nil {
		cfg.ReportTo = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Harness{
		compose:         cfg.Compose,
		services:        cfg.Services,
		inspector:       cfg.Inspector,
		probes:          cfg.Probes,
		startTimeout:    cfg.StartTimeout,
		readyTimeout:    cfg.ReadyTimeout,
		teardownTimeout: cfg.TeardownTimeout,
		seeder:          cfg.Seeder,
		runner:          cfg.Runner,
		coverage:        cfg.Coverage,
		reportTo:        cfg.ReportTo,
		logger:          cfg.Logger.Named("harness"),
	}, nil
}

// Run executes one integration run and always returns a Result; the
// Result's ExitCode carries the process exit contract. Teardown runs
// exactly once regardless of which earlier phase failed, and the
// coverage report is produced strictly after teardown.
func (h *Harness) Run(ctx context.Context) *Result {
	res := &Result{
		RunID:        uuid.New(),
		Status:       StatusPassed,
		TestExitCode: -1,
		Started:      time.Now(),
	}
	h.logger.Info("starting integration run",
		"run_id", res.RunID,
		"project", h.compose.Name(),
	)

	var downOnce sync.Once
	teardown := func() {
		downOnce.Do(func() { h.teardown(res) })
	}
	defer teardown()

	if h.start(ctx, res) {
		h.runTests(ctx, res)
	}

	teardown()
	h.report(res)

	res.Finished = time.Now()
	h.logger.Info("integration run finished",
		"run_id", res.RunID,
		"status", res.Status.String(),
		"duration", res.Duration().Round(time.Millisecond),
	)
	return res
}

// start brings the group up and waits until it is ready to test
// against. It reports whether the run may proceed to the test phase.
func (h *Harness) start(ctx context.Context, res *Result) bool {
	skipUp := false
	if h.inspector != nil && len(h.services) > 0 {
		running, err := h.inspector.AllRunning(ctx, h.compose.Name(), h.services)
		switch {
		case err != nil:
			h.logger.Debug("could not inspect existing containers", "error", err)
		case running:
			h.logger.Info("dependency group already running, skipping start",
				"project", h.compose.Name())
			skipUp = true
		}
	}

	if !skipUp {
		upCtx := ctx
		if h.startTimeout > 0 {
			var cancel context.CancelFunc
			upCtx, cancel = context.WithTimeout(ctx, h.startTimeout)
			defer cancel()
		}
		h.logger.Info("starting dependency group", "project", h.compose.Name())
		if err := h.compose.Up(upCtx); err != nil {
			res.record(StatusInfraError, fmt.Sprintf("starting dependency group: %s", err))
			h.logger.Error("dependency group failed to start", "error", err)
			return false
		}
	}

	if err := probe.Wait(ctx, h.logger, h.readyTimeout, h.probes...); err != nil {
		res.record(StatusInfraError, fmt.Sprintf("waiting for dependency group: %s", err))
		h.logger.Error("dependency group never became ready", "error", err)
		return false
	}

	if h.seeder != nil {
		report, err := h.seeder.Publish(ctx)
		if err != nil {
			res.record(StatusInfraError, fmt.Sprintf("seeding alert fixtures: %s", err))
			h.logger.Error("fixture seeding failed", "error", err)
			return false
		}
		h.logger.Info("seeded alert fixtures",
			"fixtures", report.Published,
			"topics", report.Topics,
		)
	}

	return true
}

func (h *Harness) runTests(ctx context.Context, res *Result) {
	tr, err := h.runner.Run(ctx)
	if err != nil {
		res.record(StatusInfraError, fmt.Sprintf("running test command: %s", err))
		h.logger.Error("test command could not run", "error", err)
		return
	}

	res.TestExitCode = tr.ExitCode
	switch {
	case tr.TimedOut:
		res.record(StatusFailed, fmt.Sprintf("test suite exceeded its timeout after %s",
			tr.Duration.Round(time.Second)))
	case tr.ExitCode != 0:
		res.record(StatusFailed, fmt.Sprintf("test suite exited with code %d", tr.ExitCode))
	default:
		h.logger.Info("test suite passed", "duration", tr.Duration.Round(time.Millisecond))
	}
}

// teardown stops and removes the group. It runs on a fresh context so a
// cancelled or expired run context cannot skip cleanup. Failures are
// logged and recorded on the Result but never change its status.
func (h *Harness) teardown(res *Result) {
	ctx, cancel := context.WithTimeout(context.Background(), h.teardownTimeout)
	defer cancel()

	h.logger.Info("tearing down dependency group", "project", h.compose.Name())

	var errs *multierror.Error
	if err := h.compose.Down(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}

	if h.inspector != nil {
		leftovers, err := h.inspector.Containers(ctx, h.compose.Name())
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("checking for leftover containers: %w", err))
		} else if len(leftovers) > 0 {
			names := make([]string, 0, len(leftovers))
			for _, c := range leftovers {
				names = append(names, c.Name)
			}
			errs = multierror.Append(errs, fmt.Errorf("containers left behind after down: %s",
				strings.Join(names, ", ")))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		res.TeardownErr = err
		h.logger.Error("teardown did not complete cleanly", "error", err)
	}
}

// report merges coverage and prints the summary. Only a run that still
// stands as passed can be downgraded by a report failure.
func (h *Harness) report(res *Result) {
	if h.coverage == nil {
		return
	}

	summary, err := h.coverage.Merge()
	if err != nil {
		res.record(StatusReportError, fmt.Sprintf("merging coverage data: %s", err))
		h.logger.Error("coverage report failed", "error", err)
		return
	}

	res.Coverage = summary
	h.coverage.Print(h.reportTo, summary)
}
