// Package run implements the primary harness command: bring the Kafka
// dependency group up, run the integration suite under coverage
// instrumentation, always tear the group down, then report.
package run

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/cAbhi15/fink-client/internal/cmd/base"
	"github.com/cAbhi15/fink-client/internal/config"
	"github.com/cAbhi15/fink-client/pkg/compose"
	"github.com/cAbhi15/fink-client/pkg/coverage"
	"github.com/cAbhi15/fink-client/pkg/harness"
	"github.com/cAbhi15/fink-client/pkg/seed"
)

type Command struct {
	*base.Command

	flagConfig string
	flagNoSeed bool
}

func (c *Command) Synopsis() string {
	return "Run the integration suite against a managed dependency group"
}

func (c *Command) Help() string {
	return `Usage: fink-harness run

  Starts the Kafka dependency group, waits for it to become ready, runs
  the integration test suite under coverage instrumentation, always
  tears the group down, then merges and reports coverage.

  With no -config flag the harness derives everything from the
  FINK_CLIENT_HOME environment variable: the compose file, the test
  command, the fixture directory and the coverage directory all live
  under that checkout.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("run", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to a harness HCL configuration file.",
	)
	f.BoolVar(
		&c.flagNoSeed, "no-seed", false,
		"Skip publishing alert fixtures before the test run.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	// Parse flags.
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return harness.StatusInfraError.ExitCode()
	}

	// Load configuration. This is where a missing FINK_CLIENT_HOME
	// fails, before anything touches the container runtime.
	cfg, err := c.loadConfig()
	if err != nil {
		ui.Error(fmt.Sprintf("error loading configuration: %v", err))
		return harness.StatusInfraError.ExitCode()
	}
	if c.flagNoSeed {
		cfg.Fixtures = nil
	}

	// A signal cancels the run context. Teardown still happens: the
	// harness runs it on its own context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h, cleanup, err := c.buildHarness(cfg)
	if err != nil {
		ui.Error(err.Error())
		return harness.StatusInfraError.ExitCode()
	}
	defer cleanup()

	res := h.Run(ctx)
	c.printVerdict(res)
	return res.ExitCode()
}

func (c *Command) loadConfig() (*config.Config, error) {
	if c.flagConfig != "" {
		return config.FromFile(c.flagConfig)
	}
	return config.FromEnv()
}

// buildHarness assembles the run pipeline from the configuration. The
// returned cleanup releases the engine API connection.
func (c *Command) buildHarness(cfg *config.Config) (*harness.Harness, func(), error) {
	logger := c.Log
	cleanup := func() {}

	project, err := compose.New(compose.Config{
		Name:        cfg.Project,
		File:        cfg.Compose.File,
		Command:     cfg.Compose.Command,
		Env:         cfg.Compose.Env,
		StopTimeout: cfg.StopTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("error configuring compose project: %w", err)
	}

	// Service names from the manifest drive already-running detection.
	// A manifest that cannot be read is not fatal here: compose up will
	// surface the real error as an infrastructure failure.
	var services []string
	if manifest, err := compose.LoadManifest(afero.NewOsFs(), cfg.Compose.File); err != nil {
		logger.Warn("could not read compose manifest", "error", err)
	} else {
		services = manifest.ServiceNames()
	}

	var inspector harness.StateInspector
	if ins, err := compose.NewInspector(logger); err != nil {
		logger.Warn("docker engine api unavailable, skipping state inspection",
			"error", err)
	} else {
		inspector = ins
		cleanup = func() { _ = ins.Close() }
	}

	var seeder harness.FixtureSeeder
	if cfg.Fixtures != nil {
		s, err := seed.New(seed.Config{
			Brokers:    cfg.Fixtures.Brokers,
			Dir:        cfg.Fixtures.Dir,
			Pattern:    cfg.Fixtures.Pattern,
			Topic:      cfg.Fixtures.Topic,
			TopicField: cfg.Fixtures.TopicField,
			Logger:     logger,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("error configuring fixture seeding: %w", err)
		}
		seeder = s
	}

	coverDir := ""
	if !cfg.Coverage.Disabled {
		coverDir = cfg.Coverage.Dir
	}
	runner, err := harness.NewRunner(harness.RunnerConfig{
		Command:  cfg.Test.Command,
		Dir:      cfg.Test.Dir,
		Env:      cfg.Test.Env,
		Timeout:  cfg.TestTimeout,
		CoverDir: coverDir,
		Logger:   logger,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("error configuring test runner: %w", err)
	}

	var reporter harness.CoverageReporter
	if !cfg.Coverage.Disabled {
		rep, err := coverage.NewReporter(coverage.Config{
			Dir:     cfg.Coverage.Dir,
			Pattern: cfg.Coverage.Pattern,
			Out:     cfg.Coverage.Out,
			Logger:  logger,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("error configuring coverage reporting: %w", err)
		}
		reporter = rep
	}

	h, err := harness.New(harness.Config{
		Compose:         project,
		Services:        services,
		Inspector:       inspector,
		Probes:          cfg.Probers(),
		StartTimeout:    cfg.StartTimeout,
		ReadyTimeout:    cfg.ReadyTimeout,
		TeardownTimeout: cfg.TeardownTimeout,
		Seeder:          seeder,
		Runner:          runner,
		Coverage:        reporter,
		ReportTo:        os.Stdout,
		Logger:          logger,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("error building harness: %w", err)
	}
	return h, cleanup, nil
}

func (c *Command) printVerdict(res *harness.Result) {
	d := res.Duration().Round(time.Millisecond)

	switch res.Status {
	case harness.StatusPassed:
		c.UI.Info(fmt.Sprintf("%s in %s", color.GreenString("PASSED"), d))
	case harness.StatusReportError:
		c.UI.Warn(fmt.Sprintf("%s in %s: %s",
			color.YellowString("REPORT ERROR"), d, res.Reason))
	case harness.StatusFailed:
		c.UI.Error(fmt.Sprintf("%s in %s: %s",
			color.RedString("FAILED"), d, res.Reason))
	default:
		c.UI.Error(fmt.Sprintf("%s in %s: %s",
			color.RedString("INFRASTRUCTURE ERROR"), d, res.Reason))
	}

	if res.TeardownErr != nil {
		c.UI.Warn(fmt.Sprintf("teardown failed: %v", res.TeardownErr))
	}
}
