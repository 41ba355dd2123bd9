// Package report implements the standalone coverage command: merge the
// profiles a previous run accumulated and print the summary table
// without touching containers or running tests.
package report

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cAbhi15/fink-client/internal/cmd/base"
	"github.com/cAbhi15/fink-client/internal/config"
	"github.com/cAbhi15/fink-client/pkg/coverage"
)

type Command struct {
	*base.Command

	flagConfig string
	flagDir    string
}

func (c *Command) Synopsis() string {
	return "Merge accumulated coverage profiles and print the report"
}

func (c *Command) Help() string {
	return `Usage: fink-harness report

  Merges the coverage profiles accumulated by instrumented test runs
  and prints the per-file summary table. The combined profile is also
  written next to the inputs for downstream tooling.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("report", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to a harness HCL configuration file.",
	)
	f.StringVar(
		&c.flagDir, "dir", "",
		"Coverage directory to scan, overriding the configured one.",
	)

	return f
}

func (c *Command) Run(args []string) int {
	logger, ui := c.Log, c.UI

	// Parse flags.
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	// An explicit -dir stands on its own and needs no configuration;
	// otherwise the coverage block comes from the configuration.
	dir := c.flagDir
	pattern := coverage.DefaultPattern
	out := ""
	if dir == "" {
		cfg, err := loadConfig(c.flagConfig)
		if err != nil {
			ui.Error(fmt.Sprintf("error loading configuration: %v", err))
			return 1
		}
		if cfg.Coverage.Disabled {
			ui.Error("coverage is disabled in this configuration")
			return 1
		}
		dir = cfg.Coverage.Dir
		pattern = cfg.Coverage.Pattern
		out = cfg.Coverage.Out
	}
	if out == "" {
		out = filepath.Join(dir, "merged", "combined.cov")
	}

	reporter, err := coverage.NewReporter(coverage.Config{
		Dir:     dir,
		Pattern: pattern,
		Out:     out,
		Logger:  logger,
	})
	if err != nil {
		ui.Error(fmt.Sprintf("error configuring coverage reporting: %v", err))
		return 1
	}

	summary, err := reporter.Merge()
	if err != nil {
		if errors.Is(err, coverage.ErrNoData) {
			ui.Error(fmt.Sprintf("no coverage data: %v", err))
		} else {
			ui.Error(fmt.Sprintf("error merging coverage profiles: %v", err))
		}
		return 1
	}

	reporter.Print(os.Stdout, summary)
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.FromEnv()
}
