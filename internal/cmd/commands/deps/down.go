package deps

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cAbhi15/fink-client/internal/cmd/base"
	"github.com/cAbhi15/fink-client/pkg/compose"
)

type DownCommand struct {
	*base.Command

	flagConfig string
	flagKeep   bool
}

func (c *DownCommand) Synopsis() string {
	return "Tear down the dependency group"
}

func (c *DownCommand) Help() string {
	return `Usage: fink-harness deps down

  Stops and removes the dependency group's containers, networks and
  volumes. Running it against an absent group is a no-op, so it is safe
  to call after a partially failed run.` + c.Flags().Help()
}

func (c *DownCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("deps down", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to a harness HCL configuration file.",
	)
	f.BoolVar(
		&c.flagKeep, "keep", false,
		"Stop the containers but keep them, so 'deps up' resumes with state intact.",
	)

	return f
}

func (c *DownCommand) Run(args []string) int {
	logger, ui := c.Log, c.UI

	// Parse flags.
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := loadConfig(c.flagConfig)
	if err != nil {
		ui.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	project, err := newProject(cfg, c.Command)
	if err != nil {
		ui.Error(fmt.Sprintf("error configuring compose project: %v", err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	downCtx, downCancel := context.WithTimeout(ctx, cfg.TeardownTimeout)
	defer downCancel()

	if c.flagKeep {
		ui.Info(fmt.Sprintf("Stopping dependency group %q", cfg.Project))
		if err := project.Stop(downCtx); err != nil {
			ui.Error(fmt.Sprintf("error stopping dependency group: %v", err))
			return 1
		}
		ui.Info("Dependency group stopped, containers kept")
		return 0
	}

	ui.Info(fmt.Sprintf("Tearing down dependency group %q", cfg.Project))
	if err := project.Down(downCtx); err != nil {
		ui.Error(fmt.Sprintf("error tearing down dependency group: %v", err))
		return 1
	}

	// Confirm nothing is left behind when the engine API is reachable.
	if ins, err := compose.NewInspector(logger); err == nil {
		defer ins.Close()
		if states, err := ins.Containers(downCtx, cfg.Project); err == nil && len(states) > 0 {
			names := make([]string, 0, len(states))
			for _, s := range states {
				names = append(names, s.Name)
			}
			ui.Warn(fmt.Sprintf("containers left behind: %s", strings.Join(names, ", ")))
			return 1
		}
	}

	ui.Info("Dependency group removed")
	return 0
}
