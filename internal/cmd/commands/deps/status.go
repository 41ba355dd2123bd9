package deps

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/cAbhi15/fink-client/internal/cmd/base"
	"github.com/cAbhi15/fink-client/pkg/compose"
)

type StatusCommand struct {
	*base.Command

	flagConfig string
}

func (c *StatusCommand) Synopsis() string {
	return "Show the state of the dependency group"
}

func (c *StatusCommand) Help() string {
	return `Usage: fink-harness deps status

  Lists the dependency group's containers as reported by the Docker
  engine, with their compose service, state and health.` + c.Flags().Help()
}

func (c *StatusCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("deps status", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to a harness HCL configuration file.",
	)

	return f
}

func (c *StatusCommand) Run(args []string) int {
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

	ins, err := compose.NewInspector(logger)
	if err != nil {
		ui.Error(fmt.Sprintf("error connecting to docker engine: %v", err))
		return 1
	}
	defer ins.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	states, err := ins.Containers(ctx, cfg.Project)
	if err != nil {
		ui.Error(fmt.Sprintf("error listing containers: %v", err))
		return 1
	}

	if len(states) == 0 {
		ui.Info(fmt.Sprintf("No containers found for project %q", cfg.Project))
		return 0
	}

	running := 0
	for _, s := range states {
		ui.Output(fmt.Sprintf("%-24s %-16s %-10s %s",
			s.Name, s.Service, stateCell(s), s.Health))
		if s.Running() {
			running++
		}
	}
	ui.Output("")
	ui.Info(fmt.Sprintf("%d/%d containers running", running, len(states)))

	return 0
}

func stateCell(s compose.ContainerState) string {
	if s.Running() {
		return color.GreenString(s.State)
	}
	return color.RedString(s.State)
}
