package deps

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cAbhi15/fink-client/internal/cmd/base"
	"github.com/cAbhi15/fink-client/pkg/probe"
)

type UpCommand struct {
	*base.Command

	flagConfig string
	flagNoWait bool
}

func (c *UpCommand) Synopsis() string {
	return "Start the dependency group and wait for readiness"
}

func (c *UpCommand) Help() string {
	return `Usage: fink-harness deps up

  Starts the Kafka dependency group under the harness project namespace
  and waits until the readiness probes pass. The group stays up until
  'deps down' removes it.` + c.Flags().Help()
}

func (c *UpCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("deps up", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"Path to a harness HCL configuration file.",
	)
	f.BoolVar(
		&c.flagNoWait, "no-wait", false,
		"Return as soon as compose up finishes, without readiness probes.",
	)

	return f
}

func (c *UpCommand) Run(args []string) int {
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

	upCtx, upCancel := context.WithTimeout(ctx, cfg.StartTimeout)
	defer upCancel()

	ui.Info(fmt.Sprintf("Starting dependency group %q", cfg.Project))
	if err := project.Up(upCtx); err != nil {
		ui.Error(fmt.Sprintf("error starting dependency group: %v", err))
		return 1
	}

	if !c.flagNoWait {
		if err := probe.Wait(ctx, logger, cfg.ReadyTimeout, cfg.Probers()...); err != nil {
			ui.Error(fmt.Sprintf("error waiting for readiness: %v", err))
			return 1
		}
	}

	ui.Info("Dependency group is up")
	return 0
}
