package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/cAbhi15/fink-client/internal/cmd/base"
	"github.com/cAbhi15/fink-client/internal/cmd/commands/deps"
	"github.com/cAbhi15/fink-client/internal/cmd/commands/report"
	"github.com/cAbhi15/fink-client/internal/cmd/commands/run"
	versioncmd "github.com/cAbhi15/fink-client/internal/cmd/commands/version"
)

// Commands is the mapping of all available CLI commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	baseCommand := &base.Command{
		UI:  ui,
		Log: log,
	}

	Commands = map[string]cli.CommandFactory{
		"run": func() (cli.Command, error) {
			return &run.Command{Command: baseCommand}, nil
		},
		"deps": func() (cli.Command, error) {
			return &deps.Command{Command: baseCommand}, nil
		},
		"deps up": func() (cli.Command, error) {
			return &deps.UpCommand{Command: baseCommand}, nil
		},
		"deps down": func() (cli.Command, error) {
			return &deps.DownCommand{Command: baseCommand}, nil
		},
		"deps status": func() (cli.Command, error) {
			return &deps.StatusCommand{Command: baseCommand}, nil
		},
		"report": func() (cli.Command, error) {
			return &report.Command{Command: baseCommand}, nil
		},
		"version": func() (cli.Command, error) {
			return &versioncmd.Command{Command: baseCommand}, nil
		},
	}
}
