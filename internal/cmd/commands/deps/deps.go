// Package deps contains operator commands for managing the dependency
// group on its own: start it, tear it down or inspect it without
// running the test suite. Useful when debugging a failing run.
package deps

import (
	"github.com/mitchellh/cli"

	"github.com/cAbhi15/fink-client/internal/cmd/base"
	"github.com/cAbhi15/fink-client/internal/config"
	"github.com/cAbhi15/fink-client/pkg/compose"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Manage the integration dependency group"
}

func (c *Command) Help() string {
	return `Usage: fink-harness deps <subcommand> [options]

  This command groups subcommands for starting, tearing down and
  inspecting the Kafka dependency group without running the tests.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

// loadConfig resolves the shared -config flag the same way the run
// command does: explicit file first, FINK_CLIENT_HOME otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.FromEnv()
}

func newProject(cfg *config.Config, c *base.Command) (*compose.Project, error) {
	return compose.New(compose.Config{
		Name:        cfg.Project,
		File:        cfg.Compose.File,
		Command:     cfg.Compose.Command,
		Env:         cfg.Compose.Env,
		StopTimeout: cfg.StopTimeout,
		Logger:      c.Log,
	})
}
