package version

import (
	"github.com/cAbhi15/fink-client/internal/cmd/base"
	buildinfo "github.com/cAbhi15/fink-client/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the harness version"
}

func (c *Command) Help() string {
	return `Usage: fink-harness version

  Prints the version of this fink-harness build.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output("fink-harness " + buildinfo.Version)
	return 0
}
