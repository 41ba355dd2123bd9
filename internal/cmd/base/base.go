// Package base carries the pieces shared by every CLI command: the
// terminal UI, the root logger and a flag set wrapper that renders the
// option block for help output.
package base

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded by every CLI command.
type Command struct {
	// UI is the command line UI for input and output.
	UI cli.Ui

	// Log is the root logger.
	Log hclog.Logger
}
