// fink-harness orchestrates the fink-client integration suite: it
// manages the Kafka dependency group, runs the tests under coverage
// instrumentation and reports the merged result.
package main

import (
	"os"

	"github.com/cAbhi15/fink-client/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
