// Command confd runs the configuration datastore broker: see
// cmd/confd/commands for the start/init/version subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/confd-io/confd/cmd/confd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
