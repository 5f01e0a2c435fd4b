// Command multiportd runs the multiport accept/dispatch runtime as a
// standalone process, driven by a YAML configuration file.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/multiport/cmd/multiportd/commands"
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
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
