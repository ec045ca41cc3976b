// ./main.go
package main

import (
	"github.com/deskmate-tools/deskmate-cli/cmd"
)

// main is the entry point for the deskmate CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
