// Command nucleus compiles, runs and verifies declarative state programs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/nucleus/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
