// Package cmd dispatches the CLI subcommands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/arkivsog/bogsog/internal/version"
)

// Main runs the CLI with the given arguments and returns the exit
// code. -v and -version are handled by the CLI itself.
func Main(args []string) int {
	cliName := filepath.Base(args[0])

	log := hclog.New(&hclog.LoggerOptions{
		Name: cliName,
	})

	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	initCommands(log, ui)

	// A bare invocation starts the API server.
	runArgs := args[1:]
	if len(runArgs) == 0 {
		runArgs = []string{"server"}
	}

	c := &cli.CLI{
		Name:     cliName,
		Args:     runArgs,
		Version:  version.Version,
		Commands: Commands,
	}

	exitCode, err := c.Run()
	if err != nil {
		ui.Error(fmt.Sprintf("error running command: %v", err))
		return 1
	}
	return exitCode
}
