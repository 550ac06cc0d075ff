package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/arkivsog/bogsog/internal/cmd/base"
	"github.com/arkivsog/bogsog/internal/cmd/commands/ingest"
	"github.com/arkivsog/bogsog/internal/cmd/commands/server"
	versioncmd "github.com/arkivsog/bogsog/internal/cmd/commands/version"
)

// Commands is the mapping of all available CLI commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	baseCommand := &base.Command{
		UI:  ui,
		Log: log,
	}

	Commands = map[string]cli.CommandFactory{
		"server": func() (cli.Command, error) {
			return &server.Command{Command: baseCommand}, nil
		},
		"ingest": func() (cli.Command, error) {
			return &ingest.Command{Command: baseCommand}, nil
		},
		"version": func() (cli.Command, error) {
			return &versioncmd.Command{Command: baseCommand}, nil
		},
	}
}
