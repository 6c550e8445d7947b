package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/laundrycycle/cmd/laundrycycle/commands"
	foundationerrors "git.home.luguber.info/inful/laundrycycle/internal/foundation/errors"
	"git.home.luguber.info/inful/laundrycycle/internal/version"
)

func main() {
	var cli commands.CLI
	global := commands.NewGlobal(os.Stdout, os.Stderr)

	ctx := kong.Parse(&cli,
		kong.Name("laundrycycle"),
		kong.Description("Track laundry categories through their wash cycle."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)

	if err := ctx.Run(global, &cli); err != nil {
		foundationerrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
