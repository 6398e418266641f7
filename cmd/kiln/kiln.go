package main

import (
	"log/slog"
	"os"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/cli"
	"github.com/cruciblehq/kiln/internal/logging"
)

// The entry point for the kiln build tool.
//
// Configures logging from the modes set at link time, logs startup details
// and runs the command line. Failures exit with the status [cli.ExitCode]
// assigns to their failure class.
func main() {
	// Linker-flag modes apply until the CLI flags are parsed.
	logging.Configure(logging.Options{
		Level: internal.LogLevel(),
		Group: internal.Name,
	})

	info := internal.Info()
	wd, _ := os.Getwd()
	slog.Debug("starting",
		"version", info.String(),
		"commit", info.Commit,
		"pid", os.Getpid(),
		"cwd", wd,
		"args", os.Args[1:],
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(cli.ExitCode(err))
	}
}
