package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/logging"
	"github.com/cruciblehq/kiln/internal/protocol"
)

// Represents the root command for kiln.
var RootCmd struct {
	Quiet   bool   `short:"q" help:"Suppress informational output."`
	Verbose bool   `short:"v" help:"Enable verbose output."`
	Debug   bool   `short:"d" help:"Enable debug output."`
	Project string `short:"p" default:"." env:"KILN_PROJECT" help:"Project file or directory." placeholder:"PATH"`
	Socket  string `short:"s" env:"KILN_SOCKET" help:"Override the default Unix socket path." placeholder:"PATH"`

	Containerd  string `env:"KILN_CONTAINERD" help:"Containerd socket address." placeholder:"PATH"`
	Namespace   string `env:"KILN_NAMESPACE" help:"Containerd namespace for images and containers."`
	Snapshotter string `env:"KILN_SNAPSHOTTER" help:"Snapshotter for stage containers."`

	Plan    PlanCmd    `cmd:"" help:"Compute the dependency recipe."`
	Build   BuildCmd   `cmd:"" help:"Build the runtime image for one target."`
	Release ReleaseCmd `cmd:"" help:"Build runtime images for every target."`
	Render  RenderCmd  `cmd:"" help:"Print the pipeline as a Dockerfile."`
	Env     EnvCmd     `cmd:"" help:"Show the persistence environment."`
	Targets TargetsCmd `cmd:"" help:"List supported targets."`
	Probe   ProbeCmd   `cmd:"" help:"Check the liveness of a running service."`
	History HistoryCmd `cmd:"" help:"Show recent builds."`
	Prune   PruneCmd   `cmd:"" help:"Remove containers left by interrupted builds."`
	Start   StartCmd   `cmd:"" help:"Start the daemon."`
	Status  StatusCmd  `cmd:"" help:"Show daemon status."`
	Stop    StopCmd    `cmd:"" help:"Stop the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Multi-stage build and release pipeline.\n\nCompiles the service for each target architecture and exports minimal runtime images."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	if RootCmd.Debug {
		internal.Enable(internal.ModeDebug)
	}
	if RootCmd.Quiet {
		internal.Enable(internal.ModeQuiet)
	}
	if RootCmd.Verbose {
		internal.Enable(internal.ModeVerbose)
	}

	logging.Configure(logging.Options{
		Level:   internal.LogLevel(),
		Verbose: internal.Enabled(internal.ModeVerbose),
		Group:   internal.Name,
	})
}

// Returns the process exit status for err.
//
// Configuration, compilation and assembly failures exit with 2, 3 and 4,
// whether they happened locally or in the daemon. Other failures exit with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	class := build.Class(err)
	var remote *protocol.ErrorResult
	if class == "" && errors.As(err, &remote) {
		class = remote.Class
	}

	switch class {
	case "config":
		return 2
	case "compile":
		return 3
	case "assembly":
		return 4
	default:
		return 1
	}
}
