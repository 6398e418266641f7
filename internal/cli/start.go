package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/kiln/internal/server"
)

// Represents the 'kiln start' command.
type StartCmd struct {
	Jobs int `short:"j" help:"Targets built at once per release. Zero builds all at once."`
}

// Runs the daemon until the context is cancelled by SIGINT or SIGTERM, or a
// shutdown command arrives. Builds in progress are cancelled and their
// containers removed before Run returns.
func (c *StartCmd) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		SocketPath:          RootCmd.Socket,
		ContainerdAddress:   RootCmd.Containerd,
		ContainerdNamespace: RootCmd.Namespace,
		Snapshotter:         RootCmd.Snapshotter,
		Jobs:                c.Jobs,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		srv.Stop()
		return err
	}

	select {
	case <-ctx.Done():
		slog.Info("signal received, shutting down")
	case <-srv.Done():
	}
	return srv.Stop()
}
