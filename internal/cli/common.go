package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/project"
	"github.com/cruciblehq/kiln/internal/protocol"
	"github.com/cruciblehq/kiln/internal/runtime"
	"github.com/cruciblehq/kiln/internal/target"
)

// Target selection for commands acting on one target.
//
// Build systems supply TARGETPLATFORM and BUILDPLATFORM; an explicit --arch
// wins over both.
type targetFlags struct {
	Arch           string `short:"a" help:"Target platform, e.g. linux/arm64." placeholder:"PLATFORM"`
	TargetPlatform string `hidden:"" env:"TARGETPLATFORM"`
	BuildPlatform  string `hidden:"" env:"BUILDPLATFORM"`
}

func (f targetFlags) target() (target.Target, error) {
	return target.Select(f.Arch, f.BuildPlatform, f.TargetPlatform)
}

// Loads the project named by --project.
func loadProject() (*project.Project, error) {
	return project.Open(RootCmd.Project)
}

// Returns --project as an absolute path, for requests to the daemon.
func projectPath() (string, error) {
	return filepath.Abs(RootCmd.Project)
}

func socketPath() string {
	if RootCmd.Socket != "" {
		return RootCmd.Socket
	}
	return paths.Socket()
}

// Sends one command to the daemon.
func call(ctx context.Context, cmd protocol.Command, req, result any) error {
	if err := protocol.Call(ctx, socketPath(), cmd, req, result); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// Connects to containerd using the root flags.
func openRuntime() (*runtime.Runtime, error) {
	return runtime.New(
		or(RootCmd.Containerd, runtime.DefaultAddress),
		or(RootCmd.Namespace, runtime.DefaultNamespace),
		or(RootCmd.Snapshotter, runtime.DefaultSnapshotter),
	)
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
