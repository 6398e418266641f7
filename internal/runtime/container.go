package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

const (

	// Label marking containers created by kiln, so leftovers from an
	// interrupted build can be found and removed.
	LabelManaged = "dev.kiln.managed"

	// Label holding the platform a stage container runs as.
	LabelPlatform = "dev.kiln.platform"
)

// A stage container backed by containerd. It runs "sleep infinity" so that
// steps can be executed in it one at a time.
type Container struct {
	client      *containerd.Client
	id          string
	platform    string // OCI platform, e.g. linux/arm64.
	snapshotter string
}

func (c *Container) ID() string {
	return c.id
}

func (c *Container) Platform() string {
	return c.platform
}

// Kills the container's task, keeping its filesystem for commit or export.
// Stopping a container with no task is not an error.
func (c *Container) Stop(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	if err := killTask(ctx, ctr); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}

// Removes the container and its snapshot. Failures are logged; the handle
// is unusable afterwards either way.
func (c *Container) Destroy(ctx context.Context) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			slog.Warn("failed to load container", "id", c.id, "error", err)
		}
		return
	}
	if err := deleteContainer(ctx, ctr); err != nil {
		slog.Warn("failed to delete container", "id", c.id, "error", err)
	}
}

func (c *Container) create(ctx context.Context, image containerd.Image) (containerd.Container, error) {
	return c.client.NewContainer(ctx, c.id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(c.snapshotter),
		containerd.WithNewSnapshot(c.id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithContainerLabels(map[string]string{
			LabelManaged:  "true",
			LabelPlatform: c.platform,
		}),
		containerd.WithNewSpec(
			oci.WithDefaultSpecForPlatform(c.platform),
			oci.WithImageConfig(image),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithProcessArgs("sleep", "infinity"),
		),
	)
}

// Starts the long-running task with no attached IO.
func (c *Container) startTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Removes a container left over under this ID, if there is one.
func (c *Container) remove(ctx context.Context) {
	if existing, err := c.client.LoadContainer(ctx, c.id); err == nil {
		slog.Debug("removing stale container", "id", c.id)
		deleteContainer(ctx, existing)
	}
}

// Kills and deletes the container's task, if it has one.
func killTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}
	task.Kill(ctx, syscall.SIGKILL)
	if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}

func deleteContainer(ctx context.Context, ctr containerd.Container) error {
	if err := killTask(ctx, ctr); err != nil {
		return err
	}
	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}

// Removes every kiln container in the namespace and returns how many were
// removed.
//
// Stage containers are destroyed when a release finishes, so any that remain
// belong to a process that was killed mid-build. Prune must not run while a
// build is in progress in the same namespace.
func (rt *Runtime) Prune(ctx context.Context) (int, error) {
	ctrs, err := rt.client.Containers(ctx, fmt.Sprintf("labels.%q==true", LabelManaged))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	removed := 0
	for _, ctr := range ctrs {
		if err := deleteContainer(ctx, ctr); err != nil {
			slog.Warn("failed to prune container", "id", ctr.ID(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("pruned stale containers", "count", removed)
	}
	return removed, nil
}
