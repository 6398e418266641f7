package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
)

const (

	// Default containerd socket address.
	DefaultAddress = "/run/containerd/containerd.sock"

	// Default containerd namespace for images and containers.
	DefaultNamespace = "kiln"

	// Default snapshotter for container filesystems. fuse-overlayfs provides
	// overlay semantics without mount(2), so kiln can run as a regular user.
	DefaultSnapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client      *containerd.Client
	snapshotter string
}

// Creates a runtime connected to the containerd socket at address.
//
// The namespace scopes all containerd operations to a single tenant. Empty
// arguments select the defaults. The runtime must be closed when no longer
// needed.
func New(address, namespace, snapshotter string) (*Runtime, error) {
	if address == "" {
		address = DefaultAddress
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if snapshotter == "" {
		snapshotter = DefaultSnapshotter
	}

	c, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return &Runtime{client: c, snapshotter: snapshotter}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Reports whether an image record named tag exists.
func (rt *Runtime) HasImage(ctx context.Context, tag string) (bool, error) {
	if _, err := rt.client.ImageService().Get(ctx, tag); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return true, nil
}

// Pulls ref for platform and unpacks it, returning the normalized name.
//
// Short references are normalized the way the Docker CLI does it
// ("debian:bookworm-slim" becomes "docker.io/library/debian:bookworm-slim").
func (rt *Runtime) PullImage(ctx context.Context, ref, platform string) (string, error) {
	named, err := reference.ParseDockerRef(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPull, ref, err)
	}
	name := named.String()

	p, err := platforms.Parse(platform)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPull, err)
	}

	slog.Info("pulling image", "ref", name, "platform", platform)

	_, err = rt.client.Pull(ctx, name,
		containerd.WithPlatformMatcher(platforms.Only(p)),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(rt.snapshotter),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPull, name, err)
	}
	return name, nil
}

// Starts a container from the image named by from.
//
// from is resolved in order: an OCI archive path (ending in ".tar") is
// imported; an existing image record, such as a committed stage, is used
// as is; anything else is treated as a registry reference, used when
// already present and pulled otherwise. The layers for platform are
// unpacked, a container is created with a fresh snapshot, and a long-running
// task (sleep infinity) is started so subsequent Exec calls have a running
// process to attach to. Any existing container with the same ID is removed
// first. Building for a platform other than the host requires QEMU and
// binfmt_misc support in the kernel.
func (rt *Runtime) StartContainer(ctx context.Context, from, id, platform string) (*Container, error) {
	tag, err := rt.ensureImage(ctx, from, platform)
	if err != nil {
		return nil, err
	}

	if err := rt.unpackImage(ctx, tag, platform); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	c := &Container{
		client:      rt.client,
		id:          id,
		platform:    platform,
		snapshotter: rt.snapshotter,
	}

	// Remove any stale container from a previous build with the same ID.
	c.remove(ctx)

	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	ctr, err := c.create(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container started", "id", id, "image", tag, "platform", platform)

	return c, nil
}

// Returns the name of a local image record for from, importing or pulling
// it when needed.
func (rt *Runtime) ensureImage(ctx context.Context, from, platform string) (string, error) {
	if strings.HasSuffix(from, ".tar") {
		tag, err := rt.importArchive(ctx, from)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrRuntime, from, err)
		}
		return tag, nil
	}

	if ok, err := rt.HasImage(ctx, from); err != nil {
		return "", err
	} else if ok {
		return from, nil
	}

	named, err := reference.ParseDockerRef(from)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPull, from, err)
	}
	if ok, err := rt.HasImage(ctx, named.String()); err != nil {
		return "", err
	} else if ok && rt.hasPlatform(ctx, named.String(), platform) {
		return named.String(), nil
	}

	return rt.PullImage(ctx, from, platform)
}

// Reports whether the content for platform is present locally. An image
// pulled for one platform holds the index of every platform but the
// layers of only one.
func (rt *Runtime) hasPlatform(ctx context.Context, tag, platform string) bool {
	img, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return false
	}
	ok, err := img.IsUnpacked(ctx, rt.snapshotter)
	return err == nil && ok
}

// Imports an OCI archive holding one image and returns its tag.
//
// The tag is derived from the archive's digest, so an archive imported
// before is not read into the content store again. A multi-platform archive
// is one index entry referencing a manifest per platform.
func (rt *Runtime) importArchive(ctx context.Context, path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	dgst, err := digest.Canonical.FromReader(fh)
	if err != nil {
		return "", err
	}
	tag := archiveTag(dgst)
	if ok, err := rt.HasImage(ctx, tag); err != nil || ok {
		return tag, err
	}

	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return "", err
	}
	switch len(imported) {
	case 0:
		return "", ErrEmptyArchive
	case 1:
	default:
		return "", ErrMultipleImages
	}

	slog.Debug("imported archive", "path", path, "tag", tag)
	return tag, rt.tagImage(ctx, imported[0], tag)
}

// Points tag at source's target, creating or updating the record. Removes
// the source record when its name differs from the tag.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	if err := rt.setImage(ctx, tag, source); err != nil {
		return err
	}

	if source.Name != tag {
		_ = rt.client.ImageService().Delete(ctx, source.Name)
	}

	return nil
}

// Creates or updates the image record named tag.
func (rt *Runtime) setImage(ctx context.Context, tag string, source images.Image) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
		Labels: source.Labels,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}
	return nil
}

// Unpacks the image layers for the target platform into the snapshotter.
func (rt *Runtime) unpackImage(ctx context.Context, tag, platform string) error {
	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return err
	}

	return image.Unpack(ctx, rt.snapshotter)
}

// Looks up a tagged image and selects the manifest for the given platform.
func (rt *Runtime) resolveImage(ctx context.Context, tag, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Name of the image record for an imported archive.
func archiveTag(d digest.Digest) string {
	return "import/" + d.Encoded() + ":latest"
}
