package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/containerd/v2/core/images/archive"
	"github.com/containerd/containerd/v2/pkg/rootfs"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/klauspost/compress/zstd"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Filename of the OCI archive written by Export.
const exportFilename = "image.tar"

// Controls Export.
type ExportOptions struct {
	Dir      string       // Directory receiving the archive.
	Name     string       // Reference recorded in the archive index.
	Config   *ImageConfig // Applied to the image config when set.
	Compress bool         // Write a zstd-compressed archive.
}

// Exports the container's base image plus its filesystem changes as an OCI
// archive in opts.Dir and returns the archive's path.
//
// The archive is renamed into place once complete, so a failed export
// leaves no partial file. No image record is created or modified.
func (c *Container) Export(ctx context.Context, opts ExportOptions) (string, error) {
	ctx, done, err := c.client.WithLease(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	defer done(context.WithoutCancel(ctx))

	base, target, err := c.derive(ctx, opts.Config)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	name := opts.Name
	if name == "" {
		name = base
	}
	filename := exportFilename
	if opts.Compress {
		filename += ".zst"
	}
	p := filepath.Join(opts.Dir, filename)

	if err := c.writeArchive(ctx, target, name, p, opts.Compress); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Info("image exported", "path", p, "platform", c.platform)
	return p, nil
}

// Records the container's base image plus its filesystem changes as the
// image tag, replacing any earlier record of that name. Later stages start
// containers from tag.
func (c *Container) Commit(ctx context.Context, tag string) error {
	ctx, done, err := c.client.WithLease(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	defer done(context.WithoutCancel(ctx))

	_, target, err := c.derive(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	is := c.client.ImageService()
	img := images.Image{Name: tag, Target: target}
	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return fmt.Errorf("%w: %w", ErrRuntime, err)
		}
	}

	slog.Info("stage committed", "tag", tag, "platform", c.platform)
	return nil
}

// Writes a new image to the content store: the container's base image for
// its platform, plus one layer holding the container's changes, with cfg
// applied. Returns the base image name and the new root descriptor.
//
// When the base is an index, the new root is an index holding only the
// new manifest; the other platforms' layers were never fetched. The caller
// must hold a lease, as nothing references the new blobs yet.
func (c *Container) derive(ctx context.Context, cfg *ImageConfig) (string, ocispec.Descriptor, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}
	info, err := ctr.Info(ctx)
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}

	layer, err := rootfs.CreateDiff(ctx, info.SnapshotKey, c.client.SnapshotService(info.Snapshotter), c.client.DiffService())
	if err != nil {
		return "", ocispec.Descriptor{}, fmt.Errorf("diff: %w", err)
	}
	cs := c.client.ContentStore()
	diffID, err := images.GetDiffID(ctx, cs, layer)
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}

	img, err := c.client.ImageService().Get(ctx, info.Image)
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}
	platform, err := platforms.Parse(c.platform)
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}
	mdesc, index, err := selectManifest(ctx, cs, img.Target, platform)
	if err != nil {
		return "", ocispec.Descriptor{}, fmt.Errorf("%s: %w", info.Image, err)
	}

	manifest, err := readJSON[ocispec.Manifest](ctx, cs, mdesc)
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}
	config, err := readJSON[ocispec.Image](ctx, cs, manifest.Config)
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}

	appendLayer(&manifest, &config, layer, diffID)
	ref := c.id + "-" + diffID.Encoded()[:12]

	manifest.Config, err = writeJSON(ctx, cs, manifest.Config.MediaType, ref+"-config", applyConfig(&config, cfg), nil)
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}
	root, err := writeJSON(ctx, cs, mdesc.MediaType, ref+"-manifest", manifest, manifestRefs(manifest))
	if err != nil {
		return "", ocispec.Descriptor{}, err
	}
	if index != nil {
		root.Platform = mdesc.Platform
		index.Manifests = []ocispec.Descriptor{root}
		root, err = writeJSON(ctx, cs, img.Target.MediaType, ref+"-index", index, indexRefs(*index))
		if err != nil {
			return "", ocispec.Descriptor{}, err
		}
	}
	return info.Image, root, nil
}

// Writes target, restricted to the container's platform, as an OCI archive
// at path, tagged with name.
func (c *Container) writeArchive(ctx context.Context, target ocispec.Descriptor, name, path string, compress bool) (err error) {
	p, err := platforms.Parse(c.platform)
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), ".image-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	var w io.Writer = f
	var zw *zstd.Encoder
	if compress {
		if zw, err = zstd.NewWriter(f); err != nil {
			return err
		}
		w = zw
	}

	if err = c.client.Export(ctx, w, archive.WithManifest(target, name), archive.WithPlatform(platforms.Only(p))); err != nil {
		return err
	}
	if zw != nil {
		if err = zw.Close(); err != nil {
			return err
		}
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Chmod(0644); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
