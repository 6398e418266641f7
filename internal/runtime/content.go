package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/containerd/containerd/v2/core/content"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/platforms"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Decodes the JSON blob desc points at.
func readJSON[T any](ctx context.Context, cs content.Store, desc ocispec.Descriptor) (T, error) {
	var v T
	b, err := content.ReadBlob(ctx, cs, desc)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%s %s: %w", desc.MediaType, desc.Digest, err)
	}
	return v, nil
}

// Stores v as a JSON blob and returns its descriptor. gcRefs names the
// children the blob references, so the garbage collector keeps them while
// the blob is reachable.
func writeJSON(ctx context.Context, cs content.Store, mediaType, ref string, v any, gcRefs map[string]string) (ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(b),
		Size:      int64(len(b)),
	}
	if err := content.WriteBlob(ctx, cs, ref, bytes.NewReader(b), desc, content.WithLabels(gcRefs)); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// GC reference labels for a manifest's config and layers.
func manifestRefs(m ocispec.Manifest) map[string]string {
	labels := gcRefs("l", m.Layers)
	labels["containerd.io/gc.ref.content.config"] = m.Config.Digest.String()
	return labels
}

// GC reference labels for the manifests of an index.
func indexRefs(idx ocispec.Index) map[string]string {
	return gcRefs("m", idx.Manifests)
}

func gcRefs(kind string, descs []ocispec.Descriptor) map[string]string {
	labels := make(map[string]string, len(descs)+1)
	for i, d := range descs {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.%s.%d", kind, i)] = d.Digest.String()
	}
	return labels
}

// Selects the manifest for platform from root, which is a manifest or an
// index. The index is returned when root is one.
//
// Some registries, Docker Hub among them, serve index entries without a
// platform field. Those are matched on the platform recorded in their image
// config, after every entry that has the field. When nothing matches, the
// first entry is used.
func selectManifest(ctx context.Context, cs content.Store, root ocispec.Descriptor, platform ocispec.Platform) (ocispec.Descriptor, *ocispec.Index, error) {
	if !images.IsIndexType(root.MediaType) {
		return root, nil, nil
	}

	idx, err := readJSON[ocispec.Index](ctx, cs, root)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	if len(idx.Manifests) == 0 {
		return ocispec.Descriptor{}, nil, ErrEmptyIndex
	}

	match := platforms.OnlyStrict(platform)
	for _, m := range idx.Manifests {
		if m.Platform != nil && match.Match(*m.Platform) {
			return m, &idx, nil
		}
	}
	for _, m := range idx.Manifests {
		if m.Platform != nil || !images.IsManifestType(m.MediaType) {
			continue
		}
		if p, ok := configPlatform(ctx, cs, m); ok && match.Match(p) {
			return m, &idx, nil
		}
	}
	return idx.Manifests[0], &idx, nil
}

func configPlatform(ctx context.Context, cs content.Store, desc ocispec.Descriptor) (ocispec.Platform, bool) {
	manifest, err := readJSON[ocispec.Manifest](ctx, cs, desc)
	if err != nil {
		return ocispec.Platform{}, false
	}
	config, err := readJSON[ocispec.Image](ctx, cs, manifest.Config)
	if err != nil {
		return ocispec.Platform{}, false
	}
	return ocispec.Platform{OS: config.OS, Architecture: config.Architecture, Variant: config.Variant}, true
}
