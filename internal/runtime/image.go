package runtime

import (
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker-compatible health check, stored alongside the OCI config fields.
type Healthcheck struct {
	Test        []string      `json:"Test"`
	Interval    time.Duration `json:"Interval,omitempty"`
	Timeout     time.Duration `json:"Timeout,omitempty"`
	StartPeriod time.Duration `json:"StartPeriod,omitempty"`
	Retries     int           `json:"Retries,omitempty"`
}

// Configuration applied to an exported image.
type ImageConfig struct {
	Entrypoint   []string
	Env          []string // "KEY=value", overlaid on the base image's env.
	ExposedPorts []string // "8080/tcp"
	Volumes      []string
	WorkingDir   string
	Labels       map[string]string
	Healthcheck  *Healthcheck
}

// OCI image config extended with the Docker health check field, which the
// OCI spec lacks and Docker and Podman both honor.
type dockerImage struct {
	ocispec.Image
	Config dockerConfig `json:"config,omitempty"`
}

type dockerConfig struct {
	ocispec.ImageConfig
	Healthcheck *Healthcheck `json:"Healthcheck,omitempty"`
}

// Applies cfg to config and returns the value to serialize as the new
// config blob. An entrypoint clears the base image's command.
func applyConfig(config *ocispec.Image, cfg *ImageConfig) any {
	if cfg == nil {
		return config
	}

	ic := &config.Config
	if len(cfg.Entrypoint) > 0 {
		ic.Entrypoint = cfg.Entrypoint
		ic.Cmd = nil
	}
	ic.Env = overlayEnv(ic.Env, cfg.Env)
	if cfg.WorkingDir != "" {
		ic.WorkingDir = cfg.WorkingDir
	}
	ic.ExposedPorts = addKeys(ic.ExposedPorts, cfg.ExposedPorts)
	ic.Volumes = addKeys(ic.Volumes, cfg.Volumes)
	if len(cfg.Labels) > 0 {
		if ic.Labels == nil {
			ic.Labels = make(map[string]string, len(cfg.Labels))
		}
		maps.Copy(ic.Labels, cfg.Labels)
	}

	return &dockerImage{
		Image:  *config,
		Config: dockerConfig{ImageConfig: *ic, Healthcheck: cfg.Healthcheck},
	}
}

func addKeys(set map[string]struct{}, keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return set
	}
	if set == nil {
		set = make(map[string]struct{}, len(keys))
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Overlays env entries on base, keeping base order and appending new keys
// in the order given. Entries without "=" are ignored.
func overlayEnv(base, overrides []string) []string {
	out := slices.Clone(base)
	index := make(map[string]int, len(out))
	for i, e := range out {
		k, _, _ := strings.Cut(e, "=")
		index[k] = i
	}
	for _, e := range overrides {
		k, _, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if i, found := index[k]; found {
			out[i] = e
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	return out
}

// Adds layer to the manifest, and its diff ID and a history entry to the
// config.
func appendLayer(manifest *ocispec.Manifest, config *ocispec.Image, layer ocispec.Descriptor, diffID digest.Digest) {
	created := creationTime()
	manifest.Layers = append(manifest.Layers, layer)
	config.RootFS.DiffIDs = append(config.RootFS.DiffIDs, diffID)
	config.History = append(config.History, ocispec.History{Created: &created, CreatedBy: "kiln"})
	config.Created = &created
}

// Returns the time recorded in image configs: SOURCE_DATE_EPOCH when set,
// for reproducible images, and the current time otherwise.
func creationTime() time.Time {
	if v := os.Getenv("SOURCE_DATE_EPOCH"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC()
		}
	}
	return time.Now().UTC()
}
