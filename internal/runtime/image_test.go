package runtime

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestOverlayEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "LANG=C"}
	got := overlayEnv(base, []string{"LANG=C.UTF-8", "BM_VERSION_DIRECTORY=/app/persist/versions", "BROKEN"})

	want := []string{"PATH=/usr/bin", "LANG=C.UTF-8", "BM_VERSION_DIRECTORY=/app/persist/versions"}
	if !slices.Equal(got, want) {
		t.Fatalf("env = %v, want %v", got, want)
	}
	if base[1] != "LANG=C" {
		t.Fatal("base slice modified")
	}
	if got := overlayEnv(nil, nil); len(got) != 0 {
		t.Fatalf("overlayEnv(nil, nil) = %v", got)
	}
}

func TestApplyConfig(t *testing.T) {
	img := &ocispec.Image{}
	img.Config.Cmd = []string{"bash"}
	img.Config.Env = []string{"PATH=/usr/bin"}
	img.Config.ExposedPorts = map[string]struct{}{"22/tcp": {}}

	out := applyConfig(img, &ImageConfig{
		Entrypoint:   []string{"/app/boilmaster"},
		Env:          []string{"BM_SEARCH_SQLITE_DIRECTORY=/app/persist/search"},
		ExposedPorts: []string{"8080/tcp"},
		Volumes:      []string{"/app/persist"},
		WorkingDir:   "/app",
		Labels:       map[string]string{"org.opencontainers.image.title": "boilmaster"},
		Healthcheck: &Healthcheck{
			Test:        []string{"CMD-SHELL", "curl -fsS http://localhost:8080/health/live || exit 1"},
			Interval:    5 * time.Second,
			StartPeriod: 45 * time.Second,
			Retries:     3,
		},
	})

	b, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Config struct {
			Entrypoint   []string
			Cmd          []string
			Env          []string
			ExposedPorts map[string]struct{}
			Volumes      map[string]struct{}
			WorkingDir   string
			Labels       map[string]string
			Healthcheck  struct {
				Test        []string
				Interval    int64
				StartPeriod int64
				Retries     int
			}
		} `json:"config"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}

	cfg := decoded.Config
	if !slices.Equal(cfg.Entrypoint, []string{"/app/boilmaster"}) || cfg.Cmd != nil {
		t.Errorf("entrypoint = %v cmd = %v", cfg.Entrypoint, cfg.Cmd)
	}
	if len(cfg.Env) != 2 || cfg.WorkingDir != "/app" {
		t.Errorf("env = %v workdir = %q", cfg.Env, cfg.WorkingDir)
	}
	if len(cfg.ExposedPorts) != 2 {
		t.Errorf("ports = %v, want base port kept and 8080/tcp added", cfg.ExposedPorts)
	}
	if _, ok := cfg.Volumes["/app/persist"]; !ok {
		t.Errorf("volumes = %v", cfg.Volumes)
	}
	if cfg.Labels["org.opencontainers.image.title"] != "boilmaster" {
		t.Errorf("labels = %v", cfg.Labels)
	}
	hc := cfg.Healthcheck
	if hc.Retries != 3 || time.Duration(hc.StartPeriod) != 45*time.Second || time.Duration(hc.Interval) != 5*time.Second || hc.Test[0] != "CMD-SHELL" {
		t.Errorf("healthcheck = %+v", hc)
	}
}

func TestApplyConfigNil(t *testing.T) {
	img := &ocispec.Image{}
	if out := applyConfig(img, nil); out != img {
		t.Fatal("nil config should leave the image untouched")
	}
}

func TestAppendLayer(t *testing.T) {
	t.Setenv("SOURCE_DATE_EPOCH", "1700000000")

	var m ocispec.Manifest
	var img ocispec.Image
	layer := ocispec.Descriptor{Digest: digest.FromString("layer")}
	diffID := digest.FromString("diff")

	appendLayer(&m, &img, layer, diffID)

	if len(m.Layers) != 1 || m.Layers[0].Digest != layer.Digest {
		t.Fatalf("layers = %v", m.Layers)
	}
	if len(img.RootFS.DiffIDs) != 1 || img.RootFS.DiffIDs[0] != diffID {
		t.Fatalf("diff ids = %v", img.RootFS.DiffIDs)
	}
	if len(img.History) != 1 || img.History[0].CreatedBy != "kiln" {
		t.Fatalf("history = %+v", img.History)
	}
	if img.Created == nil || !img.Created.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("created = %v, want SOURCE_DATE_EPOCH", img.Created)
	}
}

func TestCreationTimeInvalidEpoch(t *testing.T) {
	t.Setenv("SOURCE_DATE_EPOCH", "yesterday")
	before := time.Now().Add(-time.Second)
	if got := creationTime(); got.Before(before) {
		t.Fatalf("creationTime() = %v, want now", got)
	}
}
