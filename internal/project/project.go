package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cruciblehq/kiln/internal/health"
)

// Default project file name, looked up in the source root.
const Filename = "kiln.toml"

// Duration that decodes from TOML strings such as "45s".
type Duration time.Duration

// Implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Base images for the pipeline.
type Images struct {
	Toolchain string `toml:"toolchain"` // Compiler image for base, dependency and compile stages.
	Runtime   string `toml:"runtime"`   // Minimal image the final artifact runs in.
}

// Layout and contract of the runtime image.
type Runtime struct {
	Workdir   string   `toml:"workdir"`   // Directory holding the binary and default configuration.
	Port      int      `toml:"port"`      // Port the service listens on.
	Volume    string   `toml:"volume"`    // Single persistence mount point.
	Utilities []string `toml:"utilities"` // Extra operational packages.
	Libraries []string `toml:"libraries"` // Shared libraries copied from the compile stage.
}

// Liveness policy overrides.
type Health struct {
	Path        string   `toml:"path"`
	StartPeriod Duration `toml:"start_period"`
	Interval    Duration `toml:"interval"`
	Timeout     Duration `toml:"timeout"`
	Retries     int      `toml:"retries"`
}

// Description of the service being packaged.
type Project struct {
	Name     string  `toml:"name"`     // Image name, also used to scope container IDs.
	Binary   string  `toml:"binary"`   // Cargo binary target to ship.
	Source   string  `toml:"source"`   // Source tree root.
	Config   string  `toml:"config"`   // Default configuration file, relative to Source.
	Output   string  `toml:"output"`   // Directory receiving exported images.
	Compress bool    `toml:"compress"` // Write zstd-compressed archives.
	Images   Images  `toml:"images"`
	Runtime  Runtime `toml:"runtime"`
	Health   Health  `toml:"health"`
}

// Returns the project with every default applied.
func Default() Project {
	policy := health.DefaultPolicy()
	return Project{
		Name:   "boilmaster",
		Binary: "boilmaster",
		Source: ".",
		Config: "boilmaster.toml",
		Output: "dist",
		Images: Images{
			Toolchain: "docker.io/library/rust:1-bookworm",
			Runtime:   "docker.io/library/debian:bookworm-slim",
		},
		Runtime: Runtime{
			Workdir:   "/app",
			Port:      policy.Port,
			Volume:    "/app/persist",
			Utilities: []string{"git"},
			Libraries: []string{"libz.so.1"},
		},
		Health: Health{
			Path:        policy.Path,
			StartPeriod: Duration(policy.StartPeriod),
			Interval:    Duration(policy.Interval),
			Timeout:     Duration(policy.Timeout),
			Retries:     policy.Retries,
		},
	}
}

// Loads the project file at path over the defaults.
//
// A missing file is not an error when allowMissing is set; the defaults are
// returned with Source resolved against the file's directory.
func Load(file string, allowMissing bool) (*Project, error) {
	p := Default()

	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrReadProject, file, err)
		}
	case errors.Is(err, fs.ErrNotExist) && allowMissing:
	default:
		return nil, fmt.Errorf("%w: %w", ErrReadProject, err)
	}

	dir := filepath.Dir(file)
	p.Source = resolve(dir, p.Source)
	p.Output = resolve(dir, p.Output)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Loads the project at name, which is either a project file or a directory.
// A directory without a project file yields the defaults rooted at that
// directory.
func Open(name string) (*Project, error) {
	if name == "" {
		name = "."
	}
	info, err := os.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadProject, err)
	}
	if info.IsDir() {
		return Load(filepath.Join(name, Filename), true)
	}
	return Load(name, false)
}

// Checks the project for values that cannot produce a working image.
func (p *Project) Validate() error {
	switch {
	case p.Name == "" || strings.ContainsAny(p.Name, " /:"):
		return fmt.Errorf("%w: name %q", ErrInvalidProject, p.Name)
	case p.Binary == "" || strings.Contains(p.Binary, "/"):
		return fmt.Errorf("%w: binary %q", ErrInvalidProject, p.Binary)
	case p.Images.Toolchain == "" || p.Images.Runtime == "":
		return fmt.Errorf("%w: toolchain and runtime images are required", ErrInvalidProject)
	case !path.IsAbs(p.Runtime.Workdir):
		return fmt.Errorf("%w: runtime workdir %q must be absolute", ErrInvalidProject, p.Runtime.Workdir)
	case !path.IsAbs(p.Runtime.Volume):
		return fmt.Errorf("%w: runtime volume %q must be absolute", ErrInvalidProject, p.Runtime.Volume)
	case p.Config != "" && filepath.IsAbs(p.Config):
		return fmt.Errorf("%w: config %q must be relative to the source", ErrInvalidProject, p.Config)
	}

	for _, lib := range p.Runtime.Libraries {
		if lib == "" || strings.Contains(lib, "/") {
			return fmt.Errorf("%w: library %q must be a file name", ErrInvalidProject, lib)
		}
	}

	if err := p.HealthPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	return nil
}

// Returns the liveness policy declared for the runtime image.
func (p *Project) HealthPolicy() health.Policy {
	return health.Policy{
		Path:        p.Health.Path,
		Port:        p.Runtime.Port,
		StartPeriod: time.Duration(p.Health.StartPeriod),
		Interval:    time.Duration(p.Health.Interval),
		Timeout:     time.Duration(p.Health.Timeout),
		Retries:     p.Health.Retries,
	}
}

// Returns the packages installed in the runtime image: CA certificates, the
// configured utilities, and whatever the health check needs.
func (p *Project) RuntimePackages() []string {
	pkgs := []string{"ca-certificates"}
	pkgs = append(pkgs, p.Runtime.Utilities...)
	pkgs = append(pkgs, p.HealthPolicy().Requires())
	slices.Sort(pkgs)
	return slices.Compact(pkgs)
}

// Path of the binary inside the runtime image.
func (p *Project) BinaryPath() string {
	return path.Join(p.Runtime.Workdir, p.Binary)
}

// Path of the default configuration inside the runtime image.
func (p *Project) ConfigPath() string {
	return path.Join(p.Runtime.Workdir, path.Base(filepath.ToSlash(p.Config)))
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
