package pipeline

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/kiln/internal/environ"
	"github.com/cruciblehq/kiln/internal/planner"
	"github.com/cruciblehq/kiln/internal/project"
	"github.com/cruciblehq/kiln/internal/target"
)

// Stage names, in execution order.
const (
	StageBase    = "base"
	StageDeps    = "deps"
	StageCompile = "compile"
	StageRuntime = "runtime"
)

const (

	// Working directory of the builder stages.
	builderDir = "/app"

	// Labels recorded on the runtime image.
	LabelTarget = "dev.kiln.target"
	LabelRecipe = "dev.kiln.recipe"
	LabelSource = "dev.kiln.source"
)

// Packages the toolchain image needs for native builds of the service.
var basePackages = []string{
	"build-essential",
	"ca-certificates",
	"libssl-dev",
	"pkg-config",
	"zlib1g-dev",
}

// Inputs to [Compose].
type Options struct {
	Project  *project.Project
	Target   target.Target
	Recipe   *planner.Recipe
	Host     string              // Platform the builder stages run on.
	Skeleton string              // Directory holding the materialized recipe.
	Env      environ.Environment // Persistence layout declared on the image.
	Labels   map[string]string   // Extra labels for the runtime image.
}

// Ordered stages that build one target.
type Plan struct {
	Target target.Target
	Recipe digest.Digest
	Stages []Stage
}

// Returns the named stage.
func (p *Plan) Stage(name string) (Stage, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Returns the stage whose filesystem becomes the exported image.
func (p *Plan) Final() Stage {
	return p.Stages[len(p.Stages)-1]
}

// Composes the four stages for one target.
func Compose(opts Options) (*Plan, error) {
	if opts.Project == nil || opts.Recipe == nil {
		return nil, fmt.Errorf("%w: project and recipe are required", ErrInvalidStage)
	}
	if opts.Skeleton == "" {
		return nil, fmt.Errorf("%w: skeleton directory is required", ErrInvalidStage)
	}

	env := opts.Env
	if env.Dirs == nil {
		env = environ.Defaults(opts.Project.Runtime.Volume)
	}

	base := Base(opts.Project)
	deps := Dependencies(opts.Target, opts.Recipe, opts.Host, base.Commit)
	deps.Context = opts.Skeleton
	compile := Compile(opts.Project, opts.Target, opts.Recipe, opts.Host, deps.Commit)
	runtime := Runtime(opts.Project, opts.Target, env)

	labels := runtime.Image.Labels
	maps.Copy(labels, opts.Labels)
	labels[LabelRecipe] = opts.Recipe.Digest().String()

	return &Plan{
		Target: opts.Target,
		Recipe: opts.Recipe.Digest(),
		Stages: []Stage{base, deps, compile, runtime},
	}, nil
}

// Returns the toolchain stage shared by every target.
//
// It installs the native build prerequisites and is committed under a tag
// derived from its definition, so it is built once per toolchain image.
func Base(p *project.Project) Stage {
	s := Stage{
		Name:      StageBase,
		From:      p.Images.Toolchain,
		Transient: true,
		Steps: []Step{
			{Env: map[string]string{"DEBIAN_FRONTEND": "noninteractive"}},
			{Run: aptInstall(basePackages)},
		},
	}
	s.Commit = "kiln/base:" + s.Key().Encoded()
	return s
}

// Returns the stage compiling third-party dependencies for t.
//
// The stage provisions the target toolchain, copies the recipe skeleton and
// builds it, then cleans the local crates so the compile stage rebuilds them
// from real sources. Its tag covers the recipe digest and triple, so any
// change to either produces a different cache layer.
func Dependencies(t target.Target, r *planner.Recipe, host, base string) Stage {
	prov := t.Provision(host)

	steps := []Step{
		{Env: builderEnv(prov)},
		{Run: strings.Join(prov.Commands, " && ")},
		{Workdir: builderDir},
		{Copy: ". " + builderDir},
		{Run: cargoBuild(t, r.Locked())},
	}
	if locals := r.LocalPackages(); len(locals) > 0 {
		clean := "cargo clean --release --target " + t.Triple
		for _, name := range locals {
			clean += " -p " + name
		}
		steps = append(steps, Step{Run: clean})
	}

	s := Stage{
		Name:      StageDeps,
		From:      base,
		Transient: true,
		Steps:     steps,
	}
	key := s.Key(r.Digest().String(), t.Triple)
	s.Commit = "kiln/deps-" + t.Triple + ":" + key.Encoded()
	return s
}

// Returns the stage compiling the application on top of the deps image.
func Compile(p *project.Project, t target.Target, r *planner.Recipe, host, deps string) Stage {
	return Stage{
		Name:      StageCompile,
		From:      deps,
		Transient: true,
		Context:   p.Source,
		Steps: []Step{
			{Env: builderEnv(t.Provision(host))},
			{Workdir: builderDir},
			{Copy: ". " + builderDir},
			{Run: cargoBuild(t, r.Locked()) + " --bin " + p.Binary},
		},
	}
}

// Returns the exported stage for t.
//
// It starts from the minimal runtime image for the target platform and copies
// the binary, the default configuration and the target's shared libraries.
// Binary and libraries are taken from the same target's compile stage and
// checked against the target's ELF machine.
func Runtime(p *project.Project, t target.Target, env environ.Environment) Stage {
	binary := BinaryPath(t, p.Binary)

	steps := []Step{
		{Run: aptInstall(p.RuntimePackages()), Env: map[string]string{"DEBIAN_FRONTEND": "noninteractive"}},
		{Workdir: p.Runtime.Workdir},
		{Copy: StageCompile + ":" + binary + " " + p.BinaryPath()},
	}
	if p.Config != "" {
		steps = append(steps, Step{Copy: path.Clean(p.Config) + " " + p.ConfigPath()})
	}

	checks := []Check{{Source: StageCompile + ":" + binary, Machine: t.Machine}}
	for _, lib := range p.Runtime.Libraries {
		src := t.LibPath(lib)
		steps = append(steps, Step{Copy: StageCompile + ":" + src + " " + src})
		checks = append(checks, Check{Source: StageCompile + ":" + src, Machine: t.Machine})
	}

	dirs := []string{p.Runtime.Volume}
	for _, v := range environ.Variables {
		dirs = append(dirs, env.Dirs[v.Category])
	}
	steps = append(steps, Step{Run: "mkdir -p " + strings.Join(dirs, " ")})

	policy := p.HealthPolicy()

	return Stage{
		Name:     StageRuntime,
		From:     p.Images.Runtime,
		Platform: t.Platform,
		Context:  p.Source,
		Steps:    steps,
		Checks:   checks,
		Image: &ImageConfig{
			Entrypoint:   []string{p.BinaryPath()},
			Env:          env.Environ(),
			ExposedPorts: []string{strconv.Itoa(p.Runtime.Port) + "/tcp"},
			Volumes:      []string{p.Runtime.Volume},
			WorkingDir:   p.Runtime.Workdir,
			Labels: map[string]string{
				ocispec.AnnotationTitle: p.Name,
				LabelTarget:             t.Triple,
			},
			Healthcheck: &Healthcheck{
				Test:        policy.Command(),
				Interval:    policy.Interval,
				Timeout:     policy.Timeout,
				StartPeriod: policy.StartPeriod,
				Retries:     policy.Retries,
			},
		},
	}
}

// Path of the release binary inside the compile stage.
func BinaryPath(t target.Target, binary string) string {
	return path.Join(builderDir, "target", t.Triple, "release", binary)
}

func cargoBuild(t target.Target, locked bool) string {
	cmd := "cargo build --release --target " + t.Triple
	if locked {
		cmd += " --locked"
	}
	return cmd
}

func builderEnv(prov target.Provision) map[string]string {
	env := map[string]string{
		"DEBIAN_FRONTEND":  "noninteractive",
		"CARGO_TERM_COLOR": "never",
	}
	maps.Copy(env, prov.Env)
	return env
}

func aptInstall(pkgs []string) string {
	pkgs = slices.Sorted(slices.Values(pkgs))
	return "apt-get update && apt-get install -y --no-install-recommends " +
		strings.Join(slices.Compact(pkgs), " ") +
		" && rm -rf /var/lib/apt/lists/*"
}
