package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/assemble"
	"github.com/cruciblehq/kiln/internal/environ"
	"github.com/cruciblehq/kiln/internal/ledger"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/pipeline"
	"github.com/cruciblehq/kiln/internal/planner"
	"github.com/cruciblehq/kiln/internal/project"
	"github.com/cruciblehq/kiln/internal/protocol"
	"github.com/cruciblehq/kiln/internal/target"
)

// Controls a build or release.
type Options struct {
	Project   *project.Project
	Platforms []string       // Requested platforms. Release builds every target when empty.
	Output    string         // Overrides the project output directory.
	Host      string         // Platform builder stages run on. Defaults to the host.
	Jobs      int            // Targets built at once. Zero builds all at once.
	Ledger    *ledger.Ledger // Receives one entry per target when set.
	WorkDir   string         // Scratch space for the recipe skeleton. Defaults to [paths.Work].
}

// Outcome for one target.
type TargetResult struct {
	Target   target.Target
	Output   string        // Exported archive, empty on failure.
	CacheHit bool          // Dependency stage reused from a committed image.
	Duration time.Duration // Wall time of the target's stages.
	Err      error
}

// Outcome of a build or release.
type Result struct {
	ID      string // Release ID, part of every container ID the release starts.
	Recipe  digest.Digest
	Source  string // Fingerprint of the source tree.
	Targets []TargetResult
}

// Returns the wire form of the result.
func (r *Result) Report() *protocol.BuildResult {
	out := &protocol.BuildResult{Recipe: r.Recipe.String()}
	for _, tr := range r.Targets {
		t := protocol.TargetResult{
			Platform: tr.Target.Platform,
			Triple:   tr.Target.Triple,
			Output:   tr.Output,
			CacheHit: tr.CacheHit,
			Duration: tr.Duration,
		}
		if tr.Err != nil {
			t.Error = tr.Err.Error()
		}
		out.Targets = append(out.Targets, t)
	}
	return out
}

// Builds exactly one target.
func Build(ctx context.Context, eng Engine, opts Options) (*Result, error) {
	if len(opts.Platforms) != 1 {
		return nil, fmt.Errorf("%w: build needs exactly one platform, got %d", ErrConfig, len(opts.Platforms))
	}
	return Release(ctx, eng, opts)
}

// Builds every requested target.
//
// Targets are resolved and the recipe is computed before any container
// starts, so unsupported platforms and malformed manifests fail without
// compiling anything. The base stage is built once and shared; each target
// then runs concurrently with its own dependency cache key. The returned
// error joins the failures of all targets that failed; the result lists
// every target either way.
func Release(ctx context.Context, eng Engine, opts Options) (*Result, error) {
	if opts.Project == nil {
		return nil, fmt.Errorf("%w: no project", ErrConfig)
	}
	proj := opts.Project

	targets, err := target.Resolve(opts.Platforms)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	recipe, err := planner.Plan(proj.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	source, err := planner.Fingerprint(proj.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	host := opts.Host
	if host == "" {
		host = target.Host()
	}

	work := opts.WorkDir
	if work == "" {
		work = paths.Work()
	}
	if err := os.MkdirAll(work, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrConfig, ErrFileSystemOperation, err)
	}
	skeleton, err := os.MkdirTemp(work, "skeleton-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrConfig, ErrFileSystemOperation, err)
	}
	defer os.RemoveAll(skeleton)

	if err := recipe.Materialize(skeleton); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	env := environ.Defaults(proj.Runtime.Volume)
	plans := make([]*pipeline.Plan, len(targets))
	for i, t := range targets {
		plan, err := pipeline.Compose(pipeline.Options{
			Project:  proj,
			Target:   t,
			Recipe:   recipe,
			Host:     host,
			Skeleton: skeleton,
			Env:      env,
			Labels:   map[string]string{pipeline.LabelSource: source, "org.opencontainers.image.vendor": internal.Producer()},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		if err := assemble.Validate(plan.Final()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAssembly, err)
		}
		plans[i] = plan
	}

	output := opts.Output
	if output == "" {
		output = proj.Output
	}

	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Platform
	}
	res := &Result{
		ID:      newReleaseID(),
		Recipe:  recipe.Digest(),
		Source:  source,
		Targets: make([]TargetResult, len(targets)),
	}

	slog.Info("release",
		"id", res.ID,
		"project", proj.Name,
		"recipe", recipe.Digest(),
		"source", source,
		"targets", names,
		"host", host,
	)

	// Every plan shares the same base stage.
	base, _ := plans[0].Stage(pipeline.StageBase)
	shared := newExecutor(eng, proj.Name, res.ID, host, "")
	_, err = shared.run(ctx, base, "", proj.Compress)
	shared.destroy(context.WithoutCancel(ctx))
	if err != nil {
		err = fmt.Errorf("%w: stage %s: %w", ErrCompile, base.Name, err)
		for i, t := range targets {
			res.Targets[i] = TargetResult{Target: t, Err: err}
			record(ctx, opts.Ledger, res, res.Targets[i], time.Now())
		}
		return res, err
	}

	var g errgroup.Group
	if opts.Jobs > 0 {
		g.SetLimit(opts.Jobs)
	}

	var mu sync.Mutex
	var errs []error

	for i, plan := range plans {
		g.Go(func() error {
			started := time.Now()
			dir := output
			if len(plans) > 1 {
				dir = filepath.Join(output, plan.Target.Slug())
			}

			tr := buildTarget(ctx, eng, proj, res.ID, host, plan, dir)
			tr.Duration = time.Since(started)
			res.Targets[i] = tr
			record(ctx, opts.Ledger, res, tr, started)

			if tr.Err != nil {
				slog.Error("target failed", "platform", plan.Target.Platform, "error", tr.Err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", plan.Target.Platform, tr.Err))
				mu.Unlock()
			} else {
				slog.Info("target built",
					"platform", plan.Target.Platform,
					"output", tr.Output,
					"cache_hit", tr.CacheHit,
					"duration", tr.Duration.Truncate(time.Millisecond),
				)
			}
			return nil
		})
	}
	g.Wait()

	return res, errors.Join(errs...)
}

// Runs the per-target stages of plan. The base stage has already run.
func buildTarget(ctx context.Context, eng Engine, proj *project.Project, id, host string, plan *pipeline.Plan, output string) TargetResult {
	tr := TargetResult{Target: plan.Target}

	x := newExecutor(eng, proj.Name, id, host, plan.Target.Slug())
	defer x.destroy(context.WithoutCancel(ctx))

	for _, s := range plan.Stages {
		if s.Name == pipeline.StageBase {
			continue
		}

		out, err := x.run(ctx, s, output, proj.Compress)
		if err != nil {
			tr.Err = fmt.Errorf("%w: stage %s: %w", classify(s, err), s.Name, err)
			return tr
		}
		if s.Name == pipeline.StageDeps {
			tr.CacheHit = out.cached
		}
		if out.exported != "" {
			tr.Output = out.exported
		}
	}
	return tr
}

// Returns a short random identifier for one release.
func newReleaseID() string {
	return uuid.NewString()[:8]
}

// Returns the failure class for an error raised while running s.
func classify(s pipeline.Stage, err error) error {
	switch {
	case errors.Is(err, ErrCheckFailed), errors.Is(err, assemble.ErrArchMismatch):
		return ErrAssembly
	case s.Name == pipeline.StageRuntime:
		return ErrAssembly
	default:
		return ErrCompile
	}
}

// Appends tr to the ledger. Ledger failures are logged, never fatal.
func record(ctx context.Context, l *ledger.Ledger, res *Result, tr TargetResult, started time.Time) {
	if l == nil {
		return
	}

	e := &ledger.Entry{
		Platform: tr.Target.Platform,
		Triple:   tr.Target.Triple,
		Recipe:   res.Recipe.String(),
		Source:   res.Source,
		CacheHit: tr.CacheHit,
		Started:  started,
		Duration: tr.Duration,
		Status:   ledger.Succeeded,
		Output:   tr.Output,
	}
	if tr.Err != nil {
		e.Status = ledger.Failed
		e.Error = tr.Err.Error()
	}

	if err := l.Record(context.WithoutCancel(ctx), e); err != nil {
		slog.Warn("failed to record build", "platform", tr.Target.Platform, "error", err)
	}
}

// Returns recent ledger entries, newest first.
//
// With a platform only the newest build of that platform's triple is
// returned, or nothing when it has never been built.
func History(ctx context.Context, l *ledger.Ledger, platform string, limit int) ([]ledger.Entry, error) {
	if platform == "" {
		return l.List(ctx, limit)
	}

	t, err := target.Lookup(platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	e, err := l.Last(ctx, t.Triple)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []ledger.Entry{*e}, nil
}
