package build

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cruciblehq/kiln/internal/assemble"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/pipeline"
	"github.com/cruciblehq/kiln/internal/runtime"
)

// Runs the stages of one target against an engine.
type executor struct {
	engine     Engine
	resource   string               // Project name, used as a prefix for container IDs.
	runID      string               // Release ID, keeps container IDs of concurrent builds apart.
	host       string               // Platform for stages that do not name one.
	slug       string               // Target slug, empty for shared stages.
	containers []Container          // Every container started, destroyed after the target completes.
	stages     map[string]Container // Named stage containers for cross-stage copies.
}

// What running a stage produced.
type stageOutcome struct {
	cached   bool   // The commit tag already existed and the stage was skipped.
	exported string // Archive path for the exported stage.
}

func newExecutor(eng Engine, resource, run, host, slug string) *executor {
	return &executor{
		engine:   eng,
		resource: resource,
		runID:    run,
		host:     host,
		slug:     slug,
		stages:   make(map[string]Container),
	}
}

// Runs a single stage.
//
// A stage with a commit tag that already exists is skipped. Otherwise a
// container is started from the stage's base, its steps and checks run, and
// the result is committed, exported to output, or left running for later
// stages to copy from.
func (x *executor) run(ctx context.Context, s pipeline.Stage, output string, compress bool) (stageOutcome, error) {
	platform := s.Platform
	if platform == "" {
		platform = x.host
	}

	if s.Commit != "" {
		ok, err := x.engine.HasImage(ctx, s.Commit)
		if err != nil {
			return stageOutcome{}, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
		}
		if ok {
			slog.Info("stage cached", "stage", s.Name, "tag", s.Commit, "platform", platform)
			return stageOutcome{cached: true}, nil
		}
	}

	slog.Info(fmt.Sprintf("building stage %s", s.Name), "platform", platform)

	ctr, err := x.engine.StartContainer(ctx, s.From, x.containerID(s.Name), platform)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}
	x.containers = append(x.containers, ctr)
	x.stages[s.Name] = ctr

	steps := &stepRunner{ctr: ctr, source: s.Context, stages: x.stages}
	if err := steps.run(ctx, s.Steps, pipeline.NewScope()); err != nil {
		return stageOutcome{}, err
	}

	if err := x.check(ctx, s.Checks); err != nil {
		return stageOutcome{}, err
	}

	if s.Commit != "" {
		if err := ctr.Stop(ctx); err != nil {
			return stageOutcome{}, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
		}
		if err := ctr.Commit(ctx, s.Commit); err != nil {
			return stageOutcome{}, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
		}
	}

	if s.Transient {
		return stageOutcome{}, nil
	}

	if err := os.MkdirAll(output, paths.DefaultDirMode); err != nil {
		return stageOutcome{}, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err := ctr.Stop(ctx); err != nil {
		return stageOutcome{}, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	path, err := ctr.Export(ctx, runtime.ExportOptions{
		Dir:      output,
		Name:     x.resource + ":" + x.slug,
		Config:   imageConfig(s.Image),
		Compress: compress,
	})
	if err != nil {
		return stageOutcome{}, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}
	return stageOutcome{exported: path}, nil
}

// Verifies the ELF machine of every checked file.
func (x *executor) check(ctx context.Context, checks []pipeline.Check) error {
	for _, c := range checks {
		stage, p, ok := pipeline.ParseStageSource(c.Source)
		if !ok {
			return fmt.Errorf("%w: %s is not a stage path", ErrCheckFailed, c.Source)
		}
		ctr, ok := x.stages[stage]
		if !ok {
			return fmt.Errorf("%w: stage %q not found", ErrCheckFailed, stage)
		}

		data, err := ctr.ReadFile(ctx, p)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCheckFailed, c.Source, err)
		}
		if err := assemble.CheckELF(bytes.NewReader(data), c.Machine); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCheckFailed, c.Source, err)
		}
		slog.Debug("architecture verified", "file", c.Source, "machine", c.Machine)
	}
	return nil
}

// Destroys all stage containers.
func (x *executor) destroy(ctx context.Context) {
	for _, ctr := range x.containers {
		ctr.Destroy(ctx)
	}
}

// Returns a unique container ID for a stage, scoped to this release and target.
func (x *executor) containerID(stage string) string {
	if x.slug == "" {
		return fmt.Sprintf("%s-%s-stage-%s", x.resource, x.runID, stage)
	}
	return fmt.Sprintf("%s-%s-%s-stage-%s", x.resource, x.runID, x.slug, stage)
}

// Converts a stage image definition to the runtime's export config.
func imageConfig(img *pipeline.ImageConfig) *runtime.ImageConfig {
	if img == nil {
		return nil
	}

	cfg := &runtime.ImageConfig{
		Entrypoint:   img.Entrypoint,
		Env:          img.Env,
		ExposedPorts: img.ExposedPorts,
		Volumes:      img.Volumes,
		WorkingDir:   img.WorkingDir,
		Labels:       img.Labels,
	}
	if h := img.Healthcheck; h != nil {
		cfg.Healthcheck = &runtime.Healthcheck{
			Test:        h.Test,
			Interval:    h.Interval,
			Timeout:     h.Timeout,
			StartPeriod: h.StartPeriod,
			Retries:     h.Retries,
		}
	}
	return cfg
}
