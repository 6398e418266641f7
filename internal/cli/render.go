package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cruciblehq/kiln/internal/assemble"
	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/environ"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/pipeline"
	"github.com/cruciblehq/kiln/internal/planner"
	"github.com/cruciblehq/kiln/internal/target"
)

// Directory under the source tree receiving the rendered recipe skeleton.
const skeletonDir = ".kiln/skeleton"

// Represents the 'kiln render' command.
type RenderCmd struct {
	targetFlags `embed:""`

	Host   string `help:"Platform the builder stages run on. Defaults to BUILDPLATFORM, then the host." placeholder:"PLATFORM"`
	Output string `short:"o" help:"Write the Dockerfile to FILE instead of stdout." placeholder:"FILE" type:"path"`
}

// Executes the render command.
//
// The recipe skeleton is written under the source tree so the Dockerfile can
// use the source tree as its only build context.
func (c *RenderCmd) Run(ctx context.Context) error {
	t, err := c.target()
	if err != nil {
		return fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	proj, err := loadProject()
	if err != nil {
		return fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	recipe, err := planner.Plan(proj.Source)
	if err != nil {
		return fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	skeleton := filepath.Join(proj.Source, filepath.FromSlash(skeletonDir))
	if err := os.RemoveAll(skeleton); err != nil {
		return err
	}
	if err := recipe.Materialize(skeleton); err != nil {
		return err
	}

	host := or(c.Host, or(c.BuildPlatform, target.Host()))
	plan, err := pipeline.Compose(pipeline.Options{
		Project:  proj,
		Target:   t,
		Recipe:   recipe,
		Host:     host,
		Skeleton: skeleton,
		Env:      environ.Defaults(proj.Runtime.Volume),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", build.ErrConfig, err)
	}
	if err := assemble.Validate(plan.Final()); err != nil {
		return fmt.Errorf("%w: %w", build.ErrAssembly, err)
	}

	var w io.Writer = os.Stdout
	if c.Output != "" {
		f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, paths.DefaultFileMode)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	return pipeline.Render(w, plan, proj.Source)
}
