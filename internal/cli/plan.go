package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/planner"
	"github.com/cruciblehq/kiln/internal/protocol"
)

// Represents the 'kiln plan' command.
type PlanCmd struct {
	Save    string `help:"Write the recipe as JSON to FILE." placeholder:"FILE" type:"path"`
	Compare string `help:"Report whether the recipe matches one saved with --save." placeholder:"FILE" type:"existingfile"`
	Daemon  bool   `help:"Compute the recipe in the kiln daemon."`
}

// Executes the plan command.
//
// Prints the recipe digest, which changes only when dependency declarations
// change, alongside the source fingerprint, which changes with any source
// edit.
func (c *PlanCmd) Run(ctx context.Context) error {
	res, err := c.plan(ctx)
	if err != nil {
		return err
	}

	var cache string
	if c.Compare != "" {
		same, err := recipeMatches(c.Compare, res.Recipe)
		if err != nil {
			return err
		}
		cache = status(true, "reused")
		if !same {
			cache = status(false, "invalidated")
		}
	}

	printPlan(res, cache)
	return nil
}

func (c *PlanCmd) plan(ctx context.Context) (*protocol.PlanResult, error) {
	if c.Daemon {
		path, err := projectPath()
		if err != nil {
			return nil, err
		}
		var res protocol.PlanResult
		if err := call(ctx, protocol.CmdPlan, &protocol.PlanRequest{Project: path}, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}

	proj, err := loadProject()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	recipe, err := planner.Plan(proj.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	fingerprint, err := planner.Fingerprint(proj.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	if c.Save != "" {
		if err := recipe.Save(c.Save); err != nil {
			return nil, err
		}
	}

	return &protocol.PlanResult{
		Recipe:      recipe.Digest().String(),
		Fingerprint: fingerprint,
		Manifests:   len(recipe.Manifests),
		Locked:      recipe.Locked(),
		Packages:    recipe.LocalPackages(),
	}, nil
}

// Whether the recipe saved in file has the given digest.
func recipeMatches(file, recipe string) (bool, error) {
	saved, err := planner.Load(file)
	if err != nil {
		return false, fmt.Errorf("%w: %w", build.ErrConfig, err)
	}
	return saved.Digest().String() == recipe, nil
}

// Prints res. A non-empty cache reports the outcome of --compare.
func printPlan(res *protocol.PlanResult, cache string) {
	rows := [][]string{
		{"recipe", res.Recipe},
		{"source", faintStyle.Render(res.Fingerprint)},
		{"manifests", fmt.Sprint(res.Manifests)},
		{"locked", status(res.Locked, fmt.Sprint(res.Locked))},
		{"packages", strings.Join(res.Packages, ", ")},
	}
	if cache != "" {
		rows = append(rows, []string{"deps cache", cache})
	}
	writeTable(os.Stdout, []string{"FIELD", "VALUE"}, rows)
}
