package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/environ"
)

// Represents the 'kiln env' command.
type EnvCmd struct {
	Check bool `help:"Fail when a credential is missing or a directory is outside the volume."`
}

// Executes the env command.
//
// Prints each persistence variable with the directory it resolves to in the
// current environment.
func (c *EnvCmd) Run(ctx context.Context) error {
	proj, err := loadProject()
	if err != nil {
		return fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	env := environ.FromProcess(proj.Runtime.Volume)
	defaults := environ.Defaults(proj.Runtime.Volume)

	rows := make([][]string, 0, len(environ.Variables))
	for _, v := range environ.Variables {
		source := faintStyle.Render("default")
		if env.Dirs[v.Category] != defaults.Dirs[v.Category] {
			source = "environment"
		}
		rows = append(rows, []string{v.Name, env.Dirs[v.Category], source})
	}
	writeTable(os.Stdout, []string{"VARIABLE", "DIRECTORY", "SOURCE"}, rows)

	outside := env.Outside()
	for _, cat := range outside {
		slog.Warn("directory outside the volume is not persisted", "category", cat, "volume", env.Volume)
	}

	missing := environ.MissingCredentials(os.LookupEnv)
	for _, name := range missing {
		slog.Warn("credential not set", "variable", name)
	}

	if c.Check && (len(outside) > 0 || len(missing) > 0) {
		return fmt.Errorf("%w: environment incomplete (missing %s)", build.ErrConfig, strings.Join(missing, ", "))
	}
	return nil
}
