package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/kiln/internal/pipeline"
)

// Runs a stage's steps in order against its container.
type stepRunner struct {
	ctr    Container
	source string               // Host directory that copy sources resolve against.
	stages map[string]Container // Earlier stages, by name.
}

// Runs steps under scope. Groups apply their modifiers for the rest of the
// enclosing list, the same as standalone modifiers.
func (r *stepRunner) run(ctx context.Context, steps []pipeline.Step, scope *pipeline.Scope) error {
	for i, step := range steps {
		var err error
		switch {
		case len(step.Steps) > 0:
			scope.Apply(step)
			err = r.run(ctx, step.Steps, scope)
		case step.IsOperation():
			err = r.operation(ctx, step, scope.Resolve(step))
		default:
			scope.Apply(step)
		}
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *stepRunner) operation(ctx context.Context, step pipeline.Step, scope pipeline.Scope) error {
	if scope.Workdir != "" {
		if err := r.ctr.MkdirAll(ctx, scope.Workdir); err != nil {
			return err
		}
	}

	if step.Copy != "" {
		return executeCopy(ctx, r.ctr, step.Copy, scope.Workdir, r.source, r.stages)
	}

	slog.Debug("run", "command", step.Run, "shell", scope.Shell, "workdir", scope.Workdir)
	result, err := r.ctr.Exec(ctx, scope.Shell, step.Run, scope.Environ(), scope.Workdir)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %q: exit code %d: %s", ErrCommandFailed, step.Run, result.ExitCode, tail(result.Stderr, stderrTail))
	}
	return nil
}

// Bytes of stderr kept in a failed command's error.
const stderrTail = 4096

// Returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
