package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/ledger"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/protocol"
)

// Represents the 'kiln build' command.
type BuildCmd struct {
	targetFlags `embed:""`

	Output string `short:"o" help:"Directory receiving the image archive." placeholder:"DIR" type:"path"`
	Daemon bool   `help:"Run the build in the kiln daemon."`
}

// Executes the build command for the selected target.
func (c *BuildCmd) Run(ctx context.Context) error {
	t, err := c.target()
	if err != nil {
		return fmt.Errorf("%w: %w", build.ErrConfig, err)
	}
	return runBuild(ctx, protocol.CmdBuild, []string{t.Platform}, c.Output, 0, c.Daemon)
}

// Represents the 'kiln release' command.
type ReleaseCmd struct {
	Platforms []string `short:"P" name:"platform" help:"Platforms to build. Defaults to every supported target." placeholder:"PLATFORM"`
	Output    string   `short:"o" help:"Directory receiving per-target archives." placeholder:"DIR" type:"path"`
	Jobs      int      `short:"j" help:"Targets built at once. Zero builds all at once."`
	Daemon    bool     `help:"Run the release in the kiln daemon."`
}

// Executes the release command.
func (c *ReleaseCmd) Run(ctx context.Context) error {
	return runBuild(ctx, protocol.CmdRelease, c.Platforms, c.Output, c.Jobs, c.Daemon)
}

// Runs a build or release in-process or through the daemon and prints a
// summary of every target.
//
// Jobs applies to in-process releases only; the daemon uses its own limit.
func runBuild(ctx context.Context, cmd protocol.Command, platforms []string, output string, jobs int, daemon bool) error {
	var (
		res *protocol.BuildResult
		err error
	)
	if daemon {
		res, err = remoteBuild(ctx, cmd, platforms, output)
	} else {
		res, err = localBuild(ctx, cmd, platforms, output, jobs)
	}

	if res != nil {
		printBuild(res)
	}
	return err
}

func remoteBuild(ctx context.Context, cmd protocol.Command, platforms []string, output string) (*protocol.BuildResult, error) {
	path, err := projectPath()
	if err != nil {
		return nil, err
	}

	var res protocol.BuildResult
	req := &protocol.BuildRequest{Project: path, Platforms: platforms, Output: output}
	if err := call(ctx, cmd, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func localBuild(ctx context.Context, cmd protocol.Command, platforms []string, output string, jobs int) (*protocol.BuildResult, error) {
	proj, err := loadProject()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", build.ErrConfig, err)
	}

	rt, err := openRuntime()
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	l, err := ledger.Open(paths.Ledger())
	if err != nil {
		slog.Warn("build history unavailable", "error", err)
	} else {
		defer l.Close()
	}

	run := build.Release
	if cmd == protocol.CmdBuild {
		run = build.Build
	}

	res, err := run(ctx, build.NewEngine(rt), build.Options{
		Project:   proj,
		Platforms: platforms,
		Output:    output,
		Ledger:    l,
		Jobs:      jobs,
	})
	if res == nil {
		return nil, err
	}
	return res.Report(), err
}

func printBuild(res *protocol.BuildResult) {
	rows := make([][]string, 0, len(res.Targets))
	for _, t := range res.Targets {
		cache := "miss"
		if t.CacheHit {
			cache = "hit"
		}

		outcome := status(true, "ok")
		detail := t.Output
		if t.Error != "" {
			outcome = status(false, "failed")
			detail = t.Error
		}

		rows = append(rows, []string{
			t.Platform,
			outcome,
			cache,
			t.Duration.Truncate(time.Second).String(),
			detail,
		})
	}

	fmt.Fprintln(os.Stdout, faintStyle.Render("recipe "+res.Recipe))
	writeTable(os.Stdout, []string{"PLATFORM", "STATUS", "DEPS", "TIME", "OUTPUT"}, rows)
}
