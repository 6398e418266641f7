package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Bytes of each output stream kept in an [ExecResult]. Cargo output for a
// full release build runs to megabytes; only the end is useful in an error.
const outputLimit = 64 << 10

var execSeq atomic.Uint64

func nextExecID() string {
	return fmt.Sprintf("exec-%d", execSeq.Add(1))
}

// Output of a command run inside a container.
type ExecResult struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Last bytes of standard output.
	Stderr   string // Last bytes of standard error.
}

// Runs "shell -c command" inside the container.
//
// env is overlaid on the image environment and workdir replaces its working
// directory, for this process only. Output lines are logged at debug level
// as they arrive and the tail of each stream is returned. A non-zero exit
// code is reported in the result, not as an error.
func (c *Container) Exec(ctx context.Context, shell, command string, env []string, workdir string) (*ExecResult, error) {
	log := slog.With("container", c.id)
	stdout := &tailBuffer{max: outputLimit}
	stderr := &tailBuffer{max: outputLimit}
	outLog := &lineLogger{logger: log, stream: "stdout"}
	errLog := &lineLogger{logger: log, stream: "stderr"}

	code, err := c.exec(ctx, processIO{
		stdout: io.MultiWriter(stdout, outLog),
		stderr: io.MultiWriter(stderr, errLog),
	}, env, workdir, shell, "-c", command)
	outLog.flush()
	errLog.flush()
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Streams attached to an exec process. Nil writers discard and a nil stdin
// leaves the process without input.
type processIO struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Runs args in the container's task as an extra process and returns its exit
// code once it has exited and its output has been drained.
//
// The task must already be running; see [Container.startTask]. When stdin is
// set, the process input is closed after the reader reaches EOF. The shim
// holds both ends of the stdin FIFO, so EOF does not reach the process
// otherwise.
func (c *Container) exec(ctx context.Context, pio processIO, env []string, workdir string, args ...string) (int, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	pspec, err := processSpec(ctx, ctr, env, workdir, args)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if pio.stdout == nil {
		pio.stdout = io.Discard
	}
	if pio.stderr == nil {
		pio.stderr = io.Discard
	}
	var stdinDone <-chan struct{}
	if pio.stdin != nil {
		dr := newDoneReader(pio.stdin)
		pio.stdin = dr
		stdinDone = dr.done
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(pio.stdin, pio.stdout, pio.stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	// Delete kills the process if it is still running and waits for the IO
	// copies to finish.
	defer process.Delete(context.WithoutCancel(ctx), containerd.WithProcessKill)

	statusC, err := process.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	if err := process.Start(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if stdinDone != nil {
		go func() {
			select {
			case <-stdinDone:
				process.CloseIO(ctx, containerd.WithStdinCloser)
			case <-ctx.Done():
			}
		}()
	}

	select {
	case status := <-statusC:
		code, _, err := status.Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		return int(code), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Derives the process spec for an exec from the container's own spec.
func processSpec(ctx context.Context, ctr containerd.Container, env []string, workdir string, args []string) (*specs.Process, error) {
	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args
	pspec.Env = overlayEnv(pspec.Env, env)
	if workdir != "" {
		pspec.Cwd = workdir
	}
	return &pspec, nil
}
