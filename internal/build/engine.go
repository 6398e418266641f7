package build

import (
	"context"
	"io"

	"github.com/cruciblehq/kiln/internal/runtime"
)

// Starts stage containers and answers cache lookups.
type Engine interface {
	StartContainer(ctx context.Context, from, id, platform string) (Container, error)
	HasImage(ctx context.Context, tag string) (bool, error)
}

// A running stage container.
type Container interface {
	Exec(ctx context.Context, shell, command string, env []string, workdir string) (*runtime.ExecResult, error)
	MkdirAll(ctx context.Context, dir string) error
	CopyTo(ctx context.Context, r io.Reader, destDir string) error
	CopyFrom(ctx context.Context, w io.Writer, path string) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Commit(ctx context.Context, tag string) error
	Export(ctx context.Context, opts runtime.ExportOptions) (string, error)
	Stop(ctx context.Context) error
	Destroy(ctx context.Context)
}

// Returns an [Engine] backed by containerd.
func NewEngine(rt *runtime.Runtime) Engine {
	return containerdEngine{rt: rt}
}

type containerdEngine struct {
	rt *runtime.Runtime
}

func (e containerdEngine) StartContainer(ctx context.Context, from, id, platform string) (Container, error) {
	ctr, err := e.rt.StartContainer(ctx, from, id, platform)
	if err != nil {
		return nil, err
	}
	return ctr, nil
}

func (e containerdEngine) HasImage(ctx context.Context, tag string) (bool, error) {
	return e.rt.HasImage(ctx, tag)
}
