package build

import (
	"archive/tar"
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cruciblehq/kiln/internal/runtime"
)

// In-memory engine recording every container it starts.
type fakeEngine struct {
	mu         sync.Mutex
	images     map[string]bool // Committed tags.
	started    []string        // Container IDs in start order.
	fail       string          // Run commands containing this exit non-zero.
	machine    elf.Machine     // Machine of every file read when set.
	exports    []runtime.ExportOptions
	containers map[string]*fakeContainer
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		images:     make(map[string]bool),
		containers: make(map[string]*fakeContainer),
	}
}

func (e *fakeEngine) StartContainer(ctx context.Context, from, id, platform string) (Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, id)
	c := &fakeContainer{engine: e, id: id, from: from, platform: platform}
	e.containers[id] = c
	return c, nil
}

func (e *fakeEngine) HasImage(ctx context.Context, tag string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[tag], nil
}

// Number of started containers whose ID ends with suffix.
func (e *fakeEngine) count(suffix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, id := range e.started {
		if strings.HasSuffix(id, suffix) {
			n++
		}
	}
	return n
}

type fakeContainer struct {
	engine    *fakeEngine
	id        string
	from      string
	platform  string
	runs      []string
	envs      [][]string
	copies    []string // Destination directories passed to CopyTo.
	entries   []string // Archive entry names received by CopyTo.
	stopped   bool
	destroyed bool
}

func (c *fakeContainer) Exec(ctx context.Context, shell, command string, env []string, workdir string) (*runtime.ExecResult, error) {
	c.runs = append(c.runs, command)
	c.envs = append(c.envs, env)
	if c.engine.fail != "" && strings.Contains(command, c.engine.fail) {
		return &runtime.ExecResult{ExitCode: 101, Stderr: "error: could not compile `boilmaster`"}, nil
	}
	return &runtime.ExecResult{}, nil
}

func (c *fakeContainer) MkdirAll(ctx context.Context, dir string) error {
	return nil
}

func (c *fakeContainer) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	c.copies = append(c.copies, destDir)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		c.entries = append(c.entries, hdr.Name)
	}
}

func (c *fakeContainer) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	data := c.file(p)
	tw := tar.NewWriter(w)
	if err := tw.WriteHeader(&tar.Header{Name: path.Base(p), Mode: 0755, Size: int64(len(data)), Typeflag: tar.TypeReg}); err != nil {
		return err
	}
	if _, err := tw.Write(data); err != nil {
		return err
	}
	return tw.Close()
}

func (c *fakeContainer) ReadFile(ctx context.Context, p string) ([]byte, error) {
	return c.file(p), nil
}

// Returns an ELF header matching the architecture named in p.
func (c *fakeContainer) file(p string) []byte {
	if c.engine.machine != elf.EM_NONE {
		return elfHeader(c.engine.machine)
	}
	if strings.Contains(p, "aarch64") {
		return elfHeader(elf.EM_AARCH64)
	}
	return elfHeader(elf.EM_X86_64)
}

func (c *fakeContainer) Commit(ctx context.Context, tag string) error {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.engine.images[tag] = true
	return nil
}

func (c *fakeContainer) Export(ctx context.Context, opts runtime.ExportOptions) (string, error) {
	p := filepath.Join(opts.Dir, "image.tar")
	if err := os.WriteFile(p, []byte(fmt.Sprintf("image %s", opts.Name)), 0644); err != nil {
		return "", err
	}
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.engine.exports = append(c.engine.exports, opts)
	return p, nil
}

func (c *fakeContainer) Stop(ctx context.Context) error {
	c.stopped = true
	return nil
}

func (c *fakeContainer) Destroy(ctx context.Context) {
	c.destroyed = true
}

func elfHeader(machine elf.Machine) []byte {
	h := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Ehsize:    64,
		Phentsize: 56,
		Shentsize: 64,
	}
	copy(h.Ident[:], []byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)})

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, h)
	return buf.Bytes()
}
