package pipeline

import (
	"debug/elf"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// A unit of work inside a stage.
//
// Run and Copy are operations. Shell, Workdir and Env are modifiers: on a
// step without an operation they persist for the rest of the stage, on an
// operation they apply to that operation only. A step with nested Steps is a
// group whose modifiers persist before its children run.
type Step struct {
	Run     string            `json:"run,omitempty"`
	Copy    string            `json:"copy,omitempty"` // "src dest" or "stage:src dest"
	Shell   string            `json:"shell,omitempty"`
	Workdir string            `json:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Steps   []Step            `json:"steps,omitempty"`
}

// Architecture assertion evaluated after a stage's steps.
type Check struct {
	Source  string      `json:"source"`  // "stage:path" of the file to inspect.
	Machine elf.Machine `json:"machine"` // Required ELF machine.
}

// Docker-compatible container health check.
type Healthcheck struct {
	Test        []string      `json:"test"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	StartPeriod time.Duration `json:"start_period"`
	Retries     int           `json:"retries"`
}

// Configuration written to the exported image.
type ImageConfig struct {
	Entrypoint   []string          `json:"entrypoint"`
	Env          []string          `json:"env,omitempty"`
	ExposedPorts []string          `json:"exposed_ports,omitempty"` // "8080/tcp"
	Volumes      []string          `json:"volumes,omitempty"`
	WorkingDir   string            `json:"working_dir,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	Healthcheck  *Healthcheck      `json:"healthcheck,omitempty"`
}

// One container's worth of work.
type Stage struct {
	Name      string       `json:"name"`
	From      string       `json:"from"`               // Image reference, committed tag, or archive path.
	Platform  string       `json:"platform,omitempty"` // Empty means the host platform.
	Transient bool         `json:"transient,omitempty"`
	Commit    string       `json:"commit,omitempty"` // Tag committed on success; an existing tag skips the stage.
	Context   string       `json:"-"`                // Host directory relative copy sources resolve against.
	Steps     []Step       `json:"steps"`
	Checks    []Check      `json:"checks,omitempty"`
	Image     *ImageConfig `json:"image,omitempty"` // Set on the exported stage only.
}

// Returns the digest of the stage definition with its commit tag cleared.
//
// Extra values are mixed in ahead of the definition, so inputs that reach the
// stage through its context (a recipe, a triple) can take part in the key.
func (s Stage) Key(extra ...string) digest.Digest {
	s.Commit = ""
	b, err := json.Marshal(s)
	if err != nil {
		panic(err) // Stage holds only marshalable fields.
	}

	d := digest.Canonical.Digester()
	for _, e := range extra {
		fmt.Fprintf(d.Hash(), "%d:%s;", len(e), e)
	}
	d.Hash().Write(b)
	return d.Digest()
}

// Splits a copy string into source and destination.
//
// The string must hold exactly two whitespace-separated tokens. A relative
// destination is joined with workdir, which must then be set.
func ParseCopy(s, workdir string) (src, dest string, err error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: expected source and destination, got %q", ErrInvalidCopy, s)
	}

	src, dest = parts[0], parts[1]

	if !path.IsAbs(dest) {
		if workdir == "" {
			return "", "", fmt.Errorf("%w: relative dest %q requires workdir", ErrInvalidCopy, dest)
		}
		dest = path.Join(workdir, dest)
	}

	return src, dest, nil
}

// Splits a cross-stage source of the form "stage:path".
//
// Returns false for host paths. A colon after a path separator is not a
// stage prefix (e.g. "/foo:bar").
func ParseStageSource(src string) (stage, p string, ok bool) {
	i := strings.IndexByte(src, ':')
	if i < 1 {
		return "", "", false
	}

	if strings.ContainsRune(src[:i], '/') {
		return "", "", false
	}

	return src[:i], src[i+1:], true
}

// Returns the steps with groups flattened and group modifiers pushed down
// as standalone steps, in execution order.
func Flatten(steps []Step) []Step {
	var out []Step
	for _, s := range steps {
		if len(s.Steps) == 0 {
			out = append(out, s)
			continue
		}
		group := s
		group.Steps = nil
		if group.Shell != "" || group.Workdir != "" || len(group.Env) > 0 {
			out = append(out, group)
		}
		out = append(out, Flatten(s.Steps)...)
	}
	return out
}
