package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Writes the plan as a Dockerfile.
//
// Host copy sources are written relative to contextRoot, which becomes the
// Docker build context. Every stage context must live inside it. Builder
// stages run on $BUILDPLATFORM; the runtime stage names its target platform
// explicitly, so one file describes one target.
func Render(w io.Writer, plan *Plan, contextRoot string) error {
	r := &renderer{w: w, root: contextRoot, names: map[string]string{}}

	r.line("# syntax=docker/dockerfile:1")
	r.line("# target %s (%s), recipe %s", plan.Target.Platform, plan.Target.Triple, plan.Recipe)

	for _, s := range plan.Stages {
		if err := r.stage(s); err != nil {
			return fmt.Errorf("%w: stage %s: %w", ErrRender, s.Name, err)
		}
	}
	return r.err
}

type renderer struct {
	w     io.Writer
	root  string
	names map[string]string // Commit tag to stage name.
	scope *Scope
	err   error
}

func (r *renderer) line(format string, args ...any) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *renderer) stage(s Stage) error {
	r.line("")
	r.scope = NewScope()

	if name, ok := r.names[s.From]; ok {
		r.line("FROM %s AS %s", name, s.Name)
	} else {
		platform := s.Platform
		if platform == "" {
			platform = "$BUILDPLATFORM"
		}
		r.line("FROM --platform=%s %s AS %s", platform, s.From, s.Name)
	}
	if s.Commit != "" {
		r.names[s.Commit] = s.Name
	}

	for _, step := range Flatten(s.Steps) {
		if err := r.step(s, step); err != nil {
			return err
		}
	}

	for _, c := range s.Checks {
		r.line("# expects %s to be an ELF %s file", c.Source, c.Machine)
	}

	if s.Image != nil {
		r.image(s.Image)
	}
	return nil
}

func (r *renderer) step(s Stage, step Step) error {
	if !step.IsOperation() {
		r.scope.Apply(step)
		if step.Shell != "" {
			r.line("SHELL %s", jsonArray([]string{step.Shell, "-c"}))
		}
		if step.Workdir != "" {
			r.line("WORKDIR %s", step.Workdir)
		}
		if len(step.Env) > 0 {
			r.line("ENV %s", envPairs(step.Env))
		}
		return nil
	}

	if step.Shell != "" {
		return fmt.Errorf("%w: shell override on a single operation has no Dockerfile form", ErrInvalidStage)
	}

	if step.Run != "" {
		cmd := step.Run
		if step.Workdir != "" {
			cmd = "cd " + step.Workdir + " && " + cmd
		}
		if len(step.Env) > 0 {
			cmd = "export " + envPairs(step.Env) + " && " + cmd
		}
		r.line("RUN %s", cmd)
		return nil
	}

	src, dest, err := ParseCopy(step.Copy, r.scope.Resolve(step).Workdir)
	if err != nil {
		return err
	}
	if stage, p, ok := ParseStageSource(src); ok {
		r.line("COPY --from=%s %s %s", stage, p, dest)
		return nil
	}

	rel, err := r.relative(s.Context, src)
	if err != nil {
		return err
	}
	r.line("COPY %s %s", rel, dest)
	return nil
}

func (r *renderer) image(img *ImageConfig) {
	if len(img.Labels) > 0 {
		r.line("LABEL %s", envPairs(img.Labels))
	}
	for _, e := range img.Env {
		k, v, _ := strings.Cut(e, "=")
		r.line("ENV %s=%s", k, quote(v))
	}
	if img.WorkingDir != "" {
		r.line("WORKDIR %s", img.WorkingDir)
	}
	for _, p := range img.ExposedPorts {
		r.line("EXPOSE %s", p)
	}
	if len(img.Volumes) > 0 {
		r.line("VOLUME %s", jsonArray(img.Volumes))
	}
	if hc := img.Healthcheck; hc != nil && len(hc.Test) > 1 {
		cmd := jsonArray(hc.Test[1:])
		if hc.Test[0] == "CMD-SHELL" {
			cmd = strings.Join(hc.Test[1:], " ")
		}
		r.line("HEALTHCHECK --interval=%s --timeout=%s --start-period=%s --retries=%d CMD %s",
			hc.Interval, hc.Timeout, hc.StartPeriod, hc.Retries, cmd)
	}
	r.line("ENTRYPOINT %s", jsonArray(img.Entrypoint))
}

// Returns src, resolved against the stage context, relative to the root.
func (r *renderer) relative(context, src string) (string, error) {
	if context == "" || r.root == "" {
		return src, nil
	}

	abs := src
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(context, src)
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the build context", ErrInvalidStage, abs)
	}
	return filepath.ToSlash(rel), nil
}

func envPairs(env map[string]string) string {
	var pairs []string
	for _, k := range slices.Sorted(maps.Keys(env)) {
		pairs = append(pairs, k+"="+quote(env[k]))
	}
	return strings.Join(pairs, " ")
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\"'$\\") {
		return strconv.Quote(v)
	}
	return v
}

func jsonArray(v []string) string {
	b, _ := json.Marshal(v)
	return string(b)
}
