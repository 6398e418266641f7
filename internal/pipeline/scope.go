package pipeline

import (
	"maps"
	"slices"
)

// Shell used for run steps when no shell modifier has been set.
const DefaultShell = "/bin/sh"

// Modifiers in effect at a point in a stage's step list.
//
// A scope flows linearly through the steps. Standalone modifiers and groups
// update it for the rest of the stage via [Scope.Apply]; an operation reads
// its effective values via [Scope.Resolve] without changing the scope. The
// executor, the Dockerfile renderer and the image validator all walk steps
// this way, so a stage means the same thing to each of them.
type Scope struct {
	Shell   string
	Workdir string
	Env     map[string]string
}

// Returns the scope at the start of a stage.
func NewScope() *Scope {
	return &Scope{
		Shell: DefaultShell,
		Env:   make(map[string]string),
	}
}

// Persists the modifiers of step for every later step.
func (s *Scope) Apply(step Step) {
	if step.Shell != "" {
		s.Shell = step.Shell
	}
	if step.Workdir != "" {
		s.Workdir = step.Workdir
	}
	if s.Env == nil {
		s.Env = make(map[string]string, len(step.Env))
	}
	maps.Copy(s.Env, step.Env)
}

// Returns the values in effect for step, with its own modifiers overlaid.
// The receiver is not modified.
func (s *Scope) Resolve(step Step) Scope {
	resolved := Scope{
		Shell:   s.Shell,
		Workdir: s.Workdir,
		Env:     make(map[string]string, len(s.Env)+len(step.Env)),
	}
	maps.Copy(resolved.Env, s.Env)
	maps.Copy(resolved.Env, step.Env)

	if step.Shell != "" {
		resolved.Shell = step.Shell
	}
	if step.Workdir != "" {
		resolved.Workdir = step.Workdir
	}
	return resolved
}

// Formats the environment as sorted "key=value" entries.
func (s Scope) Environ() []string {
	env := make([]string, 0, len(s.Env))
	for _, k := range slices.Sorted(maps.Keys(s.Env)) {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}

// Whether step runs a command or copies files, as opposed to only setting
// modifiers.
func (step Step) IsOperation() bool {
	return step.Run != "" || step.Copy != ""
}
