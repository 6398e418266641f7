package target

import (
	"maps"
	"slices"
	"strings"
)

// Toolchain preparation needed before compiling for a target.
type Provision struct {
	Commands []string          // Shell commands run in order.
	Env      map[string]string // Environment applied to every compile step.
}

// Returns the toolchain preparation for building this target on host.
//
// Every target adds its Rust standard library via rustup, which is a no-op on
// the host's own triple. When the target differs from the host, the foreign
// dpkg architecture is registered, the target's packages are installed, and
// the target's environment overrides apply. Native builds need neither.
func (t Target) Provision(host string) Provision {
	p := Provision{
		Commands: []string{"rustup target add " + t.Triple},
		Env:      map[string]string{},
	}

	if t.IsNative(host) {
		return p
	}

	var cmds []string
	if t.ForeignArch {
		cmds = append(cmds, "dpkg --add-architecture "+t.DebianArch)
	}
	cmds = append(cmds,
		"apt-get update",
		"apt-get install -y --no-install-recommends "+strings.Join(t.Packages, " "),
		"rm -rf /var/lib/apt/lists/*",
	)

	p.Commands = append(cmds, p.Commands...)
	maps.Copy(p.Env, t.Env)
	return p
}

// Formats the environment as sorted "key=value" strings.
func (p Provision) Environ() []string {
	keys := slices.Sorted(maps.Keys(p.Env))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+p.Env[k])
	}
	return env
}
