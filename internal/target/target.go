package target

import (
	"debug/elf"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/containerd/platforms"
)

const (
	PlatformAMD64 = "linux/amd64"
	PlatformARM64 = "linux/arm64"
)

// A compilation target and its cross-compilation requirements.
type Target struct {
	Platform    string            // OCI platform identifier (e.g., "linux/arm64").
	Triple      string            // Rust compilation triple.
	DebianArch  string            // Debian architecture name, used for foreign packages.
	Multiarch   string            // Multiarch tuple naming the system library directory.
	Machine     elf.Machine       // ELF machine expected in binaries built for this target.
	Packages    []string          // Packages installed when cross-compiling for this target.
	Env         map[string]string // Environment overrides applied while compiling.
	ForeignArch bool              // Whether Packages reference a foreign dpkg architecture.
}

var table = map[string]Target{
	PlatformAMD64: {
		Platform:   PlatformAMD64,
		Triple:     "x86_64-unknown-linux-gnu",
		DebianArch: "amd64",
		Multiarch:  "x86_64-linux-gnu",
		Machine:    elf.EM_X86_64,
		Packages: []string{
			"libssl-dev:amd64",
			"zlib1g-dev:amd64",
			"gcc-x86-64-linux-gnu",
			"libc6-dev-amd64-cross",
		},
		Env: map[string]string{
			"PKG_CONFIG_PATH":        "/usr/lib/x86_64-linux-gnu/pkgconfig",
			"PKG_CONFIG_ALLOW_CROSS": "1",
			"CARGO_TARGET_X86_64_UNKNOWN_LINUX_GNU_LINKER": "x86_64-linux-gnu-gcc",
		},
		ForeignArch: true,
	},
	PlatformARM64: {
		Platform:   PlatformARM64,
		Triple:     "aarch64-unknown-linux-gnu",
		DebianArch: "arm64",
		Multiarch:  "aarch64-linux-gnu",
		Machine:    elf.EM_AARCH64,
		Packages: []string{
			"libssl-dev:arm64",
			"zlib1g-dev:arm64",
			"gcc-aarch64-linux-gnu",
			"libc6-dev-arm64-cross",
		},
		Env: map[string]string{
			"PKG_CONFIG_PATH":        "/usr/lib/aarch64-linux-gnu/pkgconfig",
			"PKG_CONFIG_ALLOW_CROSS": "1",
			"CARGO_TARGET_AARCH64_UNKNOWN_LINUX_GNU_LINKER": "aarch64-linux-gnu-gcc",
		},
		ForeignArch: true,
	},
}

// Returns the target for a platform identifier.
//
// Only exact identifiers are accepted. Aliases such as "linux/aarch64" and
// values with surrounding whitespace are rejected rather than normalized so
// that every accepted value appears in the table verbatim.
func Lookup(platform string) (Target, error) {
	t, ok := table[platform]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedPlatform, platform, strings.Join(Platforms(), ", "))
	}
	return t.clone(), nil
}

// Picks the platform to build from the sources a build system may supply.
//
// An explicit argument wins. Otherwise the ambient target platform is used,
// then the build platform. With nothing supplied the result is
// [ErrUnspecifiedPlatform]; the builder never falls back to the host.
func Select(explicit, buildPlatform, targetPlatform string) (Target, error) {
	for _, candidate := range []string{explicit, targetPlatform, buildPlatform} {
		if strings.TrimSpace(candidate) != "" {
			return Lookup(candidate)
		}
	}
	return Target{}, ErrUnspecifiedPlatform
}

// Resolves a list of platforms, failing on the first unsupported entry.
//
// An empty list selects every supported target. Duplicates are removed.
func Resolve(platformIDs []string) ([]Target, error) {
	if len(platformIDs) == 0 {
		platformIDs = Platforms()
	}

	seen := make(map[string]bool, len(platformIDs))
	targets := make([]Target, 0, len(platformIDs))
	for _, p := range platformIDs {
		t, err := Lookup(p)
		if err != nil {
			return nil, err
		}
		if seen[t.Platform] {
			continue
		}
		seen[t.Platform] = true
		targets = append(targets, t)
	}
	return targets, nil
}

// Returns every supported platform identifier in sorted order.
func Platforms() []string {
	return slices.Sorted(maps.Keys(table))
}

// Returns every supported target in platform order.
func All() []Target {
	targets := make([]Target, 0, len(table))
	for _, p := range Platforms() {
		targets = append(targets, table[p].clone())
	}
	return targets
}

// Returns the platform of the machine kiln runs on, in "os/arch" form.
//
// The build stages run on this platform and cross-compile from it.
func Host() string {
	p := platforms.DefaultSpec()
	return p.OS + "/" + p.Architecture
}

// Whether binaries for this target can be built with the host's native
// toolchain.
func (t Target) IsNative(host string) bool {
	return t.Platform == host
}

// Directory holding system shared libraries for this target inside a Debian
// filesystem, native or foreign.
func (t Target) LibDir() string {
	return "/usr/lib/" + t.Multiarch
}

// Path, inside a Debian filesystem, of a shared library built for this target.
func (t Target) LibPath(name string) string {
	return t.LibDir() + "/" + name
}

// Filesystem-safe form of the platform (e.g., "linux-arm64").
func (t Target) Slug() string {
	return strings.ReplaceAll(t.Platform, "/", "-")
}

func (t Target) String() string {
	return t.Platform + " (" + t.Triple + ")"
}

// Returns a copy whose slices and maps do not alias the table.
func (t Target) clone() Target {
	t.Packages = slices.Clone(t.Packages)
	t.Env = maps.Clone(t.Env)
	return t
}
