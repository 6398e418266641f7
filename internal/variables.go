package internal

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Program name, used for the CLI, the log group and image labels.
const Name = "kiln"

// Set with -ldflags "-X github.com/cruciblehq/kiln/internal.version=...".
var (
	version   = ""
	stage     = "" // Release channel, normally the git branch.
	gitCommit = ""

	rawQuiet   = "false"
	rawDebug   = "false"
	rawVerbose = "false"
)

// Describes the running kiln binary.
type BuildInfo struct {
	Version  string // Without a leading "v"; empty for local builds.
	Stage    string
	Commit   string
	Arch     string
	Modified bool // Built from a dirty tree, as stamped by the Go toolchain.
}

// Returns the build metadata. Values missing from the linker flags fall back
// to the VCS stamp the Go toolchain embeds.
func Info() BuildInfo {
	info := BuildInfo{
		Version: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(version)), "v"),
		Stage:   strings.ToLower(strings.TrimSpace(stage)),
		Commit:  strings.TrimSpace(gitCommit),
		Arch:    runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	return info
}

// Whether the binary was built outside the release pipeline, which always
// sets a version and a stage.
func (b BuildInfo) Local() bool {
	return b.Version == "" || b.Stage == ""
}

// Formats as "<version>[+<stage>] <commit> [<arch>]", with the stage omitted
// on main. Local builds format as "(local)", plus the commit when known.
func (b BuildInfo) String() string {
	commit := b.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if b.Modified && commit != "" {
		commit += "-dirty"
	}

	if b.Local() {
		if commit == "" {
			return "(local)"
		}
		return "(local) " + commit
	}

	v := b.Version
	if b.Stage != "main" {
		v += "+" + b.Stage
	}
	return fmt.Sprintf("%s %s [%s]", v, commit, b.Arch)
}

func VersionString() string {
	return Info().String()
}

// Value of the vendor label on images kiln produces.
func Producer() string {
	if b := Info(); !b.Local() {
		return Name + "/" + b.Version
	}
	return Name
}
