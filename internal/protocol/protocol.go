package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cruciblehq/kiln/internal/ledger"
)

// Current protocol version. Envelopes with any other version are rejected.
const Version = 1

// Command carried by an envelope.
type Command string

const (
	CmdPlan     Command = "plan"
	CmdBuild    Command = "build"
	CmdRelease  Command = "release"
	CmdHistory  Command = "history"
	CmdStatus   Command = "status"
	CmdShutdown Command = "shutdown"

	CmdOK    Command = "ok"
	CmdError Command = "error"
)

// Wire frame for every message.
type Envelope struct {
	Version int             `json:"version"`
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Asks the daemon to compute the dependency recipe of a project.
type PlanRequest struct {
	Project string `json:"project"` // Path to kiln.toml, or a directory holding it.
}

// Summary of a computed recipe.
type PlanResult struct {
	Recipe      string   `json:"recipe"`      // Recipe digest.
	Fingerprint string   `json:"fingerprint"` // Source tree fingerprint.
	Manifests   int      `json:"manifests"`
	Locked      bool     `json:"locked"`
	Packages    []string `json:"packages"` // Local crates.
}

// Asks the daemon to build targets. CmdBuild requires exactly one platform;
// CmdRelease builds every listed platform, or all when none are listed.
type BuildRequest struct {
	Project   string   `json:"project"`
	Platforms []string `json:"platforms,omitempty"`
	Output    string   `json:"output,omitempty"` // Overrides the project output directory.
}

// Outcome for one target.
type TargetResult struct {
	Platform string        `json:"platform"`
	Triple   string        `json:"triple"`
	Output   string        `json:"output,omitempty"`
	CacheHit bool          `json:"cache_hit"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Outcome of a build or release.
type BuildResult struct {
	Recipe  string         `json:"recipe"`
	Targets []TargetResult `json:"targets"`
}

// Asks for recent build history.
type HistoryRequest struct {
	Limit    int    `json:"limit,omitempty"`
	Platform string `json:"platform,omitempty"` // Newest build of this platform only.
}

// Recent builds, newest first.
type HistoryResult struct {
	Entries []ledger.Entry `json:"entries"`
}

// Daemon state.
type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Builds  int    `json:"builds"` // Completed build and release commands.
	Active  int    `json:"active"` // Commands in progress.
}

// Failure reported by the daemon. Class is "config", "compile" or "assembly"
// when the failure belongs to one of those categories.
type ErrorResult struct {
	Message string `json:"message"`
	Class   string `json:"class,omitempty"`
}

// Implements the error interface.
func (e *ErrorResult) Error() string {
	if e.Class == "" {
		return e.Message
	}
	return e.Class + ": " + e.Message
}

// Encodes an envelope carrying payload. A nil payload is omitted.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Version: Version, Command: cmd}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		env.Payload = b
	}
	return json.Marshal(env)
}

// Decodes an envelope, returning it with its raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Version != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrVersion, env.Version)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	return &env, env.Payload, nil
}

// Decodes a payload into T. An empty payload yields the zero value.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	v := new(T)
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return v, nil
}
