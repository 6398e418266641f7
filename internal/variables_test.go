package internal

import (
	"log/slog"
	"testing"
)

func TestBuildInfoString(t *testing.T) {
	tests := []struct {
		name string
		info BuildInfo
		want string
	}{
		{"release on main", BuildInfo{Version: "1.2.3", Stage: "main", Commit: "abc123", Arch: "arm64"}, "1.2.3 abc123 [arm64]"},
		{"release on branch", BuildInfo{Version: "1.0.0", Stage: "staging", Commit: "ff", Arch: "amd64"}, "1.0.0+staging ff [amd64]"},
		{"local", BuildInfo{Stage: "main"}, "(local)"},
		{"local with vcs stamp", BuildInfo{Commit: "0123456789abcdef0123", Modified: true}, "(local) 0123456789ab-dirty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func withBuildVars(t *testing.T, v, s, c string) {
	t.Helper()
	oldV, oldS, oldC := version, stage, gitCommit
	version, stage, gitCommit = v, s, c
	t.Cleanup(func() { version, stage, gitCommit = oldV, oldS, oldC })
}

func TestInfoNormalizesLinkerFlags(t *testing.T) {
	withBuildVars(t, " V1.2.3 ", "Main", "abc123")

	info := Info()
	if info.Version != "1.2.3" || info.Stage != "main" || info.Commit != "abc123" {
		t.Fatalf("Info() = %+v", info)
	}
	if info.Local() {
		t.Fatal("Local() = true for a pipeline build")
	}
	if got := Producer(); got != "kiln/1.2.3" {
		t.Fatalf("Producer() = %q, want kiln/1.2.3", got)
	}
}

func TestProducerLocal(t *testing.T) {
	withBuildVars(t, "", "main", "abc")
	if got := Producer(); got != Name {
		t.Fatalf("Producer() = %q, want %q", got, Name)
	}
}

func TestModes(t *testing.T) {
	old := modes.Load()
	t.Cleanup(func() { modes.Store(old) })
	modes.Store(0)

	if got := LogLevel(); got != slog.LevelInfo {
		t.Fatalf("LogLevel() = %v, want INFO", got)
	}

	Enable(ModeQuiet)
	if got := LogLevel(); got != slog.LevelWarn {
		t.Fatalf("quiet LogLevel() = %v, want WARN", got)
	}

	Enable(ModeDebug)
	if got := LogLevel(); got != slog.LevelDebug {
		t.Fatalf("quiet+debug LogLevel() = %v, want DEBUG", got)
	}
	if !Enabled(ModeQuiet|ModeDebug) || Enabled(ModeVerbose) {
		t.Fatalf("modes = %b", modes.Load())
	}
}
