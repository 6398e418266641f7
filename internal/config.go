package internal

import (
	"log/slog"
	"strconv"
	"sync/atomic"
)

// Process-wide output modes. Linker flags set the initial modes and CLI
// flags add to them.
type Mode uint32

const (
	ModeQuiet Mode = 1 << iota
	ModeVerbose
	ModeDebug
)

var modes atomic.Uint32

func init() {
	for raw, m := range map[*string]Mode{
		&rawQuiet:   ModeQuiet,
		&rawVerbose: ModeVerbose,
		&rawDebug:   ModeDebug,
	} {
		if v, _ := strconv.ParseBool(*raw); v {
			Enable(m)
		}
	}
}

// Turns on the modes in m.
func Enable(m Mode) {
	for {
		old := modes.Load()
		if modes.CompareAndSwap(old, old|uint32(m)) {
			return
		}
	}
}

// Whether every mode in m is on.
func Enabled(m Mode) bool {
	return Mode(modes.Load())&m == m
}

// Log level implied by the modes. Debug wins over quiet.
func LogLevel() slog.Level {
	switch {
	case Enabled(ModeDebug):
		return slog.LevelDebug
	case Enabled(ModeQuiet):
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
