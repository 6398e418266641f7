package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	programName = "kiln"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/kiln or /run/user/<uid>/kiln
//	macOS:   ~/Library/Caches/kiln/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, programName)
	}
	return filepath.Join(xdg.CacheHome, programName, "run")
}

// Default path to the Unix domain socket served by "kiln start".
func Socket() string {
	return filepath.Join(Runtime(), "kiln.sock")
}

// Default path to the daemon PID file.
func PIDFile() string {
	return filepath.Join(Runtime(), "kiln.pid")
}

// Directory holding per-build scratch space such as materialized recipe
// skeletons. Contents are disposable.
//
//	Linux:   $XDG_CACHE_HOME/kiln/work
//	macOS:   ~/Library/Caches/kiln/work
func Work() string {
	return filepath.Join(xdg.CacheHome, programName, "work")
}

// Directory for persistent state.
//
//	Linux:   $XDG_DATA_HOME/kiln
//	macOS:   ~/Library/Application Support/kiln
func Data() string {
	return filepath.Join(xdg.DataHome, programName)
}

// Path to the build ledger database.
func Ledger() string {
	return filepath.Join(Data(), "ledger.db")
}
