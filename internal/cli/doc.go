// Parses flags, configures logging and runs kiln commands.
//
// The root command accepts the following flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-p, --project   Project file or directory (default ".").
//	-s, --socket    Unix socket path of the daemon.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity
// before the command runs.
//
// Build and release run in-process against containerd unless --daemon is
// given, in which case the request is sent to a running "kiln start".
package cli
