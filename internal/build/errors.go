package build

import "errors"

// Failure classes. Every error returned by [Build] and [Release] wraps
// exactly one of ErrConfig, ErrCompile or ErrAssembly.
var (
	ErrConfig   = errors.New("configuration error")
	ErrCompile  = errors.New("compilation error")
	ErrAssembly = errors.New("assembly error")
)

var (
	ErrFileSystemOperation = errors.New("file system operation failed")
	ErrCopy                = errors.New("copy failed")
	ErrCommandFailed       = errors.New("command failed")
	ErrCheckFailed         = errors.New("architecture check failed")
)

// Returns the class name of err, or "" when it has none.
func Class(err error) string {
	switch {
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrCompile):
		return "compile"
	case errors.Is(err, ErrAssembly):
		return "assembly"
	}
	return ""
}
