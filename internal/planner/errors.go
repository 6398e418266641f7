package planner

import "errors"

var (
	ErrMissingManifest   = errors.New("no Cargo.toml at source root")
	ErrMalformedManifest = errors.New("malformed manifest")
	ErrFileSystem        = errors.New("file system operation failed")
)
