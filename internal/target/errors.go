package target

import "errors"

var (
	ErrUnsupportedPlatform = errors.New("unsupported target platform")
	ErrUnspecifiedPlatform = errors.New("no target platform specified")
)
