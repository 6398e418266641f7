package assemble

import "errors"

var (
	ErrArchMismatch = errors.New("architecture mismatch")
	ErrNotELF       = errors.New("not an ELF file")
	ErrInvalidImage = errors.New("invalid runtime image")
)
