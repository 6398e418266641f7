package project

import "errors"

var (
	ErrInvalidProject = errors.New("invalid project")
	ErrReadProject    = errors.New("failed to read project file")
)
