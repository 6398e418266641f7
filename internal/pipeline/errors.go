package pipeline

import "errors"

var (
	ErrInvalidCopy  = errors.New("invalid copy")
	ErrInvalidStage = errors.New("invalid stage")
	ErrRender       = errors.New("render failed")
)
