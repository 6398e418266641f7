package health

import "errors"

var (
	ErrInvalidPolicy = errors.New("invalid health policy")
	ErrProbeFailed   = errors.New("liveness probe failed")
	ErrUnhealthy     = errors.New("service unhealthy")
)
