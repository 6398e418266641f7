package protocol

import "errors"

var (
	ErrMalformed   = errors.New("malformed message")
	ErrVersion     = errors.New("unsupported protocol version")
	ErrUnavailable = errors.New("daemon unavailable")
	ErrRemote      = errors.New("daemon returned an error")
)
