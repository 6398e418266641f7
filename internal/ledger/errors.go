package ledger

import "errors"

var (
	ErrLedger   = errors.New("ledger error")
	ErrNotFound = errors.New("no matching entry")
)
