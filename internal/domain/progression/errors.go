package progression

import "errors"

// Sentinel kinds for progression failures.
var (
	ErrUnknownOption = errors.New("unknown option")
	ErrSwitchFailed  = errors.New("failed to set job")
	ErrInvalidLevel  = errors.New("level out of range")
	ErrWriteFailed   = errors.New("progression write failed")
)
