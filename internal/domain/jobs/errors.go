package jobs

import "errors"

// Sentinel kinds for job definition and eligibility failures.
var (
	ErrInvalidJob       = errors.New("invalid job name")
	ErrDuplicateJob     = errors.New("duplicate job")
	ErrUnknownJob       = errors.New("unknown job")
	ErrInvalidAction    = errors.New("invalid job action")
	ErrNotPermitted     = errors.New("not permitted to join job")
	ErrLevelRequirement = errors.New("insufficient job level")
)
