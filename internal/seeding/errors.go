package seeding

import "errors"

// Sentinel errors of a seeding run.
var (
	ErrConfig      = errors.New("invalid seeding config")
	ErrUnhealthy   = errors.New("service is not healthy")
	ErrStatus      = errors.New("unexpected response status")
	ErrMismatch    = errors.New("verification mismatch")
	ErrNoReplay    = errors.New("retried request was not replayed")
	ErrUnknownCurr = errors.New("currency not offered by the service")
)
