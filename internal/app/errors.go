package service

import "errors"

// Sentinel errors of the service lifecycle.
var (
	ErrWiring     = errors.New("invalid service wiring")
	ErrNotStarted = errors.New("service not started")
)
