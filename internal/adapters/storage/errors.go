package storage

import "errors"

// Sentinel kinds for persistence errors.
var (
	// ErrNoRecord reports a mutation that matched no stored account. It is
	// distinct from an I/O failure.
	ErrNoRecord          = errors.New("no record")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrClosed            = errors.New("backend closed")
	ErrUnknownKind       = errors.New("unknown backend kind")
)
