package leaderboard

import "errors"

// Sentinel kinds for leaderboard failures.
var (
	ErrQueryFailed = errors.New("failed to rank balances")
	ErrClosed      = errors.New("leaderboard closed")
)
