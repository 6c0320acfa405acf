package ledger

import "errors"

// Sentinel kinds for ledger failures carried in Result.Err.
var (
	ErrNoBalance     = errors.New("no balance record")
	ErrSelfTransfer  = errors.New("transfer to the same account")
	ErrRolledBack    = errors.New("transfer credit failed; debit restored")
	ErrInconsistent  = errors.New("transfer credit failed and debit could not be restored")
	ErrNegativeInput = errors.New("negative amount")
	ErrNotScannable  = errors.New("backend cannot enumerate accounts")
)
