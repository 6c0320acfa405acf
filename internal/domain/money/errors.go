package money

import "errors"

// Sentinel kinds for currency and amount errors.
var (
	ErrInvalidCurrencyID = errors.New("invalid currency id")
	ErrDuplicateCurrency = errors.New("duplicate currency")
	ErrNoDefault         = errors.New("no default currency")
	ErrMultipleDefaults  = errors.New("more than one default currency")
	ErrUnknownCurrency   = errors.New("unknown currency")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNegativeAmount    = errors.New("negative amount")
)
