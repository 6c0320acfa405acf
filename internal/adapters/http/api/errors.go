package api

import (
	"errors"
	"net/http"

	"github.com/okian/tally/internal/adapters/identity"
	"github.com/okian/tally/internal/adapters/storage"
	"github.com/okian/tally/internal/domain/jobs"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/internal/domain/leaderboard"
	"github.com/okian/tally/internal/domain/money"
	"github.com/okian/tally/internal/domain/progression"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrInvalidID  = errors.New("invalid account id")
	ErrInFlight   = errors.New("request with this idempotency key is in progress")
	ErrInternal   = errors.New("internal error")
)

// Error attaches the failing operation and a kind to an underlying error.
// errors.Is matches both the kind and the wrapped error.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap returns the kind and the wrapped error.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind builds an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind classifies err as kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap records op on err without classifying it.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// classify maps an error onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrInvalidID), errors.Is(err, identity.ErrInvalidID):
		return http.StatusBadRequest, "invalid_id"
	case errors.Is(err, money.ErrInvalidAmount), errors.Is(err, money.ErrNegativeAmount), errors.Is(err, ledger.ErrNegativeInput):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ErrBadRequest), errors.Is(err, identity.ErrInvalidName), errors.Is(err, progression.ErrInvalidLevel):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ledger.ErrSelfTransfer):
		return http.StatusBadRequest, "self_transfer"
	case errors.Is(err, money.ErrUnknownCurrency):
		return http.StatusNotFound, "unknown_currency"
	case errors.Is(err, jobs.ErrUnknownJob):
		return http.StatusNotFound, "unknown_job"
	case errors.Is(err, progression.ErrUnknownOption):
		return http.StatusNotFound, "unknown_option"
	case errors.Is(err, jobs.ErrNotPermitted):
		return http.StatusForbidden, "not_permitted"
	case errors.Is(err, jobs.ErrLevelRequirement):
		return http.StatusConflict, "requirement_not_met"
	case errors.Is(err, ledger.ErrNoBalance), errors.Is(err, storage.ErrNoRecord):
		return http.StatusConflict, "no_balance"
	case errors.Is(err, ledger.ErrRolledBack):
		return http.StatusConflict, "transfer_rolled_back"
	case errors.Is(err, ErrInFlight):
		return http.StatusConflict, "request_in_progress"
	case errors.Is(err, leaderboard.ErrQueryFailed), errors.Is(err, leaderboard.ErrClosed), errors.Is(err, storage.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
