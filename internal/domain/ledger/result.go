package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome classifies a Result.
type Outcome string

// Outcomes.
const (
	Success           Outcome = "SUCCESS"
	Failed            Outcome = "FAILED"
	InsufficientFunds Outcome = "INSUFFICIENT_FUNDS"
)

// Kind names the operation that produced a Result.
type Kind string

// Kinds. SetBalance reports Deposit or Withdraw by the sign of the change;
// Set marks a set that failed before a current balance was known.
const (
	Deposit  Kind = "DEPOSIT"
	Withdraw Kind = "WITHDRAW"
	Set      Kind = "SET"
	Transfer Kind = "TRANSFER"
)

// Result is the immutable outcome of one balance mutation.
type Result struct {
	Account      string          `json:"account"`
	Counterparty string          `json:"counterparty,omitempty"`
	Currency     string          `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	Balance      decimal.Decimal `json:"balance"`
	Outcome      Outcome         `json:"outcome"`
	Kind         Kind            `json:"kind"`
	At           time.Time       `json:"at"`
	// Leg marks the withdraw, deposit and restore steps of a transfer. The
	// money they move is reported once, by the Transfer result.
	Leg          bool            `json:"leg,omitempty"`
	Err          error           `json:"-"`
}

// OK reports a successful result.
func (r Result) OK() bool { return r.Outcome == Success }

// EventSink receives every Result after the mutation it describes finished.
type EventSink interface {
	Publish(ctx context.Context, r Result)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, r Result)

// Publish implements EventSink.
func (f SinkFunc) Publish(ctx context.Context, r Result) { f(ctx, r) }

type discardSink struct{}

func (discardSink) Publish(context.Context, Result) {}
