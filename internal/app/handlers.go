package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/tally/internal/adapters/mq/queue"
	"github.com/okian/tally/internal/adapters/mq/worker"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// JournalHandler writes one structured log line per transaction event.
// Inconsistent transfers are logged as errors, other failures as warnings.
func JournalHandler(lg logger.Logger) worker.Handler {
	return worker.HandlerFunc{ID: "journal", Fn: func(ctx context.Context, e queue.Event) error {
		r := e.Result
		fields := []logger.Field{
			logger.String("event", e.ID),
			logger.String("account", r.Account),
			logger.String("kind", string(r.Kind)),
			logger.String("outcome", string(r.Outcome)),
			logger.String("currency", r.Currency),
			logger.String("amount", r.Amount.String()),
			logger.String("balance", r.Balance.String()),
		}
		if r.Counterparty != "" {
			fields = append(fields, logger.String("counterparty", r.Counterparty))
		}
		if r.Leg {
			fields = append(fields, logger.Bool("leg", true))
		}
		switch {
		case errors.Is(r.Err, ledger.ErrInconsistent):
			lg.Error(ctx, "transaction left ledger inconsistent", append(fields, logger.Error(r.Err))...)
		case r.Outcome == ledger.Failed:
			lg.Warn(ctx, "transaction failed", append(fields, logger.Error(r.Err))...)
		default:
			lg.Debug(ctx, "transaction", fields...)
		}
		return nil
	}}
}

// MetricsHandler records event lag and the amount moved by successful
// mutations. Transfer legs are skipped; their transfer reports the amount.
func MetricsHandler() worker.Handler {
	return worker.HandlerFunc{ID: "metrics", Fn: func(_ context.Context, e queue.Event) error {
		if !e.EnqueuedAt.IsZero() {
			metrics.RecordEventLag(float64(time.Since(e.EnqueuedAt).Microseconds()) / 1000)
		}
		if e.Result.OK() && !e.Result.Leg {
			metrics.RecordMoneyMoved(e.Result.Currency, string(e.Result.Kind), e.Result.Amount.InexactFloat64())
		}
		return nil
	}}
}
