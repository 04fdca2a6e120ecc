// Package worker processes ledger event messages: it mirrors stored
// transactions to the statement sheet and records delivered budget
// alerts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/amqp"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
	applog "github.com/rishabh4701/personalized-finance-dashboard/internal/log"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/sheets"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/storage"
)

type syncStore interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	PendingSyncTransactions(ctx context.Context, limit int) ([]storage.PendingSyncTransaction, error)
	MarkTransactionSynced(ctx context.Context, id string) error
	MarkTransactionSyncError(ctx context.Context, id string) error
}

// Worker applies ledger event messages and runs a periodic catch-up
// pass for transactions whose messages were lost.
type Worker struct {
	storage   syncStore
	statement sheets.StatementWriter
	logger    *applog.Logger
	batchSize int
}

func New(storage syncStore, statement sheets.StatementWriter, logger *applog.Logger, batchSize int) *Worker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Worker{
		storage:   storage,
		statement: statement,
		logger:    logger.WithComponent(applog.ComponentWorker),
		batchSize: batchSize,
	}
}

// HandleMessage dispatches one queue message. Returning an error makes
// the consumer requeue the delivery.
func (w *Worker) HandleMessage(ctx context.Context, msg *amqp.Message) error {
	switch msg.Kind {
	case amqp.KindTransactionSync:
		return w.handleTransactionSync(ctx, msg.Transaction.ID)
	case amqp.KindBudgetAlert:
		return w.handleBudgetAlert(ctx, msg.Alert)
	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
}

func (w *Worker) handleTransactionSync(ctx context.Context, id string) error {
	tx, err := w.storage.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The row was never committed or has been removed,
			// nothing to mirror. Do not requeue.
			w.logger.WarnContext(ctx, "sync message for unknown transaction", "id", id)
			return nil
		}
		return fmt.Errorf("load transaction %s: %w", id, err)
	}

	return w.mirror(ctx, tx)
}

func (w *Worker) mirror(ctx context.Context, tx core.Transaction) error {
	if w.statement == nil {
		w.logger.WarnContext(ctx, "statement writer not configured, marking synced", "id", tx.ID)
		return w.storage.MarkTransactionSynced(ctx, tx.ID)
	}

	rowRef, err := w.statement.Append(ctx, tx)
	if err != nil {
		if markErr := w.storage.MarkTransactionSyncError(ctx, tx.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "failed to record sync error",
				"id", tx.ID, applog.FieldError, markErr.Error())
		}
		return fmt.Errorf("append transaction %s: %w", tx.ID, err)
	}

	if err := w.storage.MarkTransactionSynced(ctx, tx.ID); err != nil {
		return fmt.Errorf("mark transaction %s synced: %w", tx.ID, err)
	}

	w.logger.InfoContext(ctx, "transaction mirrored",
		"id", tx.ID, "row", rowRef)
	return nil
}

func (w *Worker) handleBudgetAlert(ctx context.Context, alert *amqp.BudgetAlertPayload) error {
	// Alert delivery is a log entry for now. The snapshot carries
	// everything a notification channel would need.
	w.logger.InfoContext(ctx, "budget alert delivered",
		applog.FieldUserID, alert.UserID,
		applog.FieldCategory, alert.Category,
		applog.FieldLimitCents, alert.LimitCents,
		applog.FieldSpentCents, alert.SpentCents,
		"exceededByCents", alert.ExceededByCents,
	)
	return nil
}

// ProcessPending mirrors transactions that never got a queue message,
// oldest first, up to the configured batch size. Errors on single rows
// are recorded and skipped.
func (w *Worker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.storage.PendingSyncTransactions(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending transactions: %w", err)
	}

	processed := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := w.handleTransactionSync(ctx, p.ID); err != nil {
			w.logger.WarnContext(ctx, "catch-up sync failed",
				"id", p.ID, "attempts", p.Attempts, applog.FieldError, err.Error())
			continue
		}
		processed++
	}

	if processed > 0 {
		w.logger.InfoContext(ctx, "catch-up pass complete", applog.FieldTxCount, processed)
	}
	return processed, nil
}

// RunCatchUp runs ProcessPending on a fixed interval until the context
// is cancelled.
func (w *Worker) RunCatchUp(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.ErrorContext(ctx, "catch-up pass failed", applog.FieldError, err.Error())
			}
		}
	}
}
