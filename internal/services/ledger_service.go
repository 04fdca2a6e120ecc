package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
)

type ledgerStore interface {
	InsertTransactions(ctx context.Context, txs []core.Transaction) ([]core.Transaction, error)
}

type syncPublisher interface {
	PublishTransactionSync(ctx context.Context, id string) error
}

// LedgerService orchestrates transaction ingestion across SQLite and AMQP.
type LedgerService struct {
	storage    ledgerStore
	amqpClient syncPublisher
}

func NewLedgerService(storage ledgerStore, amqpClient syncPublisher) *LedgerService {
	return &LedgerService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// IngestTransactions validates and stores a batch of transactions for
// one user. The batch is atomic: any invalid row rejects the whole
// request and nothing is written. Caller-supplied user ids in the rows
// are ignored. After a successful write a sync message is published per
// row, best effort.
func (s *LedgerService) IngestTransactions(ctx context.Context, userID string, drafts []core.Transaction) ([]core.Transaction, error) {
	if len(drafts) == 0 {
		return []core.Transaction{}, nil
	}

	for i := range drafts {
		drafts[i].UserID = userID
		if err := drafts[i].Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	stored, err := s.storage.InsertTransactions(ctx, drafts)
	if err != nil {
		return nil, fmt.Errorf("insert transactions: %w", err)
	}

	for _, tx := range stored {
		if err := s.publishSyncMessage(ctx, tx.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish sync message",
				"id", tx.ID, "error", err)
			// Don't fail the request - the transaction is saved locally
		}
	}

	slog.InfoContext(ctx, "Transactions ingested",
		"userId", userID, "count", len(stored))
	return stored, nil
}

func (s *LedgerService) publishSyncMessage(ctx context.Context, id string) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
		return nil
	}

	return s.amqpClient.PublishTransactionSync(ctx, id)
}

// Close closes storage and AMQP connections when they support it.
func (s *LedgerService) Close() error {
	var errs []error

	if c, ok := s.storage.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.amqpClient.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
