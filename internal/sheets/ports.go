package sheets

import (
	"context"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
)

// Ports for outbound adapters.
type (
	// StatementWriter mirrors ledger transactions to an external
	// statement, one row per transaction.
	StatementWriter interface {
		Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}
)
