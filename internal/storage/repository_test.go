package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "finance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createTestUser(t *testing.T, repo *SQLiteRepository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), core.User{
		Name:         "A",
		Email:        email,
		PasswordHash: "$2a$10$fakehashfakehashfakehash",
	})
	require.NoError(t, err)
	return u
}

func TestCreateUserAndEmailConflict(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := createTestUser(t, repo, "a@x.com")
	require.NotEmpty(t, u.ID)

	_, err := repo.CreateUser(ctx, core.User{Name: "B", Email: "a@x.com", PasswordHash: "h"})
	require.ErrorIs(t, err, ErrEmailTaken)

	creds, err := repo.GetCredentialsByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, creds.ID)
	require.NotEmpty(t, creds.PasswordHash)

	_, err = repo.GetCredentialsByEmail(ctx, "missing@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInsertTransactionsAndAggregations(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "a@x.com")
	other := createTestUser(t, repo, "b@x.com")

	txs := []core.Transaction{
		{UserID: u.ID, Amount: core.Money{Cents: 10000}, Type: core.Income, Category: "Salary",
			Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{UserID: u.ID, Amount: core.Money{Cents: 4000}, Type: core.Expense, Category: "Food",
			Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{UserID: u.ID, Amount: core.Money{Cents: 2500}, Type: core.Expense, Category: "Transport",
			Date: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)},
		// Another user's rows must never leak into aggregations.
		{UserID: other.ID, Amount: core.Money{Cents: 99900}, Type: core.Expense, Category: "Food",
			Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	stored, err := repo.InsertTransactions(ctx, txs)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for _, tx := range stored {
		require.NotEmpty(t, tx.ID)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	totals, err := repo.MonthlyTypeTotals(ctx, u.ID, start, end)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	byType := map[string]int64{}
	for _, tt := range totals {
		byType[tt.Type] = tt.TotalCents
	}
	require.Equal(t, int64(10000), byType["income"])
	require.Equal(t, int64(4000), byType["expense"])

	// Empty month: empty result, not an error.
	emptyStart := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	emptyEnd := time.Date(2023, 6, 30, 23, 59, 59, 0, time.UTC)
	empty, err := repo.MonthlyTypeTotals(ctx, u.ID, emptyStart, emptyEnd)
	require.NoError(t, err)
	require.Empty(t, empty)

	cats, err := repo.CategoryExpenseTotals(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	require.Equal(t, "Food", cats[0].Category)
	require.Equal(t, int64(4000), cats[0].TotalCents)
	require.Equal(t, "Transport", cats[1].Category)

	cf, err := repo.Cashflow(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), cf.IncomeCents)
	require.Equal(t, int64(6500), cf.ExpenseCents)

	// Fresh user: zero cashflow, no rows.
	fresh := createTestUser(t, repo, "c@x.com")
	cf, err = repo.Cashflow(ctx, fresh.ID)
	require.NoError(t, err)
	require.Zero(t, cf.IncomeCents)
	require.Zero(t, cf.ExpenseCents)
}

func TestCategorySpendSince(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "a@x.com")

	now := time.Now().UTC()
	_, err := repo.InsertTransactions(ctx, []core.Transaction{
		{UserID: u.ID, Amount: core.Money{Cents: 4000}, Type: core.Expense, Category: "Food", Date: now.AddDate(0, 0, -1)},
		{UserID: u.ID, Amount: core.Money{Cents: 1000}, Type: core.Expense, Category: "Food", Date: now.AddDate(0, 0, -30)},
		{UserID: u.ID, Amount: core.Money{Cents: 5000}, Type: core.Income, Category: "Food", Date: now},
	})
	require.NoError(t, err)

	spent, err := repo.CategorySpendSince(ctx, u.ID, "Food", now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Equal(t, int64(4000), spent, "only recent expense rows count")

	spent, err = repo.CategorySpendSince(ctx, u.ID, "Rent", now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Zero(t, spent)
}

func TestBudgets(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "a@x.com")

	b, err := repo.CreateBudget(ctx, core.Budget{
		UserID: u.ID, Category: "Food", Limit: core.Money{Cents: 3000}, Period: core.Monthly,
	})
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)

	// Duplicate (user, category) rows are allowed.
	_, err = repo.CreateBudget(ctx, core.Budget{
		UserID: u.ID, Category: "Food", Limit: core.Money{Cents: 5000}, Period: core.Weekly,
	})
	require.NoError(t, err)

	budgets, err := repo.ListBudgets(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, budgets, 2)
}

func TestEMILifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "a@x.com")
	other := createTestUser(t, repo, "b@x.com")

	now := time.Now().UTC()
	due := now.AddDate(0, 0, 3)
	e, err := repo.CreateEMI(ctx, core.EMI{
		UserID: u.ID, Title: "Car loan", Amount: core.Money{Cents: 120000}, DueDate: due,
	})
	require.NoError(t, err)
	require.Equal(t, core.StatusPending, e.Status)
	require.Equal(t, core.FrequencyMonthly, e.Frequency)

	// Outside the 7-day window.
	_, err = repo.CreateEMI(ctx, core.EMI{
		UserID: u.ID, Title: "Insurance", Amount: core.Money{Cents: 8000}, DueDate: now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)

	upcoming, err := repo.ListUpcomingEMIs(ctx, u.ID, now, now.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.Equal(t, "Car loan", upcoming[0].Title)

	// Wrong owner: not found, nothing mutated.
	_, err = repo.MarkEMIPaid(ctx, e.ID, other.ID)
	require.ErrorIs(t, err, ErrNotFound)

	paid, err := repo.MarkEMIPaid(ctx, e.ID, u.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusPaid, paid.Status)

	// Paid EMIs leave the upcoming list.
	upcoming, err = repo.ListUpcomingEMIs(ctx, u.ID, now, now.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Empty(t, upcoming)

	// Unknown id: not found.
	_, err = repo.MarkEMIPaid(ctx, "no-such-id", u.ID)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestSyncBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, repo, "a@x.com")

	stored, err := repo.InsertTransactions(ctx, []core.Transaction{
		{UserID: u.ID, Amount: core.Money{Cents: 100}, Type: core.Expense, Category: "Food", Date: time.Now()},
		{UserID: u.ID, Amount: core.Money{Cents: 200}, Type: core.Expense, Category: "Food", Date: time.Now()},
	})
	require.NoError(t, err)

	pending, err := repo.PendingSyncTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, repo.MarkTransactionSynced(ctx, stored[0].ID))
	pending, err = repo.PendingSyncTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, stored[1].ID, pending[0].ID)

	// Five failures take a row out of the retry set.
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.MarkTransactionSyncError(ctx, stored[1].ID))
	}
	pending, err = repo.PendingSyncTransactions(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}
