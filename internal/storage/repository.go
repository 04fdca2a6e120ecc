package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
)

var (
	// ErrNotFound covers both "no such record" and "not owned by the
	// caller"; the two are deliberately indistinguishable.
	ErrNotFound = errors.New("record not found")

	// ErrEmailTaken signals a registration conflict.
	ErrEmailTaken = errors.New("email already registered")
)

// Aggregation row types returned by the grouped-sum queries.
type (
	TypeTotal struct {
		Type       string
		TotalCents int64
	}

	CategoryTotal struct {
		Category   string
		TotalCents int64
	}

	CashflowTotals struct {
		IncomeCents  int64
		ExpenseCents int64
	}

	// PendingSyncTransaction is the minimal row handed to the statement
	// sync worker.
	PendingSyncTransaction struct {
		ID       string
		Attempts int64
	}
)

// SQLiteRepository is the single authoritative store. Every query that
// touches user-owned rows filters by user id, never by record id alone.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ---- users ----

// CreateUser persists a user whose password is already hashed. The id and
// creation time are assigned here.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			return core.User{}, ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", u.ID)
	return u, nil
}

// GetCredentialsByEmail returns the user including the stored password
// hash. Callers strip the hash before the user leaves the service layer.
func (r *SQLiteRepository) GetCredentialsByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get credentials by email: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

// ---- ledger ----

// InsertTransactions persists the whole batch inside one SQL transaction:
// either every draft lands or none does. Ids and creation times are
// assigned here; returns the stored rows.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, txs []core.Transaction) ([]core.Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx,
		`INSERT INTO transactions (id, user_id, amount_cents, type, category, tx_date, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range txs {
		txs[i].ID = uuid.NewString()
		txs[i].CreatedAt = now
		_, err := stmt.ExecContext(ctx,
			txs[i].ID, txs[i].UserID, txs[i].Amount.Cents, string(txs[i].Type),
			txs[i].Category, txs[i].Date.Unix(), txs[i].Description, now.Unix())
		if err != nil {
			return nil, fmt.Errorf("insert transaction %d: %w", i, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transactions: %w", err)
	}

	slog.InfoContext(ctx, "Transactions inserted", "user_id", txs[0].UserID, "count", len(txs))
	return txs, nil
}

// GetTransaction loads a single ledger row by id (worker use only; the
// HTTP surface never reads by bare transaction id).
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var t core.Transaction
	var txDate, createdAt int64
	var txType string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount_cents, type, category, tx_date, description, created_at
		 FROM transactions WHERE id = ?`, id).
		Scan(&t.ID, &t.UserID, &t.Amount.Cents, &txType, &t.Category, &txDate, &t.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	t.Type = core.TransactionType(txType)
	t.Date = time.Unix(txDate, 0).UTC()
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return t, nil
}

// MonthlyTypeTotals groups the caller's transactions inside [start, end]
// by type and sums the amounts. No rows means an empty slice, not an
// error.
func (r *SQLiteRepository) MonthlyTypeTotals(ctx context.Context, userID string, start, end time.Time) ([]TypeTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT type, SUM(amount_cents) FROM transactions
		 WHERE user_id = ? AND tx_date >= ? AND tx_date <= ?
		 GROUP BY type`,
		userID, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("monthly type totals: %w", err)
	}
	defer rows.Close()

	var totals []TypeTotal
	for rows.Next() {
		var t TypeTotal
		if err := rows.Scan(&t.Type, &t.TotalCents); err != nil {
			return nil, fmt.Errorf("scan type total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate type totals: %w", err)
	}
	return totals, nil
}

// CategoryExpenseTotals groups the caller's expense transactions by
// category, summed and sorted by total descending.
func (r *SQLiteRepository) CategoryExpenseTotals(ctx context.Context, userID string) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, SUM(amount_cents) AS total FROM transactions
		 WHERE user_id = ? AND type = 'expense'
		 GROUP BY category
		 ORDER BY total DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("category expense totals: %w", err)
	}
	defer rows.Close()

	var totals []CategoryTotal
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.TotalCents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return totals, nil
}

// Cashflow sums income and expense over the caller's whole ledger.
func (r *SQLiteRepository) Cashflow(ctx context.Context, userID string) (CashflowTotals, error) {
	var c CashflowTotals
	err := r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions WHERE user_id = ?`,
		userID).Scan(&c.IncomeCents, &c.ExpenseCents)
	if err != nil {
		return CashflowTotals{}, fmt.Errorf("cashflow totals: %w", err)
	}
	return c, nil
}

// CategorySpendSince sums the caller's expense transactions in one
// category with date >= since. Open-ended toward the future, matching the
// alert window contract.
func (r *SQLiteRepository) CategorySpendSince(ctx context.Context, userID, category string, since time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		 WHERE user_id = ? AND category = ? AND type = 'expense' AND tx_date >= ?`,
		userID, category, since.Unix()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("category spend since: %w", err)
	}
	return total, nil
}

// ---- budgets ----

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, category, limit_cents, period, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Category, b.Limit.Cents, string(b.Period), b.CreatedAt.Unix())
	if err != nil {
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget created", "user_id", b.UserID, "category", b.Category, "period", string(b.Period))
	return b, nil
}

// ListBudgets returns every budget row of the caller, duplicates
// included, in insertion order.
func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, category, limit_cents, period, created_at
		 FROM budgets WHERE user_id = ? ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		var b core.Budget
		var period string
		var createdAt int64
		if err := rows.Scan(&b.ID, &b.UserID, &b.Category, &b.Limit.Cents, &period, &createdAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Period = core.BudgetPeriod(period)
		b.CreatedAt = time.Unix(createdAt, 0).UTC()
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return budgets, nil
}

// ---- EMIs ----

func (r *SQLiteRepository) CreateEMI(ctx context.Context, e core.EMI) (core.EMI, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	if e.Frequency == "" {
		e.Frequency = core.FrequencyMonthly
	}
	if e.Status == "" {
		e.Status = core.StatusPending
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO emis (id, user_id, title, amount_cents, due_date, frequency, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title, e.Amount.Cents, e.DueDate.Unix(), e.Frequency, string(e.Status), e.CreatedAt.Unix())
	if err != nil {
		return core.EMI{}, fmt.Errorf("insert emi: %w", err)
	}

	slog.InfoContext(ctx, "EMI created", "user_id", e.UserID, "emi_id", e.ID)
	return e, nil
}

// ListUpcomingEMIs returns the caller's pending EMIs with dueDate in
// [from, to], ascending by due date.
func (r *SQLiteRepository) ListUpcomingEMIs(ctx context.Context, userID string, from, to time.Time) ([]core.EMI, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, amount_cents, due_date, frequency, status, created_at
		 FROM emis
		 WHERE user_id = ? AND status = 'pending' AND due_date >= ? AND due_date <= ?
		 ORDER BY due_date ASC`,
		userID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("list upcoming emis: %w", err)
	}
	defer rows.Close()

	var emis []core.EMI
	for rows.Next() {
		e, err := scanEMI(rows)
		if err != nil {
			return nil, err
		}
		emis = append(emis, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emis: %w", err)
	}
	return emis, nil
}

// MarkEMIPaid is a conditional update keyed by (id, userID). A miss on
// either key yields ErrNotFound; the caller cannot tell which one failed.
func (r *SQLiteRepository) MarkEMIPaid(ctx context.Context, id, userID string) (core.EMI, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE emis SET status = 'paid' WHERE id = ? AND user_id = ?`,
		id, userID)
	if err != nil {
		return core.EMI{}, fmt.Errorf("mark emi paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.EMI{}, fmt.Errorf("mark emi paid rows affected: %w", err)
	}
	if affected == 0 {
		return core.EMI{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, amount_cents, due_date, frequency, status, created_at
		 FROM emis WHERE id = ? AND user_id = ?`,
		id, userID)
	e, err := scanEMI(row)
	if err != nil {
		return core.EMI{}, err
	}

	slog.InfoContext(ctx, "EMI marked as paid", "user_id", userID, "emi_id", id)
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEMI(row rowScanner) (core.EMI, error) {
	var e core.EMI
	var dueDate, createdAt int64
	var status string
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Amount.Cents, &dueDate, &e.Frequency, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.EMI{}, ErrNotFound
		}
		return core.EMI{}, fmt.Errorf("scan emi: %w", err)
	}
	e.Status = core.EMIStatus(status)
	e.DueDate = time.Unix(dueDate, 0).UTC()
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return e, nil
}

// ---- statement sync bookkeeping ----

// PendingSyncTransactions lists rows not yet mirrored to the statement
// sheet, oldest first. Rows that failed too often are left for manual
// inspection.
func (r *SQLiteRepository) PendingSyncTransactions(ctx context.Context, limit int) ([]PendingSyncTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sync_attempts FROM transactions
		 WHERE synced = 0 AND sync_attempts < 5
		 ORDER BY created_at ASC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("pending sync transactions: %w", err)
	}
	defer rows.Close()

	var pending []PendingSyncTransaction
	for rows.Next() {
		var p PendingSyncTransaction
		if err := rows.Scan(&p.ID, &p.Attempts); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending sync: %w", err)
	}
	return pending, nil
}

func (r *SQLiteRepository) MarkTransactionSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkTransactionSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_attempts = sync_attempts + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	return nil
}
