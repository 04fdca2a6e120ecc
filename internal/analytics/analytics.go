// Package analytics computes spending aggregates and budget alerts
// from the transaction ledger.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
	applog "github.com/rishabh4701/personalized-finance-dashboard/internal/log"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/storage"
)

// TypeTotal is one row of a monthly summary, keyed by transaction type.
type TypeTotal struct {
	Type  string     `json:"_id"`
	Total core.Money `json:"total"`
}

// CategoryTotal is one row of an all-time expense breakdown.
type CategoryTotal struct {
	Category string     `json:"_id"`
	Total    core.Money `json:"total"`
}

// Cashflow is the all-time income/expense balance for a user.
type Cashflow struct {
	Income  core.Money `json:"income"`
	Expense core.Money `json:"expense"`
	Net     core.Money `json:"net"`
}

// Alert reports a budget whose tracked spending exceeds its limit.
type Alert struct {
	Category   string     `json:"category"`
	Limit      core.Money `json:"limit"`
	Spent      core.Money `json:"spent"`
	ExceededBy core.Money `json:"exceededBy"`
}

// Repository is the ledger access the engine needs.
type Repository interface {
	MonthlyTypeTotals(ctx context.Context, userID string, start, end time.Time) ([]storage.TypeTotal, error)
	CategoryExpenseTotals(ctx context.Context, userID string) ([]storage.CategoryTotal, error)
	Cashflow(ctx context.Context, userID string) (storage.CashflowTotals, error)
	ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
	CategorySpendSince(ctx context.Context, userID, category string, since time.Time) (int64, error)
}

// AlertPublisher delivers triggered alerts to interested consumers.
// Publishing is best effort and never fails the evaluation.
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, userID string, alert Alert) error
}

// Service runs aggregation queries and evaluates budgets.
type Service struct {
	repo      Repository
	publisher AlertPublisher
	logger    *applog.Logger
	now       func() time.Time
}

func NewService(repo Repository, publisher AlertPublisher, logger *applog.Logger) *Service {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentAnalytics),
		now:       time.Now,
	}
}

// MonthWindow returns the inclusive bounds of a calendar month in the
// server's timezone: the first instant of the month through the last
// second of its final day.
func MonthWindow(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// MonthlySummary aggregates a user's transactions for one calendar
// month, grouped by type. Months with no activity yield an empty slice.
func (s *Service) MonthlySummary(ctx context.Context, userID string, year, month int) ([]TypeTotal, error) {
	start, end := MonthWindow(year, month)
	rows, err := s.repo.MonthlyTypeTotals(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	out := make([]TypeTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, TypeTotal{Type: r.Type, Total: core.Money{Cents: r.TotalCents}})
	}
	return out, nil
}

// CategoryBreakdown returns the user's all-time expense totals per
// category, largest first.
func (s *Service) CategoryBreakdown(ctx context.Context, userID string) ([]CategoryTotal, error) {
	rows, err := s.repo.CategoryExpenseTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	out := make([]CategoryTotal, 0, len(rows))
	for _, r := range rows {
		out = append(out, CategoryTotal{Category: r.Category, Total: core.Money{Cents: r.TotalCents}})
	}
	return out, nil
}

// CashflowSummary returns the user's all-time income, expense and net.
// Users with no transactions get zeros.
func (s *Service) CashflowSummary(ctx context.Context, userID string) (Cashflow, error) {
	totals, err := s.repo.Cashflow(ctx, userID)
	if err != nil {
		return Cashflow{}, fmt.Errorf("cashflow: %w", err)
	}
	return Cashflow{
		Income:  core.Money{Cents: totals.IncomeCents},
		Expense: core.Money{Cents: totals.ExpenseCents},
		Net:     core.Money{Cents: totals.IncomeCents - totals.ExpenseCents},
	}, nil
}

// alertWindowStart picks the start of the spending window a budget is
// evaluated over. Monthly budgets track the current calendar month,
// anything else a trailing seven days.
func alertWindowStart(period core.BudgetPeriod, now time.Time) time.Time {
	if period == core.Monthly {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	return now.AddDate(0, 0, -7)
}

// BudgetAlerts evaluates every budget of the user and returns those
// strictly over their limit. Each budget row is evaluated on its own,
// so duplicate categories produce independent alerts. Triggered alerts
// are also published when a publisher is configured; publish failures
// are logged and swallowed.
func (s *Service) BudgetAlerts(ctx context.Context, userID string) ([]Alert, error) {
	budgets, err := s.repo.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	now := s.now()
	alerts := make([]Alert, 0)
	for _, b := range budgets {
		since := alertWindowStart(b.Period, now)
		spentCents, err := s.repo.CategorySpendSince(ctx, userID, b.Category, since)
		if err != nil {
			return nil, fmt.Errorf("spend for category %q: %w", b.Category, err)
		}
		spent := core.Money{Cents: spentCents}
		if spent.Cents <= b.Limit.Cents {
			continue
		}
		alert := Alert{
			Category:   b.Category,
			Limit:      b.Limit,
			Spent:      spent,
			ExceededBy: spent.Sub(b.Limit),
		}
		alerts = append(alerts, alert)

		if s.publisher != nil {
			if err := s.publisher.PublishBudgetAlert(ctx, userID, alert); err != nil {
				s.logger.WarnContext(ctx, "failed to publish budget alert",
					applog.FieldCategory, alert.Category,
					applog.FieldError, err.Error(),
				)
			}
		}
	}

	if len(alerts) > 0 {
		s.logger.InfoContext(ctx, "budget alerts triggered",
			applog.FieldUserID, userID,
			applog.FieldAlertCount, len(alerts),
		)
	}
	return alerts, nil
}
