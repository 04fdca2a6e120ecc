package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
)

type budgetStore interface {
	CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
}

// BudgetService manages per-category spending limits.
type BudgetService struct {
	storage budgetStore
}

func NewBudgetService(storage budgetStore) *BudgetService {
	return &BudgetService{storage: storage}
}

// Create validates and stores a budget. Multiple budgets for the same
// category are allowed, each is tracked independently.
func (s *BudgetService) Create(ctx context.Context, userID string, draft core.Budget) (core.Budget, error) {
	draft.UserID = userID
	if err := draft.Validate(); err != nil {
		return core.Budget{}, err
	}

	budget, err := s.storage.CreateBudget(ctx, draft)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget created",
		"userId", userID, "category", budget.Category, "period", string(budget.Period))
	return budget, nil
}

// List returns the user's budgets in creation order.
func (s *BudgetService) List(ctx context.Context, userID string) ([]core.Budget, error) {
	budgets, err := s.storage.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	if budgets == nil {
		budgets = []core.Budget{}
	}
	return budgets, nil
}
