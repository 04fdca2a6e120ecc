package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
)

// upcomingWindow is how far ahead the due-soon listing looks.
const upcomingWindow = 7 * 24 * time.Hour

type emiStore interface {
	CreateEMI(ctx context.Context, e core.EMI) (core.EMI, error)
	ListUpcomingEMIs(ctx context.Context, userID string, from, to time.Time) ([]core.EMI, error)
	MarkEMIPaid(ctx context.Context, id, userID string) (core.EMI, error)
}

// EMIService manages recurring installment payments.
type EMIService struct {
	storage emiStore
	now     func() time.Time
}

func NewEMIService(storage emiStore) *EMIService {
	return &EMIService{storage: storage, now: time.Now}
}

// Create validates and stores an installment. Status starts as pending
// and the frequency defaults to monthly.
func (s *EMIService) Create(ctx context.Context, userID string, draft core.EMI) (core.EMI, error) {
	draft.UserID = userID
	if err := draft.Validate(); err != nil {
		return core.EMI{}, err
	}

	emi, err := s.storage.CreateEMI(ctx, draft)
	if err != nil {
		return core.EMI{}, fmt.Errorf("create emi: %w", err)
	}

	slog.InfoContext(ctx, "EMI created",
		"userId", userID, "emiId", emi.ID, "dueDate", emi.DueDate)
	return emi, nil
}

// Upcoming lists pending installments due within the next seven days,
// soonest first.
func (s *EMIService) Upcoming(ctx context.Context, userID string) ([]core.EMI, error) {
	from := s.now()
	emis, err := s.storage.ListUpcomingEMIs(ctx, userID, from, from.Add(upcomingWindow))
	if err != nil {
		return nil, fmt.Errorf("list upcoming emis: %w", err)
	}
	if emis == nil {
		emis = []core.EMI{}
	}
	return emis, nil
}

// MarkPaid flips the installment to paid. The lookup is scoped to the
// owner, so a foreign id reports not found.
func (s *EMIService) MarkPaid(ctx context.Context, id, userID string) (core.EMI, error) {
	emi, err := s.storage.MarkEMIPaid(ctx, id, userID)
	if err != nil {
		return core.EMI{}, err
	}

	slog.InfoContext(ctx, "EMI marked as paid", "userId", userID, "emiId", id)
	return emi, nil
}
