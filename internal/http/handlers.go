package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/auth"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/storage"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Name, email and password are required")
		return
	}

	user, err := s.deps.Accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.respondServiceError(r.Context(), w, "register", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Success",
		"userId":  user.ID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, token, err := s.deps.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondServiceError(r.Context(), w, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"userId":  user.ID,
		"token":   token,
	})
}

func (s *Server) handleIngestTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	drafts, err := decodeTransactionBatch(r)
	if err != nil {
		if errors.Is(err, errNotAnArray) {
			writeError(w, http.StatusBadRequest, "Array of transactions required")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch := make([]core.Transaction, 0, len(drafts))
	for _, d := range drafts {
		batch = append(batch, d.toCore())
	}

	stored, err := s.deps.Ledger.IngestTransactions(r.Context(), userID, batch)
	if err != nil {
		s.respondServiceError(r.Context(), w, "ingest transactions", err)
		return
	}

	s.invalidateAnalytics(userID)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Transactions added",
		"count":   len(stored),
	})
}

// invalidateAnalytics drops every cached aggregate of the user after
// the ledger changed.
func (s *Server) invalidateAnalytics(userID string) {
	s.monthlyCache.DeletePrefix(userID + ":")
	s.categoryCache.Delete(userID)
	s.cashflowCache.Delete(userID)
}

func (s *Server) handleMonthlyAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	month, year, err := parseMonthYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := fmt.Sprintf("%s:%d-%02d", userID, year, month)
	if rows, ok := s.monthlyCache.Get(key); ok {
		writeJSON(w, http.StatusOK, rows)
		return
	}

	rows, err := s.deps.Analytics.MonthlySummary(r.Context(), userID, year, month)
	if err != nil {
		s.internalError(r.Context(), w, "monthly analytics", err)
		return
	}

	s.monthlyCache.Set(key, rows)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCategoryAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if rows, ok := s.categoryCache.Get(userID); ok {
		writeJSON(w, http.StatusOK, rows)
		return
	}

	rows, err := s.deps.Analytics.CategoryBreakdown(r.Context(), userID)
	if err != nil {
		s.internalError(r.Context(), w, "category analytics", err)
		return
	}

	s.categoryCache.Set(userID, rows)
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCashflowAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if cf, ok := s.cashflowCache.Get(userID); ok {
		writeJSON(w, http.StatusOK, cf)
		return
	}

	cf, err := s.deps.Analytics.CashflowSummary(r.Context(), userID)
	if err != nil {
		s.internalError(r.Context(), w, "cashflow analytics", err)
		return
	}

	s.cashflowCache.Set(userID, cf)
	writeJSON(w, http.StatusOK, cf)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req budgetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	budget, err := s.deps.Budgets.Create(r.Context(), userID, req.toCore())
	if err != nil {
		s.respondServiceError(r.Context(), w, "create budget", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Budget created",
		"budget":  budget,
	})
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	budgets, err := s.deps.Budgets.List(r.Context(), userID)
	if err != nil {
		s.internalError(r.Context(), w, "list budgets", err)
		return
	}

	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleBudgetAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	alerts, err := s.deps.Analytics.BudgetAlerts(r.Context(), userID)
	if err != nil {
		s.internalError(r.Context(), w, "budget alerts", err)
		return
	}

	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleCreateEMI(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req emiRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	emi, err := s.deps.EMIs.Create(r.Context(), userID, req.toCore())
	if err != nil {
		s.respondServiceError(r.Context(), w, "create emi", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "EMI added",
		"emi":     emi,
	})
}

func (s *Server) handleUpcomingEMIs(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	emis, err := s.deps.EMIs.Upcoming(r.Context(), userID)
	if err != nil {
		s.internalError(r.Context(), w, "upcoming emis", err)
		return
	}

	writeJSON(w, http.StatusOK, emis)
}

func (s *Server) handleMarkEMIPaid(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := r.PathValue("id")
	emi, err := s.deps.EMIs.MarkPaid(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "EMI not found")
			return
		}
		s.internalError(r.Context(), w, "mark emi paid", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "EMI marked as paid",
		"emi":     emi,
	})
}
