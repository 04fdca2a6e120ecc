package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
	applog "github.com/rishabh4701/personalized-finance-dashboard/internal/log"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/services"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// internalError logs the real failure and sends a redacted 500.
func (s *Server) internalError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	s.logger.ErrorContext(ctx, "request failed",
		applog.FieldOperation, operation,
		applog.FieldError, err.Error(),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// validationErrors are the domain rejections surfaced to clients as 400s.
var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrEmptyCategory,
	core.ErrInvalidDate,
	core.ErrEmptyTitle,
	core.ErrInvalidPeriod,
	core.ErrInvalidDueDate,
	core.ErrEmptyName,
	core.ErrEmptyEmail,
	core.ErrPasswordTooWeak,
}

func isValidationError(err error) bool {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// respondServiceError translates service failures into the documented
// status codes. Anything unrecognized is an internal error.
func (s *Server) respondServiceError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	switch {
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrEmailTaken):
		writeError(w, http.StatusConflict, "User exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		s.internalError(ctx, w, operation, err)
	}
}
