package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

var ErrNotAuthenticated = errors.New("user not authenticated")

// Gate authenticates bearer tokens for protected routes. It fails closed:
// no secret means every protected request is rejected.
type Gate struct {
	secret []byte
}

func NewGate(secret []byte) *Gate {
	return &Gate{secret: secret}
}

// Middleware verifies the Authorization header, classifies failures into
// missing/malformed header, expired token and invalid token, and puts the
// caller's user id on the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w, "Unauthorized - Missing or invalid Authorization header. Use format: 'Bearer <token>'")
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if tokenStr == "" {
			unauthorized(w, "Unauthorized - Token missing in Authorization header")
			return
		}

		if len(g.secret) == 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Server error - signing secret not configured"})
			return
		}

		userID, err := GetUserIDFromToken(tokenStr, g.secret)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				unauthorized(w, "Token expired")
			default:
				unauthorized(w, "Invalid token")
			}
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated caller's id set by the
// middleware.
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", ErrNotAuthenticated
	}
	return userID, nil
}

// WithUserID stamps a user id on a context. Used by tests to bypass the
// middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
