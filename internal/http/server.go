// Package http exposes the JSON API: account registration and login,
// transaction ingestion, analytics queries, budgets and installments.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/analytics"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/auth"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/cache"
	applog "github.com/rishabh4701/personalized-finance-dashboard/internal/log"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/services"
)

// Deps collects everything the server routes to.
type Deps struct {
	Accounts  *services.AccountService
	Ledger    *services.LedgerService
	Budgets   *services.BudgetService
	EMIs      *services.EMIService
	Analytics *analytics.Service
	Gate      *auth.Gate
	Logger    *applog.Logger
}

type Server struct {
	http.Server
	deps        Deps
	logger      *applog.Logger
	rateLimiter *rateLimiter

	// Per-user caches for the read-heavy analytics endpoints,
	// invalidated when the user's ledger changes.
	monthlyCache  *cache.LRUCache[[]analytics.TypeTotal]
	categoryCache *cache.LRUCache[[]analytics.CategoryTotal]
	cashflowCache *cache.LRUCache[analytics.Cashflow]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		deps:          deps,
		logger:        logger.WithComponent(applog.ComponentHTTP),
		rateLimiter:   newRateLimiter(),
		monthlyCache:  cache.NewLRUCache[[]analytics.TypeTotal](200, 5*time.Minute),
		categoryCache: cache.NewLRUCache[[]analytics.CategoryTotal](100, 5*time.Minute),
		cashflowCache: cache.NewLRUCache[analytics.Cashflow](100, 5*time.Minute),
		cacheManager:  cache.NewManager(),
	}

	s.cacheManager.Register(s.monthlyCache)
	s.cacheManager.Register(s.categoryCache)
	s.cacheManager.Register(s.cashflowCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	public := func(h http.HandlerFunc) http.HandlerFunc {
		return s.withSecurityHeaders(h)
	}
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return s.withSecurityHeaders(deps.Gate.Middleware(h).ServeHTTP)
	}

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /register", public(s.handleRegister))
	mux.HandleFunc("POST /login", public(s.handleLogin))

	mux.HandleFunc("POST /transactions", protected(s.handleIngestTransactions))
	mux.HandleFunc("GET /analytics/monthly", protected(s.handleMonthlyAnalytics))
	mux.HandleFunc("GET /analytics/category", protected(s.handleCategoryAnalytics))
	mux.HandleFunc("GET /analytics/cashflow", protected(s.handleCashflowAnalytics))
	mux.HandleFunc("POST /budgets", protected(s.handleCreateBudget))
	mux.HandleFunc("GET /budgets", protected(s.handleListBudgets))
	mux.HandleFunc("GET /budgets/alerts", protected(s.handleBudgetAlerts))
	mux.HandleFunc("POST /emis", protected(s.handleCreateEMI))
	mux.HandleFunc("GET /emis/upcoming", protected(s.handleUpcomingEMIs))
	mux.HandleFunc("PATCH /emis/{id}/pay", protected(s.handleMarkEMIPaid))

	return s
}

// Shutdown stops the listener and the background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging around a handler.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		// Writes are rate limited per client, reads are not.
		if (r.Method == http.MethodPost || r.Method == http.MethodPatch) && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldRequestID, requestID,
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}
