package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/analytics"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/auth"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/services"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/storage"
)

const testSecret = "server-test-secret"

// memStore is an in-memory stand-in for the SQLite repository with the
// same aggregation semantics.
type memStore struct {
	users   map[string]core.User // keyed by email
	txs     []core.Transaction
	budgets []core.Budget
	emis    []core.EMI
	seq     int
}

func newMemStore() *memStore {
	return &memStore{users: map[string]core.User{}}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) CreateUser(_ context.Context, u core.User) (core.User, error) {
	if _, ok := m.users[u.Email]; ok {
		return core.User{}, storage.ErrEmailTaken
	}
	u.ID = m.nextID("user")
	m.users[u.Email] = u
	return u, nil
}

func (m *memStore) GetCredentialsByEmail(_ context.Context, email string) (core.User, error) {
	u, ok := m.users[email]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (m *memStore) InsertTransactions(_ context.Context, txs []core.Transaction) ([]core.Transaction, error) {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	for i := range out {
		out[i].ID = m.nextID("tx")
	}
	m.txs = append(m.txs, out...)
	return out, nil
}

func (m *memStore) MonthlyTypeTotals(_ context.Context, userID string, start, end time.Time) ([]storage.TypeTotal, error) {
	sums := map[string]int64{}
	for _, tx := range m.txs {
		if tx.UserID != userID || tx.Date.Before(start) || tx.Date.After(end) {
			continue
		}
		sums[string(tx.Type)] += tx.Amount.Cents
	}
	var rows []storage.TypeTotal
	for typ, total := range sums {
		rows = append(rows, storage.TypeTotal{Type: typ, TotalCents: total})
	}
	return rows, nil
}

func (m *memStore) CategoryExpenseTotals(_ context.Context, userID string) ([]storage.CategoryTotal, error) {
	sums := map[string]int64{}
	for _, tx := range m.txs {
		if tx.UserID != userID || tx.Type != core.Expense {
			continue
		}
		sums[tx.Category] += tx.Amount.Cents
	}
	var rows []storage.CategoryTotal
	for cat, total := range sums {
		rows = append(rows, storage.CategoryTotal{Category: cat, TotalCents: total})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TotalCents > rows[j].TotalCents })
	return rows, nil
}

func (m *memStore) Cashflow(_ context.Context, userID string) (storage.CashflowTotals, error) {
	var totals storage.CashflowTotals
	for _, tx := range m.txs {
		if tx.UserID != userID {
			continue
		}
		switch tx.Type {
		case core.Income:
			totals.IncomeCents += tx.Amount.Cents
		case core.Expense:
			totals.ExpenseCents += tx.Amount.Cents
		}
	}
	return totals, nil
}

func (m *memStore) CategorySpendSince(_ context.Context, userID, category string, since time.Time) (int64, error) {
	var total int64
	for _, tx := range m.txs {
		if tx.UserID == userID && tx.Type == core.Expense && tx.Category == category && !tx.Date.Before(since) {
			total += tx.Amount.Cents
		}
	}
	return total, nil
}

func (m *memStore) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	b.ID = m.nextID("budget")
	m.budgets = append(m.budgets, b)
	return b, nil
}

func (m *memStore) ListBudgets(_ context.Context, userID string) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range m.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) CreateEMI(_ context.Context, e core.EMI) (core.EMI, error) {
	e.ID = m.nextID("emi")
	if e.Status == "" {
		e.Status = core.StatusPending
	}
	if e.Frequency == "" {
		e.Frequency = core.FrequencyMonthly
	}
	m.emis = append(m.emis, e)
	return e, nil
}

func (m *memStore) ListUpcomingEMIs(_ context.Context, userID string, from, to time.Time) ([]core.EMI, error) {
	var out []core.EMI
	for _, e := range m.emis {
		if e.UserID == userID && e.Status == core.StatusPending && !e.DueDate.Before(from) && !e.DueDate.After(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *memStore) MarkEMIPaid(_ context.Context, id, userID string) (core.EMI, error) {
	for i := range m.emis {
		if m.emis[i].ID == id && m.emis[i].UserID == userID {
			m.emis[i].Status = core.StatusPaid
			return m.emis[i], nil
		}
	}
	return core.EMI{}, storage.ErrNotFound
}

func newTestServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	store := newMemStore()
	s := NewServer(":0", Deps{
		Accounts:  services.NewAccountService(store, testSecret, time.Hour, 4),
		Ledger:    services.NewLedgerService(store, nil),
		Budgets:   services.NewBudgetService(store),
		EMIs:      services.NewEMIService(store),
		Analytics: analytics.NewService(store, nil, nil),
		Gate:      auth.NewGate([]byte(testSecret)),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, store
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func registerAndLogin(t *testing.T, s *Server, email string) (userID, token string) {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/register", "", map[string]string{
		"name": "A", "email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/login", "", map[string]string{
		"email": email, "password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
	}
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.UserID, resp.Token
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestRegisterValidationAndConflict(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/register", "", map[string]string{
		"name": "A", "email": "a@x.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/register", "", map[string]string{
		"name": "A", "email": "a@x.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Message string `json:"message"`
		UserID  string `json:"userId"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "Success", created.Message)
	assert.NotEmpty(t, created.UserID)

	rec = doJSON(t, s, http.MethodPost, "/register", "", map[string]string{
		"name": "B", "email": "a@x.com", "password": "secret2",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message":"User exists"}`, rec.Body.String())
}

func TestInternalErrorBodyIsRedacted(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.internalError(context.Background(), rec, "test_op", fmt.Errorf("connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestLoginFailures(t *testing.T) {
	s, _ := newTestServer(t)
	registerAndLogin(t, s, "a@x.com")

	rec := doJSON(t, s, http.MethodPost, "/login", "", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid credentials")

	rec = doJSON(t, s, http.MethodPost, "/login", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s, _ := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/transactions"},
		{http.MethodGet, "/analytics/monthly?month=1&year=2024"},
		{http.MethodGet, "/analytics/category"},
		{http.MethodGet, "/analytics/cashflow"},
		{http.MethodPost, "/budgets"},
		{http.MethodGet, "/budgets/alerts"},
		{http.MethodPost, "/emis"},
		{http.MethodGet, "/emis/upcoming"},
		{http.MethodPatch, "/emis/x/pay"},
	} {
		rec := doJSON(t, s, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}
}

func TestIngestRejectsNonArray(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	rec := doJSON(t, s, http.MethodPost, "/transactions", token, map[string]any{
		"amount": 100, "type": "income", "category": "Salary", "date": "2024-01-05",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Array of transactions required")
}

func TestIngestRejectsInvalidRow(t *testing.T) {
	s, store := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	rec := doJSON(t, s, http.MethodPost, "/transactions", token, []map[string]any{
		{"amount": 100, "type": "income", "category": "Salary", "date": "2024-01-05"},
		{"amount": 40, "type": "transfer", "category": "Food", "date": "2024-01-10"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.txs, "invalid row rejects the whole batch")
}

func TestIngestAndAnalyticsScenario(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	rec := doJSON(t, s, http.MethodPost, "/transactions", token, []map[string]any{
		{"amount": 100, "type": "income", "category": "Salary", "date": "2024-01-05"},
		{"amount": 40, "type": "expense", "category": "Food", "date": "2024-01-10"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ingest struct {
		Message string `json:"message"`
		Count   int    `json:"count"`
	}
	decode(t, rec, &ingest)
	assert.Equal(t, "Transactions added", ingest.Message)
	assert.Equal(t, 2, ingest.Count)

	rec = doJSON(t, s, http.MethodGet, "/analytics/monthly?month=1&year=2024", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var monthly []struct {
		Type  string  `json:"_id"`
		Total float64 `json:"total"`
	}
	decode(t, rec, &monthly)
	require.Len(t, monthly, 2)
	byType := map[string]float64{}
	for _, row := range monthly {
		byType[row.Type] = row.Total
	}
	assert.Equal(t, 100.0, byType["income"])
	assert.Equal(t, 40.0, byType["expense"])

	rec = doJSON(t, s, http.MethodGet, "/analytics/cashflow", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"income":100,"expense":40,"net":60}`, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/analytics/category", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cats []struct {
		Category string  `json:"_id"`
		Total    float64 `json:"total"`
	}
	decode(t, rec, &cats)
	require.Len(t, cats, 1, "income categories are never reported")
	assert.Equal(t, "Food", cats[0].Category)
	assert.Equal(t, 40.0, cats[0].Total)
}

func TestMonthlyAnalyticsValidation(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	for _, query := range []string{
		"", "?month=1", "?year=2024", "?month=0&year=2024", "?month=13&year=2024", "?month=abc&year=2024",
	} {
		rec := doJSON(t, s, http.MethodGet, "/analytics/monthly"+query, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q", query)
	}
}

func TestMonthlyAnalyticsEmptyMonth(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	rec := doJSON(t, s, http.MethodGet, "/analytics/monthly?month=6&year=2023", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBudgetAlertScenario(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	today := time.Now().Format("2006-01-02")
	rec := doJSON(t, s, http.MethodPost, "/transactions", token, []map[string]any{
		{"amount": 40, "type": "expense", "category": "Food", "date": today},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/budgets", token, map[string]any{
		"category": "Food", "limit": 30, "period": "monthly",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Budget created")

	rec = doJSON(t, s, http.MethodGet, "/budgets/alerts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"category":"Food","limit":30,"spent":40,"exceededBy":10}]`, rec.Body.String())
}

func TestBudgetAlertsEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	rec := doJSON(t, s, http.MethodGet, "/budgets/alerts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBudgetValidation(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	rec := doJSON(t, s, http.MethodPost, "/budgets", token, map[string]any{
		"category": "Food", "limit": 30, "period": "yearly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/budgets", token, map[string]any{
		"limit": 30, "period": "monthly",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEMILifecycleOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")
	_, otherToken := registerAndLogin(t, s, "b@x.com")

	due := time.Now().AddDate(0, 0, 3).Format("2006-01-02")
	rec := doJSON(t, s, http.MethodPost, "/emis", token, map[string]any{
		"title": "Car loan", "amount": 120, "dueDate": due,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created struct {
		EMI struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"emi"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "pending", created.EMI.Status)

	rec = doJSON(t, s, http.MethodGet, "/emis/upcoming", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Car loan")

	// Another user cannot pay it, and cannot learn it exists.
	rec = doJSON(t, s, http.MethodPatch, "/emis/"+created.EMI.ID+"/pay", otherToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMI not found")

	rec = doJSON(t, s, http.MethodPatch, "/emis/"+created.EMI.ID+"/pay", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMI marked as paid")

	rec = doJSON(t, s, http.MethodGet, "/emis/upcoming", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCrossUserIsolation(t *testing.T) {
	s, _ := newTestServer(t)
	_, tokenA := registerAndLogin(t, s, "a@x.com")
	_, tokenB := registerAndLogin(t, s, "b@x.com")

	rec := doJSON(t, s, http.MethodPost, "/transactions", tokenA, []map[string]any{
		{"amount": 100, "type": "income", "category": "Salary", "date": "2024-01-05"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/analytics/cashflow", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"income":0,"expense":0,"net":0}`, rec.Body.String())
}

func TestAnalyticsCacheInvalidation(t *testing.T) {
	s, _ := newTestServer(t)
	_, token := registerAndLogin(t, s, "a@x.com")

	rec := doJSON(t, s, http.MethodGet, "/analytics/cashflow", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"income":0,"expense":0,"net":0}`, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/transactions", token, []map[string]any{
		{"amount": 100, "type": "income", "category": "Salary", "date": "2024-01-05"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// The cached zero result must be gone after the ingest.
	rec = doJSON(t, s, http.MethodGet, "/analytics/cashflow", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"income":100,"expense":0,"net":100}`, rec.Body.String())
}

func TestExpiredTokenRejected(t *testing.T) {
	s, _ := newTestServer(t)
	registerAndLogin(t, s, "a@x.com")

	expired, err := auth.GenerateToken("user-1", []byte(testSecret), -time.Minute)
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/analytics/cashflow", expired, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token expired")
}

func TestMalformedAuthHeader(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/analytics/cashflow", strings.NewReader(""))
	req.Header.Set("Authorization", "Basic abc123")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
