package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
)

// maxBodyBytes caps request bodies; transaction batches are the largest
// expected payload.
const maxBodyBytes = 1 << 20

var errNotAnArray = errors.New("payload is not an array")

// flexDate accepts both RFC 3339 timestamps and bare "2006-01-02"
// dates, which is what spreadsheet exports and UI forms send.
type flexDate struct {
	time.Time
}

func (d *flexDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.ErrInvalidDate
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("%w: %q", core.ErrInvalidDate, raw)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type transactionDraft struct {
	Amount      core.Money `json:"amount"`
	Type        string     `json:"type"`
	Category    string     `json:"category"`
	Date        flexDate   `json:"date"`
	Description string     `json:"description"`
}

func (t transactionDraft) toCore() core.Transaction {
	return core.Transaction{
		Amount:      t.Amount,
		Type:        core.TransactionType(t.Type),
		Category:    strings.TrimSpace(t.Category),
		Date:        t.Date.Time,
		Description: strings.TrimSpace(t.Description),
	}
}

type budgetRequest struct {
	Category string     `json:"category"`
	Limit    core.Money `json:"limit"`
	Period   string     `json:"period"`
}

func (b budgetRequest) toCore() core.Budget {
	return core.Budget{
		Category: strings.TrimSpace(b.Category),
		Limit:    b.Limit,
		Period:   core.BudgetPeriod(b.Period),
	}
}

type emiRequest struct {
	Title   string     `json:"title"`
	Amount  core.Money `json:"amount"`
	DueDate flexDate   `json:"dueDate"`
}

func (e emiRequest) toCore() core.EMI {
	return core.EMI{
		Title:   strings.TrimSpace(e.Title),
		Amount:  e.Amount,
		DueDate: e.DueDate.Time,
	}
}

// decodeBody parses a single JSON object from the request body.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// decodeTransactionBatch parses the ingestion payload, which must be a
// JSON array of drafts.
func decodeTransactionBatch(r *http.Request) ([]transactionDraft, error) {
	defer r.Body.Close()

	var raw json.RawMessage
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, errNotAnArray
	}

	var drafts []transactionDraft
	if err := json.Unmarshal(raw, &drafts); err != nil {
		return nil, fmt.Errorf("invalid transaction in array: %w", err)
	}
	return drafts, nil
}

// parseMonthYear validates the analytics query parameters.
func parseMonthYear(r *http.Request) (month, year int, err error) {
	q := r.URL.Query()
	monthStr, yearStr := q.Get("month"), q.Get("year")
	if monthStr == "" || yearStr == "" {
		return 0, 0, errors.New("month and year are required")
	}

	month, err = strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, errors.New("month must be an integer between 1 and 12")
	}

	year, err = strconv.Atoi(yearStr)
	if err != nil || year < 1 {
		return 0, 0, errors.New("year must be a positive integer")
	}

	return month, year, nil
}
