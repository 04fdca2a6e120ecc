package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Weekly  BudgetPeriod = "weekly"
	Monthly BudgetPeriod = "monthly"
)

const (
	StatusPending EMIStatus = "pending"
	StatusPaid    EMIStatus = "paid"
)

// FrequencyMonthly is the only supported EMI frequency.
const FrequencyMonthly = "monthly"

type (
	TransactionType string
	BudgetPeriod    string
	EMIStatus       string

	// User is an account holder. PasswordHash never leaves the storage
	// layer except through the credential lookup used at login.
	User struct {
		ID           string    `json:"userId"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	// Transaction is a single append-only ledger record owned by one user.
	Transaction struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"type"`
		Category    string          `json:"category"`
		Date        time.Time       `json:"date"`
		Description string          `json:"description,omitempty"`
		CreatedAt   time.Time       `json:"createdAt"`
	}

	// Budget is a per-category spending limit. Duplicates per
	// (userId, category) are allowed; each row is evaluated on its own.
	Budget struct {
		ID        string       `json:"id"`
		UserID    string       `json:"userId"`
		Category  string       `json:"category"`
		Limit     Money        `json:"limit"`
		Period    BudgetPeriod `json:"period"`
		CreatedAt time.Time    `json:"createdAt"`
	}

	// EMI is a scheduled fixed installment. Its only mutation is the
	// pending -> paid transition.
	EMI struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Title     string    `json:"title"`
		Amount    Money     `json:"amount"`
		DueDate   time.Time `json:"dueDate"`
		Frequency string    `json:"frequency"`
		Status    EMIStatus `json:"status"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidType     = errors.New("type must be income or expense")
	ErrEmptyCategory   = errors.New("category is required")
	ErrInvalidDate     = errors.New("date is required")
	ErrEmptyTitle      = errors.New("title is required")
	ErrInvalidPeriod   = errors.New("period must be weekly or monthly")
	ErrInvalidDueDate  = errors.New("dueDate is required")
	ErrEmptyName       = errors.New("name is required")
	ErrEmptyEmail      = errors.New("email is required")
	ErrPasswordTooWeak = errors.New("password must be at least 6 characters")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (p BudgetPeriod) Valid() bool {
	return p == Weekly || p == Monthly
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if err := b.Limit.Validate(); err != nil {
		return err
	}
	if !b.Period.Valid() {
		return ErrInvalidPeriod
	}
	return nil
}

func (e EMI) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.DueDate.IsZero() {
		return ErrInvalidDueDate
	}
	return nil
}

// ValidateRegistration checks the raw registration input before any
// hashing or storage happens.
func ValidateRegistration(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	if len(password) < 6 {
		return ErrPasswordTooWeak
	}
	return nil
}

// NormalizeEmail lowercases and trims an email so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
