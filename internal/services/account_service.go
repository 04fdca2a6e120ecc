package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rishabh4701/personalized-finance-dashboard/internal/auth"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/core"
	"github.com/rishabh4701/personalized-finance-dashboard/internal/storage"
)

// ErrInvalidCredentials covers both unknown emails and wrong passwords
// so a caller cannot tell registered addresses apart.
var ErrInvalidCredentials = errors.New("invalid credentials")

type accountStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetCredentialsByEmail(ctx context.Context, email string) (core.User, error)
}

// AccountService handles registration and login.
type AccountService struct {
	storage       accountStore
	jwtSecret     string
	tokenValidity time.Duration
	bcryptCost    int
}

func NewAccountService(storage accountStore, jwtSecret string, tokenValidity time.Duration, bcryptCost int) *AccountService {
	return &AccountService{
		storage:       storage,
		jwtSecret:     jwtSecret,
		tokenValidity: tokenValidity,
		bcryptCost:    bcryptCost,
	}
}

// Register validates the details, hashes the password and stores the
// new account. The returned user never carries the hash.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (core.User, error) {
	email = core.NormalizeEmail(email)
	if err := core.ValidateRegistration(name, email, password); err != nil {
		return core.User{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.storage.CreateUser(ctx, core.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "User registered", "userId", user.ID)
	user.PasswordHash = ""
	return user, nil
}

// Login checks the credentials and mints a signed token.
func (s *AccountService) Login(ctx context.Context, email, password string) (core.User, string, error) {
	email = core.NormalizeEmail(email)

	user, err := s.storage.GetCredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.User{}, "", ErrInvalidCredentials
		}
		return core.User{}, "", fmt.Errorf("load credentials: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return core.User{}, "", ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, []byte(s.jwtSecret), s.tokenValidity)
	if err != nil {
		return core.User{}, "", fmt.Errorf("generate token: %w", err)
	}

	user.PasswordHash = ""
	return user, token, nil
}
