package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsdeck.io/internal/account"
)

// Service implements credential validation, token issuance, refresh rotation,
// and the account activation gate.
type Service struct {
	store  account.Store
	tokens *Tokens
	now    func() time.Time
}

// TokenPair is an access/refresh pair along with expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// NewService constructs the auth service.
func NewService(store account.Store, tokens *Tokens) *Service {
	return &Service{store: store, tokens: tokens, now: tokens.now}
}

// Authenticate verifies login credentials and mints a fresh token pair.
//
// Unknown email and wrong password produce the same ErrInvalidCredentials.
// An inactive account fails with ErrAccountInactive regardless of whether the
// password was correct.
func (s *Service) Authenticate(ctx context.Context, email, password string) (TokenPair, *account.Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	acc, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, fmt.Errorf("find account: %w", err)
	}
	if !acc.Active {
		return TokenPair{}, nil, ErrAccountInactive
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	pair, err := s.mintPair(acc)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, acc, nil
}

// Register validates the form, hashes the password, and creates the account
// in the inactive state. It cannot authenticate until an admin approves it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*account.Account, error) {
	if err := validateRegistration(&in); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acc := &account.Account{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         account.RoleUser,
		Active:       false,
	}
	if err := s.store.Create(ctx, acc); err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

// Refresh rotates a refresh token into a new pair. The old token is
// superseded by the cookie replacement; no server-side record is kept, so an
// expired or tampered token always yields the terminal ErrRefreshExpired.
// The account's active flag is re-checked so deactivation blocks rotation,
// and the returned snapshot reflects any role change since last issuance.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *account.Account, error) {
	subject, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}
	acc, err := s.store.Find(ctx, subject)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return TokenPair{}, nil, ErrRefreshExpired
		}
		return TokenPair{}, nil, fmt.Errorf("find account: %w", err)
	}
	if !acc.Active {
		return TokenPair{}, nil, ErrAccountInactive
	}
	pair, err := s.mintPair(acc)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, acc, nil
}

// VerifyAccess validates a bearer access token.
func (s *Service) VerifyAccess(token string) (Identity, error) {
	return s.tokens.VerifyAccess(token)
}

// Account loads the account behind an identity.
func (s *Service) Account(ctx context.Context, id string) (*account.Account, error) {
	return s.store.Find(ctx, id)
}

// ListAccounts returns all accounts, for the admin roster view.
func (s *Service) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	return s.store.List(ctx)
}

// Activate flips an account to active, admitting it to authentication.
func (s *Service) Activate(ctx context.Context, id string) (*account.Account, error) {
	return s.store.SetActive(ctx, id, true)
}

// Deactivate blocks future logins and refresh rotations. Access tokens
// already issued stay valid until their own expiry; with the 15 minute
// access TTL that window is the accepted exposure.
func (s *Service) Deactivate(ctx context.Context, id string) (*account.Account, error) {
	return s.store.SetActive(ctx, id, false)
}

// AssignOrders replaces the account's assigned work-order references.
func (s *Service) AssignOrders(ctx context.Context, id string, orderIDs []string) (*account.Account, error) {
	return s.store.SetAssignedOrders(ctx, id, orderIDs)
}

func (s *Service) mintPair(acc *account.Account) (TokenPair, error) {
	access, accessExp, err := s.tokens.MintAccess(acc.ID, acc.Role)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.MintRefresh(acc.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func validateRegistration(in *RegisterInput) error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" {
		return &ValidationError{Field: "first_name", Reason: "required"}
	}
	if in.LastName == "" {
		return &ValidationError{Field: "last_name", Reason: "required"}
	}
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return &ValidationError{Field: "email", Reason: "a valid email is required"}
	}
	if len(in.Password) < 8 {
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	if in.Password != in.ConfirmPassword {
		return &ValidationError{Field: "confirm_password", Reason: "passwords do not match"}
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
