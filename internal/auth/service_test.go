package auth

import (
	"context"
	"errors"
	"testing"

	"opsdeck.io/internal/account"
)

// memStore is an in-memory account.Store for service tests.
type memStore struct {
	byID    map[string]*account.Account
	byEmail map[string]*account.Account
	nextID  int
}

func newMemStore() *memStore {
	return &memStore{
		byID:    make(map[string]*account.Account),
		byEmail: make(map[string]*account.Account),
	}
}

func (m *memStore) Create(_ context.Context, a *account.Account) error {
	if _, ok := m.byEmail[a.Email]; ok {
		return account.ErrDuplicate
	}
	if a.ID == "" {
		m.nextID++
		a.ID = string(rune('a' + m.nextID))
	}
	cp := *a
	m.byID[cp.ID] = &cp
	m.byEmail[cp.Email] = &cp
	return nil
}

func (m *memStore) Find(_ context.Context, id string) (*account.Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) List(_ context.Context) ([]*account.Account, error) {
	var out []*account.Account
	for _, a := range m.byID {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) SetActive(_ context.Context, id string, active bool) (*account.Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	a.Active = active
	cp := *a
	return &cp, nil
}

func (m *memStore) SetAssignedOrders(_ context.Context, id string, orderIDs []string) (*account.Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	a.AssignedOrders = orderIDs
	cp := *a
	return &cp, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id, hash string) error {
	a, ok := m.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	tokens := testTokens(t)
	return NewService(store, tokens), store
}

func seedAccount(t *testing.T, store *memStore, email, password string, role account.Role, active bool) *account.Account {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	acc := &account.Account{
		FirstName:    "Sam",
		LastName:     "Field",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       active,
	}
	if err := store.Create(context.Background(), acc); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

func TestAuthenticateSuccess(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "sam@example.com", "hunter2hunter2", account.RoleUser, true)

	pair, acc, err := svc.Authenticate(context.Background(), "Sam@Example.com ", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected token pair")
	}
	if acc.Email != "sam@example.com" {
		t.Fatalf("unexpected snapshot email: %s", acc.Email)
	}

	id, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if id.Subject != acc.ID {
		t.Fatalf("subject mismatch: %s != %s", id.Subject, acc.ID)
	}
}

func TestAuthenticateSameErrorForUnknownAndWrongPassword(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "sam@example.com", "hunter2hunter2", account.RoleUser, true)

	_, _, unknownErr := svc.Authenticate(context.Background(), "nobody@example.com", "whatever123")
	_, _, wrongErr := svc.Authenticate(context.Background(), "sam@example.com", "not-the-password")

	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatal("unknown-email and wrong-password must be indistinguishable")
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "pending@example.com", "hunter2hunter2", account.RoleUser, false)

	// Correct password, still rejected.
	_, _, err := svc.Authenticate(context.Background(), "pending@example.com", "hunter2hunter2")
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	// Wrong password on an inactive account: same signal.
	_, _, err = svc.Authenticate(context.Background(), "pending@example.com", "wrong-password")
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestRegisterCreatesInactiveAccount(t *testing.T) {
	svc, store := newTestService(t)

	acc, err := svc.Register(context.Background(), RegisterInput{
		FirstName:       "New",
		LastName:        "Hire",
		Email:           "New.Hire@Example.com",
		Password:        "longenough",
		ConfirmPassword: "longenough",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.Active {
		t.Fatal("new accounts must start inactive")
	}
	if acc.Role != account.RoleUser {
		t.Fatalf("unexpected role: %s", acc.Role)
	}
	if acc.Email != "new.hire@example.com" {
		t.Fatalf("email not normalized: %s", acc.Email)
	}
	if _, _, err := svc.Authenticate(context.Background(), acc.Email, "longenough"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("pending account must not authenticate, got %v", err)
	}

	// Approval opens the gate.
	if _, err := svc.Activate(context.Background(), acc.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if _, _, err := svc.Authenticate(context.Background(), acc.Email, "longenough"); err != nil {
		t.Fatalf("expected login after activation, got %v", err)
	}
	_ = store
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing first name", RegisterInput{LastName: "x", Email: "a@b.c", Password: "longenough", ConfirmPassword: "longenough"}, "first_name"},
		{"missing email", RegisterInput{FirstName: "x", LastName: "y", Password: "longenough", ConfirmPassword: "longenough"}, "email"},
		{"short password", RegisterInput{FirstName: "x", LastName: "y", Email: "a@b.c", Password: "short", ConfirmPassword: "short"}, "password"},
		{"mismatch", RegisterInput{FirstName: "x", LastName: "y", Email: "a@b.c", Password: "longenough", ConfirmPassword: "different1"}, "confirm_password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, vErr.Field)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, store := newTestService(t)
	seedAccount(t, store, "taken@example.com", "hunter2hunter2", account.RoleUser, true)

	_, err := svc.Register(context.Background(), RegisterInput{
		FirstName:       "Other",
		LastName:        "Person",
		Email:           "taken@example.com",
		Password:        "longenough",
		ConfirmPassword: "longenough",
	})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
	if len(store.byID) != 1 {
		t.Fatalf("duplicate registration must not create a record, have %d", len(store.byID))
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	svc, store := newTestService(t)
	acc := seedAccount(t, store, "sam@example.com", "hunter2hunter2", account.RoleUser, true)

	pair, _, err := svc.Authenticate(context.Background(), acc.Email, "hunter2hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// Role change between issuance and refresh shows up in the new snapshot.
	store.byID[acc.ID].Role = account.RoleAdmin

	next, snapshot, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		t.Fatal("expected rotated pair")
	}
	if snapshot.Role != account.RoleAdmin {
		t.Fatalf("snapshot must reflect current role, got %s", snapshot.Role)
	}

	id, err := svc.VerifyAccess(next.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if id.Subject != acc.ID {
		t.Fatalf("refresh changed subject: %s != %s", id.Subject, acc.ID)
	}
	if id.Role != account.RoleAdmin {
		t.Fatalf("new access token must carry refreshed role, got %s", id.Role)
	}
}

func TestRefreshInvalidToken(t *testing.T) {
	svc, _ := newTestService(t)

	if _, _, err := svc.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expected ErrRefreshExpired, got %v", err)
	}
}

func TestRefreshBlockedAfterDeactivation(t *testing.T) {
	svc, store := newTestService(t)
	acc := seedAccount(t, store, "sam@example.com", "hunter2hunter2", account.RoleUser, true)

	pair, _, err := svc.Authenticate(context.Background(), acc.Email, "hunter2hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Deactivate(context.Background(), acc.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestRefreshUnknownSubject(t *testing.T) {
	svc, _ := newTestService(t)
	tokens := testTokens(t)

	refresh, _, err := tokens.MintRefresh("ghost")
	if err != nil {
		t.Fatalf("MintRefresh: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), refresh); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("expected ErrRefreshExpired for unknown subject, got %v", err)
	}
}
