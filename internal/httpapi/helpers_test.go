package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"opsdeck.io/internal/account"
	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/config"
)

type memStore struct {
	mu   sync.Mutex
	seq  int
	accs map[string]*account.Account
}

func newMemStore() *memStore {
	return &memStore{accs: make(map[string]*account.Account)}
}

func (m *memStore) Create(_ context.Context, a *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accs {
		if existing.Email == a.Email {
			return account.ErrDuplicate
		}
	}
	if a.ID == "" {
		m.seq++
		a.ID = fmt.Sprintf("acc-%d", m.seq)
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.accs[a.ID] = &cp
	return nil
}

func (m *memStore) Find(_ context.Context, id string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accs {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (m *memStore) List(_ context.Context) ([]*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]*account.Account, 0, len(m.accs))
	for _, a := range m.accs {
		cp := *a
		res = append(res, &cp)
	}
	return res, nil
}

func (m *memStore) SetActive(_ context.Context, id string, active bool) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	a.Active = active
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (m *memStore) SetAssignedOrders(_ context.Context, id string, orderIDs []string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	a.AssignedOrders = append([]string(nil), orderIDs...)
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	return &cp, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accs[id]
	if !ok {
		return account.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

const (
	testSecret = "handler-test-secret"
	testIssuer = "opsdeck-test"
)

type testAPI struct {
	api    *API
	store  *memStore
	tokens *auth.Tokens
}

func newTestAPI(t *testing.T, opts ...auth.TokensOption) *testAPI {
	t.Helper()
	tokens, err := auth.NewTokens(testSecret, testIssuer, opts...)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	store := newMemStore()
	svc := auth.NewService(store, tokens)
	api := New(Options{
		Service: svc,
		Cookie: config.Auth{
			CookieName:   "refresh_token",
			CookiePath:   "/v1",
			CookieSecure: true,
		},
		Rate:    config.Rate{Burst: 100, PerSecond: 100},
		Version: "test",
	})
	return &testAPI{api: api, store: store, tokens: tokens}
}

func (ta *testAPI) seed(t *testing.T, email, password string, role account.Role, active bool) *account.Account {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	acc := &account.Account{
		FirstName:    "Test",
		LastName:     "User",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       active,
	}
	if err := ta.store.Create(context.Background(), acc); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

func (ta *testAPI) do(t *testing.T, method, path, body string, decorate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, d := range decorate {
		d(req)
	}
	rec := httptest.NewRecorder()
	ta.api.Handler().ServeHTTP(rec, req)
	return rec
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

// login performs a full login and returns the access token and refresh cookie.
func (ta *testAPI) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/v1/login",
		fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	access, _ := body["access_token"].(string)
	if access == "" {
		t.Fatal("login response has no access_token")
	}
	var refresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refresh_token" {
			refresh = c
		}
	}
	if refresh == nil {
		t.Fatal("login response has no refresh cookie")
	}
	return access, refresh
}
