package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"opsdeck.io/internal/account"
)

// APIError is a structured error decoded from an identity API response.
// Expired mirrors the machine-readable flag on 401 bodies: true means the
// access token merely aged out and one refresh is worth attempting; false is
// terminal.
type APIError struct {
	Status  int
	Message string
	Expired bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Authenticator is the server surface the monitor depends on.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*TokenGrant, error)
	Refresh(ctx context.Context) (*TokenGrant, error)
	Verify(ctx context.Context, accessToken string) (Identity, error)
}

// Client talks to the identity HTTP API. The refresh token rides in the
// cookie jar and is never surfaced to callers.
type Client struct {
	base string
	http *http.Client
}

var _ Authenticator = (*Client)(nil)

// NewClient builds a Client for the given base URL, e.g. "https://api.local".
// The supplied http.Client gains a cookie jar if it has none; pass nil for a
// default client with a 15 second timeout.
func NewClient(base string, hc *http.Client) (*Client, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		hc.Jar = jar
	}
	return &Client{base: base, http: hc}, nil
}

type grantPayload struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
}

func (p grantPayload) grant() *TokenGrant {
	return &TokenGrant{
		AccessToken: p.AccessToken,
		ExpiresAt:   p.ExpiresAt,
		Identity: Identity{
			ID:   p.User.ID,
			Role: account.Role(p.User.Role),
		},
	}
}

// Login exchanges credentials for a token grant. The refresh cookie set by
// the server lands in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenGrant, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	var payload grantPayload
	if err := c.post(ctx, "/v1/login", body, &payload); err != nil {
		return nil, err
	}
	return payload.grant(), nil
}

// Refresh rotates the pair using the jarred refresh cookie.
func (c *Client) Refresh(ctx context.Context) (*TokenGrant, error) {
	var payload grantPayload
	if err := c.post(ctx, "/v1/refresh-token", nil, &payload); err != nil {
		return nil, err
	}
	return payload.grant(), nil
}

// Verify asks the server to validate an access token and returns the
// identity it carries.
func (c *Client) Verify(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/verify-token", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var payload struct {
		Valid    bool `json:"valid"`
		Identity struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		} `json:"identity"`
	}
	if err := c.do(req, &payload); err != nil {
		return Identity{}, err
	}
	if !payload.Valid {
		return Identity{}, &APIError{Status: http.StatusUnauthorized, Message: "token rejected"}
	}
	return Identity{ID: payload.Identity.ID, Role: account.Role(payload.Identity.Role)}, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		apiErr := &APIError{Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
		var body struct {
			Message string `json:"message"`
			Expired bool   `json:"expired"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Message != "" {
			apiErr.Message = body.Message
			apiErr.Expired = body.Expired
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
