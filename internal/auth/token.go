package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"opsdeck.io/internal/account"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	// DefaultAccessTTL is shared by the login and refresh issuance paths.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL matches the refresh cookie max-age.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims are the JWT claims minted by this service. Access tokens carry the
// subject id and role; refresh tokens carry only the subject id.
type Claims struct {
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Identity is the decoded access-token identity attached to request contexts.
type Identity struct {
	Subject string
	Role    account.Role
}

// Tokens signs and verifies the access/refresh token pair using HS256.
// Verification is pure computation; nothing is persisted server-side.
type Tokens struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokensOption configures Tokens.
type TokensOption func(*Tokens)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokensOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokensOption {
	return func(t *Tokens) {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokensOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokens constructs the signer/verifier.
func NewTokens(secret, issuer string, opts ...TokensOption) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	t := &Tokens{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AccessTTL reports the configured access token lifetime.
func (t *Tokens) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (t *Tokens) RefreshTTL() time.Duration { return t.refreshTTL }

// MintAccess signs a short-lived access token embedding subject id and role.
func (t *Tokens) MintAccess(subject string, role account.Role) (string, time.Time, error) {
	return t.mint(subject, string(role), tokenTypeAccess, t.accessTTL)
}

// MintRefresh signs a refresh token embedding only the subject id.
func (t *Tokens) MintRefresh(subject string) (string, time.Time, error) {
	return t.mint(subject, "", tokenTypeRefresh, t.refreshTTL)
}

func (t *Tokens) mint(subject, role, typ string, ttl time.Duration) (string, time.Time, error) {
	now := t.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccess validates an access token. An expired-but-authentic token
// yields ErrTokenExpired; everything else wrong yields ErrTokenInvalid.
func (t *Tokens) VerifyAccess(token string) (Identity, error) {
	claims, err := t.verify(token, tokenTypeAccess)
	if err != nil {
		return Identity{}, err
	}
	role := account.Role(claims.Role)
	if !role.Valid() {
		return Identity{}, ErrTokenInvalid
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}

// VerifyRefresh validates a refresh token and returns the subject id.
// Any failure collapses to ErrRefreshExpired: the caller cannot recover
// from a bad refresh token other than by logging in again.
func (t *Tokens) VerifyRefresh(token string) (string, error) {
	claims, err := t.verify(token, tokenTypeRefresh)
	if err != nil {
		return "", ErrRefreshExpired
	}
	return claims.Subject, nil
}

func (t *Tokens) verify(token, wantType string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tk *jwt.Token) (any, error) {
		if tk.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithIssuer(t.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			// Expired is only a recoverable signal for a token of the
			// expected type; an expired token of the wrong type is garbage.
			if parsed != nil {
				if claims, ok := parsed.Claims.(*Claims); ok && claims.TokenType == wantType {
					return nil, ErrTokenExpired
				}
			}
			return nil, ErrTokenInvalid
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != wantType {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
