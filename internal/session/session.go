// Package session is the client-resident half of the token lifecycle: it
// keeps the current token pair and identity snapshot, silently rotates the
// pair through single-flight refresh, enforces the idle timeout, and feeds
// route guards with the session state.
package session

import (
	"errors"
	"time"

	"opsdeck.io/internal/account"
)

// State is the session monitor state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Resolution tracks whether a restored snapshot has been reconciled against
// the server. A durable snapshot is trusted provisionally (Unknown) until
// verification settles it to Valid or Invalid.
type Resolution int

const (
	ResolutionUnknown Resolution = iota
	ResolutionValid
	ResolutionInvalid
)

// Identity is the cached identity snapshot carried by a session.
type Identity struct {
	ID   string       `json:"id"`
	Role account.Role `json:"role"`
}

// TokenGrant is a successful login or refresh result. The refresh token
// itself never appears here; it lives in the http-only cookie managed by the
// transport's cookie jar.
type TokenGrant struct {
	AccessToken string
	ExpiresAt   time.Time
	Identity    Identity
}

var (
	// ErrSessionExpired reports that the session ended terminally: the
	// refresh token was rejected and the caller must log in again.
	ErrSessionExpired = errors.New("session: expired")

	// ErrNoSession reports an operation that needs an authenticated session.
	ErrNoSession = errors.New("session: not authenticated")
)

// Clock abstracts time for deterministic monitor tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is the single rescheduled idle timer handle.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock is the wall-clock implementation used outside tests.
func SystemClock() Clock { return systemClock{} }
