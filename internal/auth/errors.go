package auth

import "errors"

// Error taxonomy for the token lifecycle. Handlers map these with errors.Is;
// anything outside this set is logged and surfaced as a generic server error.
var (
	// ErrInvalidCredentials covers both unknown email and password mismatch so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")

	// ErrAccountInactive is returned for pending or deactivated accounts,
	// regardless of password correctness.
	ErrAccountInactive = errors.New("auth: account is not active")

	// ErrTokenExpired marks an access token whose signature checks out but
	// whose lifetime has passed. Recoverable: callers should refresh once.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrTokenInvalid marks a missing, malformed, or tampered token. Terminal.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrRefreshExpired marks a refresh token that is expired or invalid.
	// Terminal: the client must log in again.
	ErrRefreshExpired = errors.New("auth: refresh token expired")

	// ErrForbidden is returned when the identity is valid but lacks the role
	// required by the operation.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrDuplicateAccount is returned on registration with a used email.
	ErrDuplicateAccount = errors.New("auth: email already registered")
)

// ValidationError carries a field-level registration failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "auth: " + e.Field + ": " + e.Reason
}
