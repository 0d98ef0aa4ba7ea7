package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/login",
	"/v1/refresh-token",
	"/v1/register",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

// withAuth is the authorization gate. For every protected call it extracts
// the bearer token and verifies signature and expiry. Three outcomes:
// valid (identity goes into the context), expired (401 expired:true, the
// caller should refresh exactly once), and missing/malformed/invalid
// (401 expired:false, terminal).
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.ObserveTokenRejection("missing")
			writeUnauthorized(w, r, false, err.Error())
			return
		}

		identity, err := a.svc.VerifyAccess(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				obs.ObserveTokenRejection("expired")
				writeUnauthorized(w, r, true, "access token expired")
			default:
				obs.ObserveTokenRejection("invalid")
				writeUnauthorized(w, r, false, "invalid token")
			}
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin layers the role check on top of the gate. A valid identity
// with the wrong role gets 403, never 401.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		writeUnauthorized(w, r, false, "authentication required")
		return false
	}
	if !auth.IsAdmin(r.Context()) {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
