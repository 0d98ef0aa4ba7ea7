package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"opsdeck.io/internal/account"
	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userPayload struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	AssignedOrders []string  `json:"assigned_orders"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        userPayload `json:"user"`
}

func toUserPayload(a *account.Account) userPayload {
	orders := a.AssignedOrders
	if orders == nil {
		orders = []string{}
	}
	return userPayload{
		ID:             a.ID,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		Email:          a.Email,
		Role:           string(a.Role),
		Active:         a.Active,
		AssignedOrders: orders,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, acc, err := a.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			obs.ObserveLogin("invalid")
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, auth.ErrAccountInactive):
			obs.ObserveLogin("inactive")
			writeError(w, r, http.StatusForbidden, "account is pending approval or deactivated")
		default:
			obs.ObserveLogin("error")
			a.logger.Error("login failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	obs.ObserveLogin("ok")
	_ = a.audit.Event(r.Context(), "auth.login",
		zap.String("account_id", acc.ID))

	a.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
		User:        toUserPayload(acc),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	raw := a.refreshTokenFromRequest(w, r)
	pair, acc, err := a.svc.Refresh(r.Context(), raw)
	if err != nil {
		a.clearRefreshCookie(w)
		switch {
		case errors.Is(err, auth.ErrAccountInactive):
			obs.ObserveRefresh("inactive")
			writeError(w, r, http.StatusForbidden, "account is deactivated")
		case errors.Is(err, auth.ErrRefreshExpired):
			obs.ObserveRefresh("expired")
			// expired:true tells the client this is terminal for the
			// session: force logout, do not retry.
			writeUnauthorized(w, r, true, "refresh token expired")
		default:
			obs.ObserveRefresh("error")
			a.logger.Error("refresh failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	obs.ObserveRefresh("ok")
	_ = a.audit.Event(r.Context(), "auth.refresh",
		zap.String("account_id", acc.ID))

	a.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
		User:        toUserPayload(acc),
	})
}

// refreshTokenFromRequest prefers the http-only cookie; the JSON body is a
// fallback for non-browser clients.
func (a *API) refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(a.cookie.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (a *API) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	// withAuth already verified the bearer token.
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, false, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"identity": map[string]any{
			"id":   id.Subject,
			"role": string(id.Role),
		},
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acc, err := a.svc.Register(r.Context(), auth.RegisterInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		var vErr *auth.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, r, http.StatusBadRequest, vErr.Error())
		case errors.Is(err, auth.ErrDuplicateAccount):
			writeError(w, r, http.StatusConflict, "email already registered")
		default:
			a.logger.Error("register failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	_ = a.audit.Event(r.Context(), "auth.register",
		zap.String("account_id", acc.ID))

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "registration received, pending approval",
	})
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	accounts, err := a.svc.ListAccounts(r.Context())
	if err != nil {
		a.logger.Error("list accounts failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	payload := make([]userPayload, 0, len(accounts))
	for _, acc := range accounts {
		payload = append(payload, toUserPayload(acc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": payload})
}

func (a *API) handleApprove(w http.ResponseWriter, r *http.Request) {
	a.handleActivation(w, r, "/v1/approve/", true, "auth.account.approve")
}

func (a *API) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	a.handleActivation(w, r, "/v1/deactivate/", false, "auth.account.deactivate")
}

// handleActivation flips the active flag. Deactivation blocks future logins
// and refreshes only; already-issued access tokens run out on their own.
func (a *API) handleActivation(w http.ResponseWriter, r *http.Request, prefix string, active bool, event string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "account not found")
		return
	}

	var (
		acc *account.Account
		err error
	)
	if active {
		acc, err = a.svc.Activate(r.Context(), id)
	} else {
		acc, err = a.svc.Deactivate(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		a.logger.Error("activation change failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = a.audit.Event(r.Context(), event, zap.String("account_id", acc.ID))
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserPayload(acc)})
}

func (a *API) setRefreshCookie(w http.ResponseWriter, raw string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.CookieName,
		Value:    raw,
		Path:     a.cookie.CookiePath,
		Domain:   a.cookie.CookieDomain,
		HttpOnly: true,
		Secure:   a.cookie.CookieSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(time.Until(expires).Seconds()),
		Expires:  expires.UTC(),
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.CookieName,
		Value:    "",
		Path:     a.cookie.CookiePath,
		Domain:   a.cookie.CookieDomain,
		HttpOnly: true,
		Secure:   a.cookie.CookieSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}
