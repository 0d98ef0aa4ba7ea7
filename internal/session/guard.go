package session

import "opsdeck.io/internal/account"

// Decision is a route guard verdict.
type Decision int

const (
	// DecisionPending means resolution is still settling; render a neutral
	// placeholder, neither the guarded content nor the login screen.
	DecisionPending Decision = iota
	// DecisionAllow renders the guarded content.
	DecisionAllow
	// DecisionRedirectLogin sends the user to the login screen.
	DecisionRedirectLogin
	// DecisionRedirectHome denies an admin-gated route to a non-admin and
	// sends them to the default authenticated landing area.
	DecisionRedirectHome
)

// Guard consumes monitor state to gate routes. A provisionally trusted
// snapshot (resolution Unknown, state Authenticated) is allowed through to
// avoid a login flash; if reconciliation later invalidates it, the next
// evaluation redirects immediately.
type Guard struct {
	m *Monitor
}

func NewGuard(m *Monitor) *Guard { return &Guard{m: m} }

// Authenticated gates routes that require any logged-in session.
func (g *Guard) Authenticated() Decision {
	state := g.m.State()
	switch state {
	case StateAuthenticated, StateRefreshing:
		return DecisionAllow
	case StateExpired:
		return DecisionRedirectLogin
	}
	if g.m.Resolution() == ResolutionUnknown {
		return DecisionPending
	}
	return DecisionRedirectLogin
}

// Admin gates routes that additionally require the admin role.
func (g *Guard) Admin() Decision {
	if d := g.Authenticated(); d != DecisionAllow {
		return d
	}
	id, ok := g.m.Identity()
	if !ok || id.Role != account.RoleAdmin {
		return DecisionRedirectHome
	}
	return DecisionAllow
}
