package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"opsdeck.io/internal/audit"
	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/config"
	"opsdeck.io/internal/obs"
)

// ReadyProbe checks readiness of downstream dependencies.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer of the identity service.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	audit      *audit.Log
	logger     *zap.Logger
	cookie     config.Auth
	rate       config.Rate
	readyProbe ReadyProbe
	version    string
}

// Options bundles API construction inputs.
type Options struct {
	Service    *auth.Service
	Audit      *audit.Log
	Logger     *zap.Logger
	Cookie     config.Auth
	Rate       config.Rate
	ReadyProbe ReadyProbe
	Version    string
}

func New(o Options) *API {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &API{
		mux:        http.NewServeMux(),
		svc:        o.Service,
		audit:      o.Audit,
		logger:     logger,
		cookie:     o.Cookie,
		rate:       o.Rate,
		readyProbe: o.ReadyProbe,
		version:    o.Version,
	}
	if a.audit == nil {
		a.audit = audit.NewLog(logger)
	}

	// health/ready
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// credential endpoints (public, rate limited)
	credLimit := func(h http.HandlerFunc) http.Handler {
		return RateLimit(h, a.rate.Burst, a.rate.PerSecond)
	}
	a.mux.Handle("/v1/login", credLimit(a.handleLogin))
	a.mux.Handle("/v1/refresh-token", credLimit(a.handleRefresh))
	a.mux.Handle("/v1/register", credLimit(a.handleRegister))

	// protected endpoints
	a.mux.HandleFunc("/v1/verify-token", a.handleVerifyToken)
	a.mux.HandleFunc("/v1/accounts", a.handleAccounts)
	a.mux.HandleFunc("/v1/approve/", a.handleApprove)
	a.mux.HandleFunc("/v1/deactivate/", a.handleDeactivate)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = LoggingJSON(a.logger)(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return h
}

// --- operational handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "opsdeck-identity",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
