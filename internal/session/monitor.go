package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultIdleTimeout is how long a session survives without qualifying
// activity before a silent refresh is forced.
const DefaultIdleTimeout = 10 * time.Minute

// Config bundles Monitor construction inputs. Zero-value fields get safe
// defaults: in-memory stores, the system clock, a nop logger.
type Config struct {
	Client      Authenticator
	Durable     SnapshotStore
	Ephemeral   SnapshotStore
	IdleTimeout time.Duration
	Clock       Clock
	Logger      *zap.Logger
}

// Monitor owns the client session: the current token pair, the cached
// identity, the single rescheduled idle timer, and the single-flight refresh
// discipline. All methods are safe for concurrent use.
type Monitor struct {
	client    Authenticator
	durable   SnapshotStore
	ephemeral SnapshotStore
	idle      time.Duration
	clock     Clock
	logger    *zap.Logger

	flight singleflight.Group

	mu         sync.Mutex
	state      State
	resolution Resolution
	identity   Identity
	access     string
	expiresAt  time.Time
	remember   bool
	gen        uint64
	timer      Timer
	subs       []chan struct{}
}

// NewMonitor constructs a stopped Monitor; call Start to restore a persisted
// session, or Login to begin a fresh one.
func NewMonitor(cfg Config) *Monitor {
	m := &Monitor{
		client:     cfg.Client,
		durable:    cfg.Durable,
		ephemeral:  cfg.Ephemeral,
		idle:       cfg.IdleTimeout,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		resolution: ResolutionInvalid,
	}
	if m.durable == nil {
		m.durable = NewMemoryStore()
	}
	if m.ephemeral == nil {
		m.ephemeral = NewMemoryStore()
	}
	if m.idle <= 0 {
		m.idle = DefaultIdleTimeout
	}
	if m.clock == nil {
		m.clock = SystemClock()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Start restores a persisted snapshot, if any. The snapshot is trusted
// provisionally (resolution Unknown) so the UI does not flash the login
// screen; a background verification reconciles it to Valid or Invalid.
func (m *Monitor) Start(ctx context.Context) {
	rec, err := m.durable.Load()
	if err != nil {
		rec, err = m.ephemeral.Load()
	}
	if err != nil || rec.AccessToken == "" {
		if err != nil && !errors.Is(err, ErrNoSnapshot) {
			m.logger.Warn("load session snapshot", zap.Error(err))
		}
		m.mu.Lock()
		m.resolution = ResolutionInvalid
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.access = rec.AccessToken
	m.expiresAt = rec.ExpiresAt
	m.identity = rec.Identity
	m.remember = rec.Remember
	m.state = StateAuthenticated
	m.resolution = ResolutionUnknown
	m.startTimerLocked()
	m.mu.Unlock()

	go m.reconcile(ctx, gen, rec.AccessToken)
}

// Stop cancels the idle timer without touching session state.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
}

// Login authenticates and adopts the resulting grant. The remember flag
// picks the snapshot durability scope: true persists across restarts, false
// keeps the session only until the process exits.
func (m *Monitor) Login(ctx context.Context, email, password string, remember bool) error {
	grant, err := m.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.gen++
	m.adoptLocked(grant, remember)
	m.mu.Unlock()
	return nil
}

// Logout is a cancellation point: it invalidates any in-flight refresh's
// adoption, cancels the idle timer, and clears both snapshot scopes. No
// timeout broadcast is emitted for an explicit logout.
func (m *Monitor) Logout() {
	m.mu.Lock()
	m.gen++
	m.state = StateUnauthenticated
	m.resolution = ResolutionInvalid
	m.access = ""
	m.identity = Identity{}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()
	m.clearStores()
}

// Activity reports a qualifying user-activity event, rescheduling the single
// idle timer.
func (m *Monitor) Activity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticated && m.timer != nil {
		m.timer.Reset(m.idle)
	}
}

// Refresh rotates the token pair. Concurrent callers share one in-flight
// attempt and settle together on its outcome. A server-side rejection is
// terminal: the session expires, one timeout broadcast is emitted, and
// ErrSessionExpired is returned. Transport failures are surfaced as-is and
// leave the session authenticated.
func (m *Monitor) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateAuthenticated && m.state != StateRefreshing {
		m.mu.Unlock()
		return ErrNoSession
	}
	gen := m.gen
	m.state = StateRefreshing
	m.mu.Unlock()

	_, err, _ := m.flight.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		grant, err := m.client.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.gen == gen {
			m.adoptLocked(grant, m.remember)
		}
		m.mu.Unlock()
		return grant, nil
	})
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		m.expire(gen)
		return ErrSessionExpired
	}

	// Transport-level failure: not a verdict on the refresh token.
	m.mu.Lock()
	if m.gen == gen && m.state == StateRefreshing {
		m.state = StateAuthenticated
	}
	m.mu.Unlock()
	return err
}

// State reports the current state machine state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Resolution reports how far snapshot reconciliation has progressed.
func (m *Monitor) Resolution() Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolution
}

// AccessToken returns the current access token, or "" when unauthenticated.
func (m *Monitor) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

// Identity returns the cached identity snapshot.
func (m *Monitor) Identity() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated && m.state != StateRefreshing {
		return Identity{}, false
	}
	return m.identity, true
}

// Subscribe returns a channel receiving at most one signal per session
// timeout. Every session-aware consumer reacts to the same broadcast.
func (m *Monitor) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// reconcile settles a provisionally trusted snapshot against the server.
func (m *Monitor) reconcile(ctx context.Context, gen uint64, token string) {
	id, err := m.client.Verify(ctx, token)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	if err == nil {
		m.identity = id
		m.resolution = ResolutionValid
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Expired {
		// The snapshot aged out while we were away; one silent refresh
		// either revalidates the session or expires it.
		if rerr := m.Refresh(ctx); rerr != nil && !errors.Is(rerr, ErrSessionExpired) {
			m.invalidate(gen)
		}
		return
	}

	m.logger.Info("session snapshot rejected", zap.Error(err))
	m.invalidate(gen)
}

// adoptLocked installs a fresh grant: tokens, identity, timer, snapshot.
// Caller holds m.mu.
func (m *Monitor) adoptLocked(g *TokenGrant, remember bool) {
	m.access = g.AccessToken
	m.expiresAt = g.ExpiresAt
	m.identity = g.Identity
	m.remember = remember
	m.state = StateAuthenticated
	m.resolution = ResolutionValid
	m.startTimerLocked()

	rec := &Record{
		AccessToken: g.AccessToken,
		ExpiresAt:   g.ExpiresAt,
		Identity:    g.Identity,
		Remember:    remember,
		SavedAt:     m.clock.Now().UTC(),
	}
	target, other := m.ephemeral, m.durable
	if remember {
		target, other = m.durable, m.ephemeral
	}
	if err := target.Save(rec); err != nil {
		m.logger.Warn("save session snapshot", zap.Error(err))
	}
	_ = other.Clear()
}

func (m *Monitor) startTimerLocked() {
	if m.timer == nil {
		m.timer = m.clock.AfterFunc(m.idle, m.onIdle)
		return
	}
	m.timer.Reset(m.idle)
}

// onIdle fires when the idle window elapses without activity: one silent
// refresh attempt, and on rejection the session dies.
func (m *Monitor) onIdle() {
	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = m.Refresh(ctx)
}

// expire ends the session terminally: state Expired, storage cleared, and
// exactly one timeout broadcast. A generation mismatch means a logout or new
// login already superseded this session, so expiry is a no-op.
func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state == StateExpired {
		m.mu.Unlock()
		return
	}
	m.state = StateExpired
	m.resolution = ResolutionInvalid
	m.access = ""
	m.identity = Identity{}
	if m.timer != nil {
		m.timer.Stop()
	}
	subs := append([]chan struct{}(nil), m.subs...)
	m.mu.Unlock()

	m.clearStores()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// invalidate drops a snapshot that failed reconciliation. Unlike expire it
// emits no broadcast: nothing was usably logged in yet.
func (m *Monitor) invalidate(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.state = StateUnauthenticated
	m.resolution = ResolutionInvalid
	m.access = ""
	m.identity = Identity{}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()
	m.clearStores()
}

func (m *Monitor) clearStores() {
	if err := m.durable.Clear(); err != nil {
		m.logger.Warn("clear durable snapshot", zap.Error(err))
	}
	if err := m.ephemeral.Clear(); err != nil {
		m.logger.Warn("clear ephemeral snapshot", zap.Error(err))
	}
}
