package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"opsdeck.io/internal/account"
)

// Record is the canonical persisted session snapshot. Exactly one record is
// written per session; the access token and identity live together so the
// two can never drift apart.
type Record struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Identity    Identity  `json:"identity"`
	Remember    bool      `json:"remember"`
	SavedAt     time.Time `json:"saved_at"`
}

// ErrNoSnapshot reports an empty store.
var ErrNoSnapshot = errors.New("session: no snapshot")

// SnapshotStore persists the session snapshot across restarts. The monitor
// picks the store at login time based on the remember-me durability flag.
type SnapshotStore interface {
	Load() (*Record, error)
	Save(rec *Record) error
	Clear() error
}

// MemoryStore keeps the snapshot only for the lifetime of the process: the
// non-durable, until-exit scope.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load() (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, ErrNoSnapshot
	}
	cp := *m.rec
	return &cp, nil
}

func (m *MemoryStore) Save(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.rec = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}

const (
	snapshotFile = "session.json"

	// Older releases wrote the token and the identity under separate keys,
	// which could drift apart. They are read once for migration and then
	// removed.
	legacyTokenFile    = "access_token"
	legacyIdentityFile = "identity.json"
)

// FileStore is the durable snapshot scope, one JSON file with 0600
// permissions under the given directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(dir string) *FileStore { return &FileStore{dir: dir} }

func (f *FileStore) Load() (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(f.dir, snapshotFile))
	if err == nil {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return f.migrateLegacy()
}

func (f *FileStore) Save(rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.dir, snapshotFile), raw, 0o600)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, name := range []string{snapshotFile, legacyTokenFile, legacyIdentityFile} {
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// migrateLegacy composes a canonical record from the old split keys, writes
// it, and removes the legacy files. Called with the lock held.
func (f *FileStore) migrateLegacy() (*Record, error) {
	tokenRaw, err := os.ReadFile(filepath.Join(f.dir, legacyTokenFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	token := strings.TrimSpace(string(tokenRaw))
	if token == "" {
		return nil, ErrNoSnapshot
	}

	rec := Record{AccessToken: token, Remember: true, SavedAt: time.Now().UTC()}

	if idRaw, err := os.ReadFile(filepath.Join(f.dir, legacyIdentityFile)); err == nil {
		var legacy struct {
			ID   string `json:"id"`
			Role string `json:"role"`
		}
		if json.Unmarshal(idRaw, &legacy) == nil {
			rec.Identity = Identity{ID: legacy.ID, Role: account.Role(legacy.Role)}
		}
	}

	raw, err := json.Marshal(&rec)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(f.dir, snapshotFile), raw, 0o600); err != nil {
		return nil, err
	}
	_ = os.Remove(filepath.Join(f.dir, legacyTokenFile))
	_ = os.Remove(filepath.Join(f.dir, legacyIdentityFile))
	return &rec, nil
}
