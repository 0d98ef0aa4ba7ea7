package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"opsdeck.io/internal/account"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)

	rec := &Record{AccessToken: "tok", Identity: Identity{ID: "acc-1", Role: account.RoleUser}}
	require.NoError(t, s.Save(rec))

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, rec.AccessToken, got.AccessToken)
	require.Equal(t, rec.Identity, got.Identity)

	// the loaded copy is independent of the stored one
	got.AccessToken = "mutated"
	again, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "tok", again.AccessToken)

	require.NoError(t, s.Clear())
	_, err = s.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFileStoreRoundTripAndPermissions(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	_, err := s.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)

	rec := &Record{
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(15 * time.Minute).UTC(),
		Identity:    Identity{ID: "acc-1", Role: account.RoleAdmin},
		Remember:    true,
		SavedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.Save(rec))

	info, err := os.Stat(filepath.Join(dir, snapshotFile))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "tok", got.AccessToken)
	require.Equal(t, account.RoleAdmin, got.Identity.Role)
	require.True(t, got.Remember)

	require.NoError(t, s.Clear())
	_, err = s.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFileStoreMigratesLegacySplitKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyTokenFile), []byte("legacy-token\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyIdentityFile),
		[]byte(`{"id":"acc-9","role":"admin"}`), 0o600))

	s := NewFileStore(dir)
	rec, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, "legacy-token", rec.AccessToken)
	require.Equal(t, Identity{ID: "acc-9", Role: account.RoleAdmin}, rec.Identity)
	require.True(t, rec.Remember)

	// migration wrote the canonical record and removed the legacy keys
	_, err = os.Stat(filepath.Join(dir, snapshotFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, legacyTokenFile))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, legacyIdentityFile))
	require.ErrorIs(t, err, os.ErrNotExist)

	// subsequent loads come from the canonical record
	again, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, rec.AccessToken, again.AccessToken)
}

func TestFileStoreIgnoresEmptyLegacyToken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyTokenFile), []byte("  \n"), 0o600))

	s := NewFileStore(dir)
	_, err := s.Load()
	require.ErrorIs(t, err, ErrNoSnapshot)
}
