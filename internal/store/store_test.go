package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), FileName), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	return s
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "ipfs")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Account{
		Backend:     "onedrive",
		UID:         "user-1",
		DisplayName: "Alice",
		DriveID:     "b!abc",
	}))

	a, err := s.Get(ctx, "onedrive")
	require.NoError(t, err)
	assert.Equal(t, "user-1", a.UID)
	assert.Equal(t, "Alice", a.DisplayName)
	assert.Equal(t, "b!abc", a.DriveID)
	assert.Equal(t, 2025, a.UpdatedAt.UTC().Year())
}

func TestPut_Upserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Account{Backend: "s3", UID: "first"}))
	require.NoError(t, s.Put(ctx, &Account{Backend: "s3", UID: "second"}))

	a, err := s.Get(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, "second", a.UID)
}

func TestSetRootHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.SetRootHash(ctx, "ipfs", "Qm1"), ErrNotFound)

	require.NoError(t, s.Put(ctx, &Account{Backend: "ipfs", UID: "peer"}))
	require.NoError(t, s.SetRootHash(ctx, "ipfs", "QmRoot"))
	require.NoError(t, s.SetDriveID(ctx, "ipfs", "mfs"))

	a, err := s.Get(ctx, "ipfs")
	require.NoError(t, err)
	assert.Equal(t, "QmRoot", a.RootHash)
	assert.Equal(t, "mfs", a.DriveID)
	assert.Equal(t, "peer", a.UID)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Account{Backend: "owncloud", UID: "bob"}))
	require.NoError(t, s.Delete(ctx, "owncloud"))
	require.NoError(t, s.Delete(ctx, "owncloud"))

	_, err := s.Get(ctx, "owncloud")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, &Account{Backend: "native", UID: "local"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	a, err := s.Get(ctx, "native")
	require.NoError(t, err)
	assert.Equal(t, "local", a.UID)
}
