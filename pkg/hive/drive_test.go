package hive

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"root", "/", true},
		{"nested", "/a/b/c.txt", true},
		{"empty", "", false},
		{"relative", "a/b", false},
		{"nul byte", "/a\x00b", false},
		{"max length", "/" + strings.Repeat("a", MaxPathLen-1), true},
		{"too long", "/" + strings.Repeat("a", MaxPathLen), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDrive_InvalidPathNeverReachesDriver(t *testing.T) {
	stub, c, d := loggedInDrive(t)
	ctx := context.Background()

	require.ErrorIs(t, d.Mkdir(ctx, "relative"), ErrInvalidArgs)
	require.ErrorIs(t, d.Move(ctx, "/ok", ""), ErrInvalidArgs)

	_, err := d.Stat(ctx, "no-slash")
	require.ErrorIs(t, err, ErrInvalidArgs)

	stub.mu.Lock()
	assert.Len(t, stub.dirs, 1)
	stub.mu.Unlock()

	assert.ErrorIs(t, c.LastError(), ErrInvalidArgs)
}

func TestDrive_NotReadyAfterLogout(t *testing.T) {
	_, c, d := loggedInDrive(t)
	ctx := context.Background()

	require.NoError(t, c.Logout(ctx))

	require.ErrorIs(t, d.Mkdir(ctx, "/x"), ErrNotReady)

	_, err := d.Info(ctx)
	require.ErrorIs(t, err, ErrNotReady)

	_, err = d.OpenFile(ctx, "/x", FlagReadOnly)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestDrive_StaleAfterRelogin(t *testing.T) {
	_, c, d := loggedInDrive(t)
	ctx := context.Background()

	f, err := d.OpenFile(ctx, "/pending.txt", FlagWriteOnly|FlagCreate)
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	require.NoError(t, c.Login(ctx, nil))

	_, err = d.Stat(ctx, "/")
	require.ErrorIs(t, err, ErrNotReady)

	_, err = f.Write([]byte("late"))
	require.ErrorIs(t, err, ErrNotReady)

	fresh, err := c.OpenDrive(ctx)
	require.NoError(t, err)

	_, err = fresh.Stat(ctx, "/")
	require.NoError(t, err)
}

// Readiness is checked before path syntax.
func TestDrive_NotReadyBeatsInvalidPath(t *testing.T) {
	_, c, d := loggedInDrive(t)
	require.NoError(t, c.Logout(context.Background()))

	require.ErrorIs(t, d.Delete(context.Background(), ""), ErrNotReady)
}

func TestDrive_NotSupported(t *testing.T) {
	_, c, d := loggedInDrive(t)
	ctx := context.Background()

	// stubDrive has no Move or Copy.
	require.ErrorIs(t, d.Move(ctx, "/a", "/b"), ErrNotSupported)
	require.ErrorIs(t, d.Copy(ctx, "/a", "/b"), ErrNotSupported)
	assert.ErrorIs(t, c.LastError(), ErrNotSupported)
}

func TestDrive_DriverErrorsVerbatim(t *testing.T) {
	_, _, d := loggedInDrive(t)
	ctx := context.Background()

	require.NoError(t, d.Mkdir(ctx, "/docs"))
	require.ErrorIs(t, d.Mkdir(ctx, "/docs"), ErrAlreadyExists)
	require.ErrorIs(t, d.Delete(ctx, "/missing"), ErrNotExists)

	info, err := d.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stub-drive", info.ID)
}

func seedFiles(stub *stubDriver, n int) {
	stub.mu.Lock()
	defer stub.mu.Unlock()

	for i := range n {
		stub.files[fmt.Sprintf("/dir/f%02d", i)] = []byte("x")
	}
}

func TestList_All(t *testing.T) {
	stub, _, d := loggedInDrive(t)
	seedFiles(stub, 5)

	var seen int
	stopped, err := d.List(context.Background(), "/dir", func(*FileInfo) bool {
		seen++
		return true
	})
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t, 5, seen)
}

func TestList_StopAfterK(t *testing.T) {
	stub, _, d := loggedInDrive(t)
	seedFiles(stub, 10)

	var seen int
	stopped, err := d.List(context.Background(), "/dir", func(*FileInfo) bool {
		seen++
		return seen < 3
	})
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, 3, seen)
}

func TestList_GuardsMisbehavingDriver(t *testing.T) {
	stub, _, d := loggedInDrive(t)
	stub.listIgnoresStop = true
	seedFiles(stub, 10)

	var seen int
	stopped, err := d.List(context.Background(), "/dir", func(*FileInfo) bool {
		seen++
		return false
	})
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, 1, seen)
}

func TestList_NilVisitor(t *testing.T) {
	_, _, d := loggedInDrive(t)

	_, err := d.List(context.Background(), "/", nil)
	require.ErrorIs(t, err, ErrInvalidArgs)
}

func TestDrive_CloseOnce(t *testing.T) {
	_, _, d := loggedInDrive(t)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.True(t, d.drv.(*stubDrive).closed)
}
