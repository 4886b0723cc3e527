package hive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubRegistry(calls *int) *Registry {
	reg := NewRegistry()
	reg.Register(BackendNative, func(_ context.Context, opts *Options) (Driver, error) {
		*calls++
		return newStubDriver(), nil
	})

	return reg
}

func TestNewClient_Validation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"empty location", Options{Backend: BackendNative}, ErrInvalidArgs},
		{"missing location", Options{Backend: BackendNative, PersistentLocation: filepath.Join(dir, "nope")}, ErrInvalidArgs},
		{"location is a file", Options{Backend: BackendNative, PersistentLocation: file}, ErrInvalidArgs},
		{"backend unset", Options{PersistentLocation: dir}, ErrInvalidArgs},
		{"backend unregistered", Options{Backend: BackendOneDrive, PersistentLocation: dir}, ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c, err := stubRegistry(&calls).NewClient(context.Background(), tt.opts)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, c)
			assert.Zero(t, calls, "constructor must not run")
		})
	}
}

// Empty location wins over an unset backend.
func TestNewClient_ValidationOrder(t *testing.T) {
	calls := 0
	_, err := stubRegistry(&calls).NewClient(context.Background(), Options{})
	require.ErrorIs(t, err, ErrInvalidArgs)

	var he *Error
	require.ErrorAs(t, err, &he)
	assert.Contains(t, he.Error(), "persistent location")
}

func TestNewClient_ConstructorErrorVerbatim(t *testing.T) {
	ctorErr := errors.New("bad config")
	reg := NewRegistry()
	reg.Register(BackendS3, func(context.Context, *Options) (Driver, error) {
		return nil, ctorErr
	})

	_, err := reg.NewClient(context.Background(), Options{Backend: BackendS3, PersistentLocation: t.TempDir()})
	assert.Equal(t, ctorErr, err)
}

func TestNewClient_PassesOptions(t *testing.T) {
	dir := t.TempDir()
	var got *Options

	reg := NewRegistry()
	reg.Register(BackendIPFS, func(_ context.Context, opts *Options) (Driver, error) {
		got = opts
		return bareDriver{}, nil
	})

	c, err := reg.NewClient(context.Background(), Options{
		Backend:            BackendIPFS,
		PersistentLocation: dir,
		Config:             "node-config",
	})
	require.NoError(t, err)

	assert.Equal(t, BackendIPFS, c.Backend())
	assert.Equal(t, StateRaw, c.State())
	assert.Equal(t, dir, got.PersistentLocation)
	assert.Equal(t, "node-config", got.Config)
	assert.NotNil(t, got.Logger)
}

func TestRegistry_Backends(t *testing.T) {
	reg := NewRegistry()
	reg.Register(BackendS3, func(context.Context, *Options) (Driver, error) { return bareDriver{}, nil })
	reg.Register(BackendNative, func(context.Context, *Options) (Driver, error) { return bareDriver{}, nil })

	assert.Equal(t, []BackendType{BackendNative, BackendS3}, reg.Backends())
}

func TestRegister_PanicsOnNone(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry().Register(BackendNone, func(context.Context, *Options) (Driver, error) { return nil, nil })
	})
}

// Registry with only Native: OneDrive is unsupported, an unset backend is
// invalid, and a Native client goes through login, drive, and file writes.
func TestEndToEnd_NativeOnlyRegistry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	calls := 0
	reg := stubRegistry(&calls)

	_, err := reg.NewClient(ctx, Options{Backend: BackendOneDrive, PersistentLocation: dir})
	require.ErrorIs(t, err, ErrNotSupported)

	_, err = reg.NewClient(ctx, Options{PersistentLocation: dir})
	require.ErrorIs(t, err, ErrInvalidArgs)

	c, err := reg.NewClient(ctx, Options{Backend: BackendNative, PersistentLocation: dir})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Login(ctx, nil))

	d, err := c.OpenDrive(ctx)
	require.NoError(t, err)
	defer d.Close()

	f, err := d.OpenFile(ctx, "/hello.txt", FlagWriteOnly|FlagCreate|FlagTruncate)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Commit(ctx))
	require.NoError(t, f.Close())

	info, err := d.Stat(ctx, "/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)

	require.NoError(t, c.Logout(ctx))

	_, err = d.Stat(ctx, "/hello.txt")
	require.ErrorIs(t, err, ErrNotReady)
}

func TestParseBackendType(t *testing.T) {
	b, err := ParseBackendType(" OneDrive ")
	require.NoError(t, err)
	assert.Equal(t, BackendOneDrive, b)

	_, err = ParseBackendType("dropbox")
	require.Error(t, err)

	assert.Equal(t, "none", BackendNone.String())
	assert.Equal(t, "backend(42)", BackendType(42).String())
}
