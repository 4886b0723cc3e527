package backends

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/hive/pkg/hive"
	"github.com/tonimelisma/hive/pkg/hive/native"
)

func TestRegistry_AllBackends(t *testing.T) {
	r := Registry()

	assert.Equal(t, []hive.BackendType{
		hive.BackendNative,
		hive.BackendIPFS,
		hive.BackendOneDrive,
		hive.BackendOwnCloud,
		hive.BackendS3,
	}, r.Backends())
}

func TestRegistry_NativeRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := Registry(hive.WithRegisterer(prometheus.NewRegistry()))

	c, err := r.NewClient(ctx, hive.Options{
		Backend:            hive.BackendNative,
		PersistentLocation: t.TempDir(),
		Config:             &native.Config{Root: t.TempDir()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.Login(ctx, nil))

	d, err := c.OpenDrive(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.Mkdir(ctx, "/docs"))

	fi, err := d.Stat(ctx, "/docs")
	require.NoError(t, err)
	assert.True(t, fi.IsDir)
}

func TestRegistry_S3NeedsBucket(t *testing.T) {
	_, err := Registry().NewClient(context.Background(), hive.Options{
		Backend:            hive.BackendS3,
		PersistentLocation: t.TempDir(),
	})
	require.ErrorIs(t, err, hive.ErrInvalidArgs)
}
