package spool

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/hive/pkg/hive"
)

func TestSpool_WriteReadSeek(t *testing.T) {
	sp, err := New(t.TempDir(), false)
	require.NoError(t, err)
	defer sp.Close()

	_, err = sp.Write([]byte("hello world"))
	require.NoError(t, err)

	_, err = sp.Seek(6, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = io.ReadFull(sp, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf))

	size, err := sp.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
}

func TestSpool_FillRewinds(t *testing.T) {
	sp, err := New(t.TempDir(), false)
	require.NoError(t, err)
	defer sp.Close()

	n, err := sp.Fill(strings.NewReader("seed"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	data, err := io.ReadAll(sp)
	require.NoError(t, err)
	assert.Equal(t, "seed", string(data))
}

func TestSpool_AppendModeIgnoresOffset(t *testing.T) {
	sp, err := New(t.TempDir(), true)
	require.NoError(t, err)
	defer sp.Close()

	_, err = sp.Fill(strings.NewReader("abc"))
	require.NoError(t, err)

	_, err = sp.Write([]byte("def"))
	require.NoError(t, err)

	r, _, err := sp.Content()
	require.NoError(t, err)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestSpool_PromoteRenames(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "final.txt")

	sp, err := New(dir, false)
	require.NoError(t, err)

	_, err = sp.Write([]byte("durable"))
	require.NoError(t, err)
	require.NoError(t, sp.Promote(target, false))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "durable", string(data))

	_, err = os.Stat(sp.Path())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, sp.Close())
}

func TestSpool_PromoteKeepsTargetMode(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "script.sh")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o644))
	require.NoError(t, os.Chmod(target, 0o751))

	sp, err := New(dir, false)
	require.NoError(t, err)

	_, err = sp.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, sp.Promote(target, false))

	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o751), fi.Mode().Perm())
}

func TestSpool_NewFileMode(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "new.txt")

	sp, err := NewFile(dir, false, 0o600)
	require.NoError(t, err)
	require.NoError(t, sp.Promote(target, false))

	fi, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestSpool_PromoteExclusive(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "once.txt")

	first, err := New(dir, false)
	require.NoError(t, err)

	second, err := New(dir, false)
	require.NoError(t, err)

	_, err = first.Write([]byte("first"))
	require.NoError(t, err)
	_, err = second.Write([]byte("second"))
	require.NoError(t, err)

	require.NoError(t, first.Promote(target, true))
	require.ErrorIs(t, second.Promote(target, true), fs.ErrExist)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	for _, sp := range []*Spool{first, second} {
		_, err = os.Stat(sp.Path())
		assert.True(t, os.IsNotExist(err))
		require.NoError(t, sp.Close())
	}
}

func TestSpool_CloseRemoves(t *testing.T) {
	sp, err := New(t.TempDir(), false)
	require.NoError(t, err)

	require.NoError(t, sp.Close())

	_, err = os.Stat(sp.Path())
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, sp.Close())
}

func TestSpool_QuickXorHashEmpty(t *testing.T) {
	sp, err := New(t.TempDir(), false)
	require.NoError(t, err)
	defer sp.Close()

	h, err := sp.QuickXorHash()
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAA=", h)
}

func TestHandle_CommitUploadsWholeContent(t *testing.T) {
	var got bytes.Buffer

	h, err := Open(t.TempDir(), hive.FlagReadWrite, strings.NewReader("old"),
		func(_ context.Context, content *io.SectionReader) error {
			assert.Equal(t, int64(6), content.Size())
			_, err := io.Copy(&got, content)
			return err
		})
	require.NoError(t, err)
	defer h.Close()

	// Overwrite from the start, then extend.
	_, err = h.Write([]byte("new!!!"))
	require.NoError(t, err)

	require.NoError(t, h.Commit(context.Background()))
	assert.Equal(t, "new!!!", got.String())
}

func TestHandle_DiscardEmpties(t *testing.T) {
	h, err := Open(t.TempDir(), hive.FlagWriteOnly, nil, nil)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Write([]byte("pending"))
	require.NoError(t, err)
	require.NoError(t, h.Discard(context.Background()))

	size, err := h.Spool().Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	require.Error(t, h.Commit(context.Background()))
}
