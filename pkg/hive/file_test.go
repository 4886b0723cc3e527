package hive

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFlag_Validate(t *testing.T) {
	tests := []struct {
		name  string
		flags OpenFlag
		ok    bool
	}{
		{"read only", FlagReadOnly, true},
		{"write create trunc", FlagWriteOnly | FlagCreate | FlagTruncate, true},
		{"rdwr append", FlagReadWrite | FlagAppend, true},
		{"create excl", FlagWriteOnly | FlagCreate | FlagExclusive, true},
		{"invalid access mode", FlagWriteOnly | FlagReadWrite, false},
		{"trunc read only", FlagReadOnly | FlagTruncate, false},
		{"append read only", FlagAppend, false},
		{"unknown bit", FlagWriteOnly | OpenFlag(0x4000000), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestOpenFlag_String(t *testing.T) {
	assert.Equal(t, "RDONLY", FlagReadOnly.String())
	assert.Equal(t, "WRONLY|CREAT|TRUNC", (FlagWriteOnly | FlagCreate | FlagTruncate).String())
}

func TestOpenFile_RejectsBadFlags(t *testing.T) {
	_, _, d := loggedInDrive(t)

	_, err := d.OpenFile(context.Background(), "/a", FlagReadOnly|FlagTruncate)
	require.ErrorIs(t, err, ErrInvalidArgs)
}

func TestOpenFile_DriverErrors(t *testing.T) {
	stub, _, d := loggedInDrive(t)
	ctx := context.Background()

	_, err := d.OpenFile(ctx, "/missing", FlagReadOnly)
	require.ErrorIs(t, err, ErrNotExists)

	stub.files["/exists"] = []byte("data")

	_, err = d.OpenFile(ctx, "/exists", FlagWriteOnly|FlagCreate|FlagExclusive)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestFile_CommitMakesVisible(t *testing.T) {
	stub, _, d := loggedInDrive(t)
	ctx := context.Background()

	f, err := d.OpenFile(ctx, "/new.txt", FlagWriteOnly|FlagCreate)
	require.NoError(t, err)
	assert.Equal(t, "/new.txt", f.Path())

	_, err = f.Write([]byte("pending"))
	require.NoError(t, err)

	_, ok := stub.files["/new.txt"]
	assert.False(t, ok, "writes must stay pending until commit")

	require.NoError(t, f.Commit(ctx))
	assert.Equal(t, []byte("pending"), stub.files["/new.txt"])
	require.NoError(t, f.Close())
}

func TestFile_DiscardKeepsDurable(t *testing.T) {
	stub, _, d := loggedInDrive(t)
	ctx := context.Background()
	stub.files["/keep.txt"] = []byte("original")

	f, err := d.OpenFile(ctx, "/keep.txt", FlagWriteOnly|FlagTruncate)
	require.NoError(t, err)

	_, err = f.Write([]byte("replacement"))
	require.NoError(t, err)
	require.NoError(t, f.Discard(ctx))
	require.NoError(t, f.Close())

	assert.Equal(t, []byte("original"), stub.files["/keep.txt"])
}

func TestFile_UseAfterCommit(t *testing.T) {
	_, _, d := loggedInDrive(t)
	ctx := context.Background()

	f, err := d.OpenFile(ctx, "/x", FlagReadWrite|FlagCreate)
	require.NoError(t, err)
	require.NoError(t, f.Commit(ctx))

	_, err = f.Write([]byte("late"))
	require.ErrorIs(t, err, ErrWrongState)

	_, err = f.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrWrongState)

	_, err = f.Seek(0, WhenceStart)
	require.ErrorIs(t, err, ErrWrongState)

	require.ErrorIs(t, f.Commit(ctx), ErrWrongState)
	require.ErrorIs(t, f.Discard(ctx), ErrWrongState)

	require.NoError(t, f.Close())
	require.ErrorIs(t, f.Close(), ErrWrongState)
}

func TestFile_CloseUncommittedDiscards(t *testing.T) {
	stub, _, d := loggedInDrive(t)
	ctx := context.Background()

	f, err := d.OpenFile(ctx, "/draft", FlagWriteOnly|FlagCreate)
	require.NoError(t, err)

	_, err = f.Write([]byte("unsaved"))
	require.NoError(t, err)

	err = f.Close()
	require.ErrorIs(t, err, ErrUncommitted)

	sf := f.drv.(*stubFile)
	assert.Equal(t, 1, sf.discards)
	assert.True(t, sf.closed)

	_, ok := stub.files["/draft"]
	assert.False(t, ok)
}

func TestFile_CloseUnwrittenIsClean(t *testing.T) {
	_, _, d := loggedInDrive(t)

	f, err := d.OpenFile(context.Background(), "/empty", FlagWriteOnly|FlagCreate)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFile_AccessModeEnforced(t *testing.T) {
	stub, _, d := loggedInDrive(t)
	ctx := context.Background()
	stub.files["/r"] = []byte("abc")

	rf, err := d.OpenFile(ctx, "/r", FlagReadOnly)
	require.NoError(t, err)

	_, err = rf.Write([]byte("x"))
	require.ErrorIs(t, err, ErrInvalidArgs)

	data, err := io.ReadAll(rf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	pos, err := rf.Seek(1, WhenceStart)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)

	_, err = rf.Seek(0, Whence(7))
	require.ErrorIs(t, err, ErrInvalidArgs)
	require.NoError(t, rf.Close())

	wf, err := d.OpenFile(ctx, "/r", FlagWriteOnly)
	require.NoError(t, err)

	_, err = wf.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrInvalidArgs)
	require.NoError(t, wf.Close())
}

func TestFile_NotReadyAfterLogout(t *testing.T) {
	_, c, d := loggedInDrive(t)
	ctx := context.Background()

	f, err := d.OpenFile(ctx, "/x", FlagWriteOnly|FlagCreate)
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))

	_, err = f.Write([]byte("x"))
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorIs(t, f.Commit(ctx), ErrNotReady)
	require.NoError(t, f.Close())
}
