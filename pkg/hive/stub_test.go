package hive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// stubDriver is an in-memory driver with every capability. Behaviour is
// tuned per test through its fields.
type stubDriver struct {
	loginDelay time.Duration
	loginErr   error
	logoutErr  error

	logins    atomic.Int32
	logouts   atomic.Int32
	infoCalls atomic.Int32
	expires   atomic.Int32
	closes    atomic.Int32

	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	// listIgnoresStop makes List keep calling the visitor after a stop.
	listIgnoresStop bool
}

func newStubDriver() *stubDriver {
	return &stubDriver{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

func (s *stubDriver) Close() error {
	s.closes.Inc()
	return nil
}

func (s *stubDriver) Login(ctx context.Context, auth AuthHandler) error {
	s.logins.Inc()

	if s.loginDelay > 0 {
		select {
		case <-time.After(s.loginDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if auth != nil {
		if _, err := auth(ctx, &AuthRequest{Message: "stub"}); err != nil {
			return err
		}
	}

	return s.loginErr
}

func (s *stubDriver) Logout(context.Context) error {
	s.logouts.Inc()
	return s.logoutErr
}

func (s *stubDriver) ClientInfo(context.Context) (*ClientInfo, error) {
	s.infoCalls.Inc()
	return &ClientInfo{UserID: "stub-user"}, nil
}

func (s *stubDriver) ExpireToken(context.Context) error {
	s.expires.Inc()
	return nil
}

func (s *stubDriver) OpenDrive(context.Context) (DriveDriver, error) {
	return &stubDrive{s: s}, nil
}

// bareDriver has no optional capabilities.
type bareDriver struct{}

func (bareDriver) Close() error { return nil }

type stubDrive struct {
	s      *stubDriver
	closed bool
}

func (d *stubDrive) Close() error {
	d.closed = true
	return nil
}

func (d *stubDrive) DriveInfo(context.Context) (*DriveInfo, error) {
	return &DriveInfo{ID: "stub-drive", QuotaUsed: -1, QuotaTotal: -1}, nil
}

func (d *stubDrive) Stat(_ context.Context, p string) (*FileInfo, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if d.s.dirs[p] {
		return &FileInfo{Path: p, IsDir: true}, nil
	}

	if data, ok := d.s.files[p]; ok {
		return &FileInfo{Path: p, Size: int64(len(data))}, nil
	}

	return nil, ErrNotExists
}

func (d *stubDrive) List(_ context.Context, p string, fn ListFunc) error {
	d.s.mu.Lock()
	var names []string
	for name := range d.s.files {
		if strings.HasPrefix(name, strings.TrimSuffix(p, "/")+"/") {
			names = append(names, name)
		}
	}
	d.s.mu.Unlock()

	for _, name := range names {
		if !fn(&FileInfo{Path: name}) && !d.s.listIgnoresStop {
			return nil
		}
	}

	return nil
}

func (d *stubDrive) Mkdir(_ context.Context, p string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if d.s.dirs[p] {
		return ErrAlreadyExists
	}

	d.s.dirs[p] = true

	return nil
}

func (d *stubDrive) Delete(_ context.Context, p string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if _, ok := d.s.files[p]; !ok {
		return ErrNotExists
	}

	delete(d.s.files, p)

	return nil
}

func (d *stubDrive) OpenFile(_ context.Context, p string, flags OpenFlag) (FileDriver, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	data, exists := d.s.files[p]
	if !exists && !flags.IsSet(FlagCreate) {
		return nil, ErrNotExists
	}

	if exists && flags.IsSet(FlagCreate|FlagExclusive) {
		return nil, ErrAlreadyExists
	}

	var buf []byte
	if !flags.IsSet(FlagTruncate) {
		buf = append(buf, data...)
	}

	return &stubFile{s: d.s, path: p, r: bytes.NewReader(buf), buf: buf}, nil
}

// stubFile keeps pending content in memory until Commit.
type stubFile struct {
	s    *stubDriver
	path string
	r    *bytes.Reader
	buf  []byte

	discards int
	closed   bool
}

func (f *stubFile) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *stubFile) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

func (f *stubFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *stubFile) Commit(context.Context) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	f.s.files[f.path] = append([]byte(nil), f.buf...)

	return nil
}

func (f *stubFile) Discard(context.Context) error {
	f.discards++
	f.buf = nil

	return nil
}

func (f *stubFile) Close() error {
	if f.closed {
		return os.ErrClosed
	}

	f.closed = true

	return nil
}

var (
	_ LoginDriver  = (*stubDriver)(nil)
	_ LogoutDriver = (*stubDriver)(nil)
	_ InfoDriver   = (*stubDriver)(nil)
	_ DriveOpener  = (*stubDriver)(nil)
	_ TokenExpirer = (*stubDriver)(nil)
	_ Stater       = (*stubDrive)(nil)
	_ Lister       = (*stubDrive)(nil)
	_ FileDriver   = (*stubFile)(nil)
	_ io.Reader    = (*File)(nil)
)

var errStub = errors.New("stub failure")

// newStubClient returns a client over drv with metrics disabled.
func newStubClient(drv Driver) *Client {
	return newClient(BackendNative, drv, nil, nil)
}

// loggedInDrive returns a logged-in client over a fresh stub and an open
// drive on it.
func loggedInDrive(t *testing.T) (*stubDriver, *Client, *Drive) {
	t.Helper()

	stub := newStubDriver()
	c := newStubClient(stub)
	require.NoError(t, c.Login(context.Background(), nil))

	d, err := c.OpenDrive(context.Background())
	require.NoError(t, err)

	return stub, c, d
}
