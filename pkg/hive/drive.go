package hive

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MaxPathLen is the longest path, in bytes, accepted by Drive operations.
const MaxPathLen = 4096

// Drive is a handle on a backend drive. Every operation re-checks that the
// owning Client is still logged in, in the session the drive was opened in.
type Drive struct {
	client  *Client
	drv     DriveDriver
	session uint64

	closeOnce sync.Once
	closeErr  error
}

// Client returns the client the drive was opened from.
func (d *Drive) Client() *Client { return d.client }

// validatePath checks that p is a usable absolute path. The check is purely
// syntactic; drivers resolve the path against their own namespace.
func validatePath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("path is empty")
	case !strings.HasPrefix(p, "/"):
		return fmt.Errorf("path %q is not absolute", p)
	case len(p) > MaxPathLen:
		return fmt.Errorf("path length %d exceeds %d", len(p), MaxPathLen)
	case strings.IndexByte(p, 0) >= 0:
		return fmt.Errorf("path contains NUL byte")
	}

	return nil
}

// precheck runs the checks common to every drive operation: client
// readiness, then path syntax.
func (d *Drive) precheck(op string, paths ...string) error {
	if err := d.client.readyFor("drive."+op, d.session); err != nil {
		return err
	}

	for _, p := range paths {
		if err := validatePath(p); err != nil {
			return newError(CodeInvalidArgs, "drive."+op, err)
		}
	}

	return nil
}

func (d *Drive) unsupported(op string) error {
	return d.client.record(op, time.Time{}, newError(CodeNotSupported, "drive."+op, nil))
}

// Info describes the drive.
func (d *Drive) Info(ctx context.Context) (*DriveInfo, error) {
	const op = "drive_info"

	if err := d.precheck(op); err != nil {
		return nil, d.client.record(op, time.Time{}, err)
	}

	di, ok := d.drv.(DriveInfoer)
	if !ok {
		return nil, d.unsupported(op)
	}

	start := time.Now()
	info, err := di.DriveInfo(ctx)

	return info, d.client.record(op, start, err)
}

// Stat describes the file or directory at path.
func (d *Drive) Stat(ctx context.Context, path string) (*FileInfo, error) {
	const op = "stat"

	if err := d.precheck(op, path); err != nil {
		return nil, d.client.record(op, time.Time{}, err)
	}

	s, ok := d.drv.(Stater)
	if !ok {
		return nil, d.unsupported(op)
	}

	start := time.Now()
	info, err := s.Stat(ctx, path)

	return info, d.client.record(op, start, err)
}

// List calls fn once per entry of the directory at path. When fn returns
// false the iteration stops and List reports stopped == true; that is not
// an error. fn is never called again after it returned false, even if the
// driver keeps producing entries.
func (d *Drive) List(ctx context.Context, path string, fn ListFunc) (stopped bool, err error) {
	const op = "list"

	if err := d.precheck(op, path); err != nil {
		return false, d.client.record(op, time.Time{}, err)
	}

	if fn == nil {
		return false, d.client.record(op, time.Time{}, newError(CodeInvalidArgs, "drive."+op, fmt.Errorf("nil visitor")))
	}

	l, ok := d.drv.(Lister)
	if !ok {
		return false, d.unsupported(op)
	}

	guard := func(info *FileInfo) bool {
		if stopped {
			return false
		}

		if !fn(info) {
			stopped = true
		}

		return !stopped
	}

	start := time.Now()
	err = l.List(ctx, path, guard)

	return stopped, d.client.record(op, start, err)
}

// Mkdir creates a single directory. The parent must exist.
func (d *Drive) Mkdir(ctx context.Context, path string) error {
	const op = "mkdir"

	if err := d.precheck(op, path); err != nil {
		return d.client.record(op, time.Time{}, err)
	}

	m, ok := d.drv.(Mkdirer)
	if !ok {
		return d.unsupported(op)
	}

	start := time.Now()

	return d.client.record(op, start, m.Mkdir(ctx, path))
}

// Move renames oldPath to newPath. The target must not exist.
func (d *Drive) Move(ctx context.Context, oldPath, newPath string) error {
	const op = "move"

	if err := d.precheck(op, oldPath, newPath); err != nil {
		return d.client.record(op, time.Time{}, err)
	}

	m, ok := d.drv.(Mover)
	if !ok {
		return d.unsupported(op)
	}

	start := time.Now()

	return d.client.record(op, start, m.Move(ctx, oldPath, newPath))
}

// Copy duplicates srcPath at dstPath, recursively for directories. The
// target must not exist.
func (d *Drive) Copy(ctx context.Context, srcPath, dstPath string) error {
	const op = "copy"

	if err := d.precheck(op, srcPath, dstPath); err != nil {
		return d.client.record(op, time.Time{}, err)
	}

	c, ok := d.drv.(Copier)
	if !ok {
		return d.unsupported(op)
	}

	start := time.Now()

	return d.client.record(op, start, c.Copy(ctx, srcPath, dstPath))
}

// Delete removes path, recursively for directories.
func (d *Drive) Delete(ctx context.Context, path string) error {
	const op = "delete"

	if err := d.precheck(op, path); err != nil {
		return d.client.record(op, time.Time{}, err)
	}

	del, ok := d.drv.(Deleter)
	if !ok {
		return d.unsupported(op)
	}

	start := time.Now()

	return d.client.record(op, start, del.Delete(ctx, path))
}

// OpenFile opens path with flags. Writes through the returned File are
// pending until Commit.
func (d *Drive) OpenFile(ctx context.Context, path string, flags OpenFlag) (*File, error) {
	const op = "open_file"

	if err := d.precheck(op, path); err != nil {
		return nil, d.client.record(op, time.Time{}, err)
	}

	if err := flags.validate(); err != nil {
		return nil, d.client.record(op, time.Time{}, newError(CodeInvalidArgs, "drive."+op, err))
	}

	fo, ok := d.drv.(FileOpener)
	if !ok {
		return nil, d.unsupported(op)
	}

	start := time.Now()

	fd, err := fo.OpenFile(ctx, path, flags)
	if err != nil {
		return nil, d.client.record(op, start, err)
	}

	return &File{drive: d, drv: fd, path: path, flags: flags}, d.client.record(op, start, nil)
}

// Close releases the drive. Subsequent calls return the first result.
func (d *Drive) Close() error {
	d.closeOnce.Do(func() {
		if err := d.drv.Close(); err != nil {
			d.closeErr = d.client.record("drive_close", time.Time{}, err)
		}
	})

	return d.closeErr
}
