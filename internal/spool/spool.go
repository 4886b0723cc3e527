// Package spool buffers pending file content in a temporary file until a
// driver commits or discards it.
//
// Every driver opens files through a Spool: reads and writes hit the temp
// file, so partial writes are never visible at the destination. Remote
// drivers hand the spool to an upload function on commit; the native driver
// renames it over the target.
package spool

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tonimelisma/hive/pkg/quickxorhash"
)

const (
	tempPrefix = ".hive-"
	tempSuffix = ".partial"
	filePerms  = 0o600
)

// Spool is a temp-file backed ReadWriteSeeker. The zero value is not usable;
// call New.
type Spool struct {
	f      *os.File
	path   string
	append bool
	closed bool
}

// New creates an empty spool in dir (os.TempDir() when empty). With
// appendMode set every Write lands at the end of the content regardless of
// the current offset. The temp file is private to the current user.
func New(dir string, appendMode bool) (*Spool, error) {
	return NewFile(dir, appendMode, filePerms)
}

// NewFile is New with an explicit permission for the temp file. The
// process umask applies, as for any created file. Spools that are promoted
// into place for a new target keep this mode.
func NewFile(dir string, appendMode bool, perm os.FileMode) (*Spool, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, tempPrefix+uuid.New().String()+tempSuffix)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, fmt.Errorf("spool: creating %s: %w", path, err)
	}

	return &Spool{f: f, path: path, append: appendMode}, nil
}

// Path returns the temp file location.
func (s *Spool) Path() string { return s.path }

// Fill replaces the spool content with everything read from r and rewinds
// to offset zero. Drivers use it to seed a spool with the current remote
// content when a file is opened without truncation.
func (s *Spool) Fill(r io.Reader) (int64, error) {
	if err := s.f.Truncate(0); err != nil {
		return 0, fmt.Errorf("spool: truncating %s: %w", s.path, err)
	}

	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("spool: rewinding %s: %w", s.path, err)
	}

	n, err := io.Copy(s.f, r)
	if err != nil {
		return n, fmt.Errorf("spool: filling %s: %w", s.path, err)
	}

	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return n, fmt.Errorf("spool: rewinding %s: %w", s.path, err)
	}

	return n, nil
}

func (s *Spool) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

func (s *Spool) Write(p []byte) (int, error) {
	if s.append {
		if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
			return 0, fmt.Errorf("spool: seeking to end: %w", err)
		}
	}

	return s.f.Write(p)
}

func (s *Spool) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

// Size returns the current content length.
func (s *Spool) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("spool: stat %s: %w", s.path, err)
	}

	return fi.Size(), nil
}

// Content returns an independent reader over the whole content along with
// its size. Reading it does not move the spool offset.
func (s *Spool) Content() (*io.SectionReader, int64, error) {
	size, err := s.Size()
	if err != nil {
		return nil, 0, err
	}

	return io.NewSectionReader(s.f, 0, size), size, nil
}

// QuickXorHash returns the base64 QuickXorHash of the content.
func (s *Spool) QuickXorHash() (string, error) {
	r, _, err := s.Content()
	if err != nil {
		return "", err
	}

	sum, err := quickxorhash.Base64(r)
	if err != nil {
		return "", fmt.Errorf("spool: hashing %s: %w", s.path, err)
	}

	return sum, nil
}

// Reset drops all content. A spool already consumed by Promote has none.
func (s *Spool) Reset() error {
	if s.closed {
		return nil
	}

	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("spool: truncating %s: %w", s.path, err)
	}

	_, err := s.f.Seek(0, io.SeekStart)

	return err
}

// Promote makes the spool content durable at target: fsync, close, then
// move into place. An existing target keeps its permission bits. With
// exclusive set Promote fails with an fs.ErrExist error when target already
// exists, including one created after the spool was opened. target must be
// on the same filesystem as the spool. The spool is unusable afterwards.
func (s *Spool) Promote(target string, exclusive bool) error {
	if s.closed {
		return fmt.Errorf("spool: %s already closed", s.path)
	}

	if !exclusive {
		if fi, err := os.Stat(target); err == nil {
			if err := s.f.Chmod(fi.Mode().Perm()); err != nil {
				return fmt.Errorf("spool: copying mode of %s: %w", target, err)
			}
		}
	}

	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("spool: syncing %s: %w", s.path, err)
	}

	s.closed = true

	if err := s.f.Close(); err != nil {
		os.Remove(s.path)
		return fmt.Errorf("spool: closing %s: %w", s.path, err)
	}

	if exclusive {
		return s.link(target)
	}

	if err := os.Rename(s.path, target); err != nil {
		os.Remove(s.path)
		return fmt.Errorf("spool: renaming to %s: %w", target, err)
	}

	return nil
}

// link places the closed spool at target without replacing anything.
// Filesystems without hard links fall back to a checked rename, which
// leaves a small window between the check and the rename.
func (s *Spool) link(target string) error {
	defer os.Remove(s.path)

	err := os.Link(s.path, target)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("spool: linking to %s: %w", target, err)
	}

	if _, statErr := os.Lstat(target); statErr == nil {
		return fmt.Errorf("spool: linking to %s: %w", target, fs.ErrExist)
	}

	if err := os.Rename(s.path, target); err != nil {
		return fmt.Errorf("spool: renaming to %s: %w", target, err)
	}

	return nil
}

// Close closes and removes the temp file. It is safe to call after Promote.
func (s *Spool) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	closeErr := s.f.Close()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("spool: removing %s: %w", s.path, err)
	}

	return closeErr
}
