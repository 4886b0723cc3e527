package spool

import (
	"context"
	"fmt"
	"io"

	"github.com/tonimelisma/hive/pkg/hive"
)

// UploadFunc makes committed content durable at the backend. content
// covers the whole spool; content.Size() is its length.
type UploadFunc func(ctx context.Context, content *io.SectionReader) error

// Handle adapts a Spool to hive.FileDriver for drivers that upload on
// commit. Reads, writes, and seeks go to the spool; Commit calls upload.
type Handle struct {
	sp     *Spool
	upload UploadFunc
}

// NewHandle returns a handle over sp. The handle owns sp and removes it on
// Close.
func NewHandle(sp *Spool, upload UploadFunc) *Handle {
	return &Handle{sp: sp, upload: upload}
}

// Open creates a spool in dir and wraps it in a Handle. When seed is
// non-nil the spool starts with its content.
func Open(dir string, flags hive.OpenFlag, seed io.Reader, upload UploadFunc) (*Handle, error) {
	sp, err := New(dir, flags.IsSet(hive.FlagAppend))
	if err != nil {
		return nil, err
	}

	if seed != nil {
		if _, err := sp.Fill(seed); err != nil {
			sp.Close()
			return nil, err
		}
	}

	return NewHandle(sp, upload), nil
}

// Spool returns the underlying spool.
func (h *Handle) Spool() *Spool { return h.sp }

func (h *Handle) Read(p []byte) (int, error)                { return h.sp.Read(p) }
func (h *Handle) Write(p []byte) (int, error)               { return h.sp.Write(p) }
func (h *Handle) Seek(off int64, whence int) (int64, error) { return h.sp.Seek(off, whence) }

func (h *Handle) Commit(ctx context.Context) error {
	if h.upload == nil {
		return fmt.Errorf("spool: no upload function for %s", h.sp.Path())
	}

	content, _, err := h.sp.Content()
	if err != nil {
		return err
	}

	return h.upload(ctx, content)
}

func (h *Handle) Discard(context.Context) error {
	return h.sp.Reset()
}

func (h *Handle) Close() error {
	return h.sp.Close()
}

var _ hive.FileDriver = (*Handle)(nil)
