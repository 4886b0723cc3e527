package native

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/tonimelisma/hive/internal/spool"
	"github.com/tonimelisma/hive/pkg/hive"
)

// errReadOnly is returned by writes on a read-only handle. The facade
// rejects them first, so drivers only see it when used directly.
var errReadOnly = errors.New("native: file opened read-only")

// readFile serves a read-only open straight from the target file.
type readFile struct {
	f *os.File
}

func (r *readFile) Read(p []byte) (int, error)                { return r.f.Read(p) }
func (r *readFile) Write([]byte) (int, error)                 { return 0, errReadOnly }
func (r *readFile) Seek(off int64, whence int) (int64, error) { return r.f.Seek(off, whence) }
func (r *readFile) Commit(context.Context) error              { return nil }
func (r *readFile) Discard(context.Context) error             { return nil }
func (r *readFile) Close() error                              { return r.f.Close() }

// writeFile spools beside its target; Commit renames the spool over it.
// Exclusive handles link instead, so a target created by someone else
// after the open is never replaced.
type writeFile struct {
	*spool.Handle

	target    string
	path      string
	exclusive bool
	logger    *slog.Logger
}

func (w *writeFile) Commit(context.Context) error {
	if err := w.Spool().Promote(w.target, w.exclusive); err != nil {
		return mapErr("native.commit", err)
	}

	w.logger.Info("committed file", slog.String("path", w.path))

	return nil
}

var (
	_ hive.FileDriver = (*readFile)(nil)
	_ hive.FileDriver = (*writeFile)(nil)
)
