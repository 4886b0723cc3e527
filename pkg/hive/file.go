package hive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

type fileState int

const (
	fileOpen     fileState = iota
	fileFinished           // committed or discarded; only Close remains
	fileClosed
)

// File is an open file on a Drive. Writes are pending until Commit and are
// dropped by Discard. A File is not safe for concurrent use.
type File struct {
	drive *Drive
	drv   FileDriver
	path  string
	flags OpenFlag

	state   fileState
	written bool
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Flags returns the flags the file was opened with.
func (f *File) Flags() OpenFlag { return f.flags }

func (f *File) record(op string, start time.Time, err error) error {
	return f.drive.client.record(op, start, err)
}

// usable checks the handle is still open and the client logged in.
func (f *File) usable(op string) error {
	if f.state != fileOpen {
		return newError(CodeWrongState, "file."+op, fmt.Errorf("file %s already finished", f.path))
	}

	return f.drive.client.readyFor("file."+op, f.drive.session)
}

// Read reads from the file. The file must be opened readable.
func (f *File) Read(p []byte) (int, error) {
	const op = "read"

	if err := f.usable(op); err != nil {
		return 0, f.record(op, time.Time{}, err)
	}

	if !f.flags.Readable() {
		return 0, f.record(op, time.Time{}, newError(CodeInvalidArgs, "file."+op, fmt.Errorf("file opened %s", f.flags)))
	}

	n, err := f.drv.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		f.record(op, time.Time{}, err)
	}

	return n, err
}

// Write writes to pending storage. The file must be opened writable.
func (f *File) Write(p []byte) (int, error) {
	const op = "write"

	if err := f.usable(op); err != nil {
		return 0, f.record(op, time.Time{}, err)
	}

	if !f.flags.Writable() {
		return 0, f.record(op, time.Time{}, newError(CodeInvalidArgs, "file."+op, fmt.Errorf("file opened %s", f.flags)))
	}

	n, err := f.drv.Write(p)
	if n > 0 {
		f.written = true
	}

	if err != nil {
		f.record(op, time.Time{}, err)
	}

	return n, err
}

// Seek sets the offset of the next Read or Write.
func (f *File) Seek(offset int64, whence Whence) (int64, error) {
	const op = "seek"

	if err := f.usable(op); err != nil {
		return 0, f.record(op, time.Time{}, err)
	}

	switch whence {
	case WhenceStart, WhenceCurrent, WhenceEnd:
	default:
		return 0, f.record(op, time.Time{}, newError(CodeInvalidArgs, "file."+op, fmt.Errorf("invalid whence %d", whence)))
	}

	pos, err := f.drv.Seek(offset, int(whence))
	if err != nil {
		f.record(op, time.Time{}, err)
	}

	return pos, err
}

// Commit makes pending writes durable. Afterwards only Close is valid.
// Committing a read-only file only finishes the handle.
func (f *File) Commit(ctx context.Context) error {
	const op = "commit"

	if err := f.usable(op); err != nil {
		return f.record(op, time.Time{}, err)
	}

	if !f.flags.Writable() {
		f.state = fileFinished
		return nil
	}

	start := time.Now()
	if err := f.drv.Commit(ctx); err != nil {
		return f.record(op, start, err)
	}

	f.state = fileFinished
	f.drive.client.logger.Debug("file committed")

	return f.record(op, start, nil)
}

// Discard drops pending writes, leaving durable content unchanged.
// Afterwards only Close is valid.
func (f *File) Discard(ctx context.Context) error {
	const op = "discard"

	if err := f.usable(op); err != nil {
		return f.record(op, time.Time{}, err)
	}

	f.state = fileFinished

	if !f.flags.Writable() {
		return nil
	}

	start := time.Now()

	return f.record(op, start, f.drv.Discard(ctx))
}

// Close releases the handle. If the file was written but neither committed
// nor discarded, the pending writes are discarded and Close returns
// ErrUncommitted; the handle is released either way.
func (f *File) Close() error {
	const op = "file_close"

	if f.state == fileClosed {
		return f.record(op, time.Time{}, newError(CodeWrongState, "file.close", fmt.Errorf("file %s already closed", f.path)))
	}

	var errs []error

	if f.state == fileOpen && f.flags.Writable() && f.written {
		if err := f.drv.Discard(context.Background()); err != nil {
			errs = append(errs, err)
		}

		errs = append(errs, newError(CodeUncommitted, "file.close", fmt.Errorf("%s", f.path)))
	}

	f.state = fileClosed

	if err := f.drv.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}

	return f.record(op, time.Time{}, errors.Join(errs...))
}
