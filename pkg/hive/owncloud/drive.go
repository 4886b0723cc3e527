package owncloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/studio-b12/gowebdav"

	"github.com/tonimelisma/hive/internal/spool"
	"github.com/tonimelisma/hive/pkg/hive"
)

const filePerms = 0o644

// Drive is the user's WebDAV tree. gowebdav calls take no context; ctx is
// only checked between steps.
type Drive struct {
	drv *Driver
	dav *gowebdav.Client
}

func davPath(p string) string {
	return path.Clean("/" + strings.TrimLeft(p, "/"))
}

func (d *Drive) DriveInfo(context.Context) (*hive.DriveInfo, error) {
	return &hive.DriveInfo{
		ID:         d.drv.cfg.URL,
		Name:       d.drv.cfg.Username,
		DriveType:  "webdav",
		QuotaUsed:  -1,
		QuotaTotal: -1,
	}, nil
}

func toFileInfo(p string, fi fs.FileInfo) *hive.FileInfo {
	info := &hive.FileInfo{
		Name:    fi.Name(),
		Path:    p,
		IsDir:   fi.IsDir(),
		ModTime: fi.ModTime(),
	}

	if f, ok := fi.(*gowebdav.File); ok {
		info.ID = f.ETag()
	}

	if !info.IsDir {
		info.Size = fi.Size()
	}

	if p == "/" {
		info.Name = "/"
	}

	return info
}

func (d *Drive) stat(op, p string) (*hive.FileInfo, error) {
	fi, err := d.dav.Stat(p)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return toFileInfo(p, fi), nil
}

// absent returns CodeAlreadyExists when p exists and nil when it does not.
func (d *Drive) absent(op, p string) error {
	_, err := d.stat(op, p)

	switch {
	case err == nil:
		return hive.NewError(hive.CodeAlreadyExists, op, fmt.Errorf("%s exists", p))
	case errors.Is(err, hive.ErrNotExists):
		return nil
	default:
		return err
	}
}

func (d *Drive) Stat(_ context.Context, p string) (*hive.FileInfo, error) {
	return d.stat("owncloud.stat", davPath(p))
}

func (d *Drive) List(ctx context.Context, p string, fn hive.ListFunc) error {
	const op = "owncloud.list"

	dir := davPath(p)

	st, err := d.stat(op, dir)
	if err != nil {
		return err
	}

	if !st.IsDir {
		return hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("%s is not a collection", dir))
	}

	entries, err := d.dav.ReadDir(dir)
	if err != nil {
		return mapErr(op, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !fn(toFileInfo(path.Join(dir, e.Name()), e)) {
			return nil
		}
	}

	return nil
}

func (d *Drive) Mkdir(_ context.Context, p string) error {
	const op = "owncloud.mkdir"

	p = davPath(p)

	// gowebdav folds 405 from MKCOL into success.
	if err := d.absent(op, p); err != nil {
		return err
	}

	d.drv.logger.Info("creating directory", slog.String("path", p))

	return mapErr(op, d.dav.Mkdir(p, 0o755))
}

func (d *Drive) relocate(ctx context.Context, op, from, to string, move bool) error {
	from, to = davPath(from), davPath(to)

	if _, err := d.stat(op, from); err != nil {
		return err
	}

	if err := d.absent(op, to); err != nil {
		return err
	}

	if _, err := d.stat(op, path.Dir(to)); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	d.drv.logger.Info(strings.TrimPrefix(op, "owncloud."), slog.String("from", from), slog.String("to", to))

	if move {
		return mapErr(op, d.dav.Rename(from, to, false))
	}

	return mapErr(op, d.dav.Copy(from, to, false))
}

func (d *Drive) Move(ctx context.Context, oldPath, newPath string) error {
	return d.relocate(ctx, "owncloud.move", oldPath, newPath, true)
}

func (d *Drive) Copy(ctx context.Context, srcPath, dstPath string) error {
	return d.relocate(ctx, "owncloud.copy", srcPath, dstPath, false)
}

func (d *Drive) Delete(_ context.Context, p string) error {
	const op = "owncloud.delete"

	p = davPath(p)
	if p == "/" {
		return hive.NewError(hive.CodeInvalidArgs, op, errors.New("cannot delete the drive root"))
	}

	// DELETE reports a missing resource as success.
	if _, err := d.stat(op, p); err != nil {
		return err
	}

	d.drv.logger.Info("deleting", slog.String("path", p))

	return mapErr(op, d.dav.RemoveAll(p))
}

func (d *Drive) OpenFile(_ context.Context, p string, flags hive.OpenFlag) (hive.FileDriver, error) {
	const op = "owncloud.open"

	p = davPath(p)

	st, err := d.stat(op, p)
	exists := err == nil

	switch {
	case err != nil && !errors.Is(err, hive.ErrNotExists):
		return nil, err
	case exists && st.IsDir:
		return nil, hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("%s is a collection", p))
	case exists && flags.IsSet(hive.FlagCreate|hive.FlagExclusive):
		return nil, hive.NewError(hive.CodeAlreadyExists, op, fmt.Errorf("%s exists", p))
	case !exists && (!flags.IsSet(hive.FlagCreate) || !flags.Writable()):
		return nil, hive.NewError(hive.CodeNotExists, op, fmt.Errorf("%s does not exist", p))
	}

	// WriteStream would create missing parents; a hive drive does not.
	if !exists {
		if _, err := d.stat(op, path.Dir(p)); err != nil {
			return nil, err
		}
	}

	var seed io.Reader
	if exists && !flags.IsSet(hive.FlagTruncate) {
		rc, err := d.dav.ReadStream(p)
		if err != nil {
			return nil, mapErr(op, err)
		}
		defer rc.Close()

		seed = rc
	}

	h, err := spool.Open(d.drv.spoolDir, flags, seed, func(_ context.Context, content *io.SectionReader) error {
		if err := d.dav.WriteStream(p, content, filePerms); err != nil {
			return mapErr("owncloud.commit", err)
		}

		d.drv.logger.Info("committed file", slog.String("path", p), slog.Int64("size", content.Size()))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("owncloud: %s: %w", op, err)
	}

	return h, nil
}

func (d *Drive) Close() error { return nil }

var (
	_ hive.DriveInfoer = (*Drive)(nil)
	_ hive.Stater      = (*Drive)(nil)
	_ hive.Lister      = (*Drive)(nil)
	_ hive.Mkdirer     = (*Drive)(nil)
	_ hive.Mover       = (*Drive)(nil)
	_ hive.Copier      = (*Drive)(nil)
	_ hive.Deleter     = (*Drive)(nil)
	_ hive.FileOpener  = (*Drive)(nil)
)
