package ipfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/tonimelisma/hive/internal/spool"
	"github.com/tonimelisma/hive/internal/store"
	"github.com/tonimelisma/hive/pkg/hive"
)

// Drive is the node's MFS tree.
type Drive struct {
	drv *Driver
}

func (d *Drive) DriveInfo(ctx context.Context) (*hive.DriveInfo, error) {
	st, err := d.drv.sh.FilesStat(ctx, "/")
	if err != nil {
		return nil, mapErr("ipfs.drive_info", err)
	}

	return &hive.DriveInfo{
		ID:         d.drv.node,
		Name:       "mfs",
		DriveType:  "ipfs",
		QuotaUsed:  int64(st.CumulativeSize),
		QuotaTotal: -1,
		RootHash:   st.Hash,
	}, nil
}

func (d *Drive) stat(ctx context.Context, op, p string) (*hive.FileInfo, error) {
	p = mfsPath(p)

	st, err := d.drv.sh.FilesStat(ctx, p)
	if err != nil {
		return nil, mapErr(op, err)
	}

	info := &hive.FileInfo{
		Name:  path.Base(p),
		Path:  p,
		IsDir: st.Type == "directory",
		ID:    st.Hash,
	}

	if !info.IsDir {
		info.Size = int64(st.Size)
	}

	return info, nil
}

func (d *Drive) Stat(ctx context.Context, p string) (*hive.FileInfo, error) {
	return d.stat(ctx, "ipfs.stat", p)
}

func (d *Drive) List(ctx context.Context, p string, fn hive.ListFunc) error {
	dir := mfsPath(p)

	st, err := d.stat(ctx, "ipfs.list", dir)
	if err != nil {
		return err
	}

	if !st.IsDir {
		return hive.NewError(hive.CodeInvalidArgs, "ipfs.list", fmt.Errorf("%s is not a directory", dir))
	}

	entries, err := d.drv.sh.FilesLs(ctx, dir, shell.FilesLs.Stat(true))
	if err != nil {
		return mapErr("ipfs.list", err)
	}

	for _, e := range entries {
		info := &hive.FileInfo{
			Name:  e.Name,
			Path:  path.Join(dir, e.Name),
			IsDir: int(e.Type) == mfsDirectory,
			ID:    e.Hash,
		}

		if !info.IsDir {
			info.Size = int64(e.Size)
		}

		if !fn(info) {
			return nil
		}
	}

	return nil
}

func (d *Drive) Mkdir(ctx context.Context, p string) error {
	p = mfsPath(p)

	if err := d.absent(ctx, "ipfs.mkdir", p); err != nil {
		return err
	}

	d.drv.logger.Info("creating directory", slog.String("path", p))

	return d.flushAfter(ctx, mapErr("ipfs.mkdir", d.drv.sh.FilesMkdir(ctx, p)))
}

// absent returns CodeAlreadyExists when p exists and nil when it does not.
func (d *Drive) absent(ctx context.Context, op, p string) error {
	_, err := d.stat(ctx, op, p)

	switch {
	case err == nil:
		return hive.NewError(hive.CodeAlreadyExists, op, fmt.Errorf("%s exists", p))
	case errors.Is(err, hive.ErrNotExists):
		return nil
	default:
		return err
	}
}

func (d *Drive) Move(ctx context.Context, oldPath, newPath string) error {
	const op = "ipfs.move"

	oldPath, newPath = mfsPath(oldPath), mfsPath(newPath)

	if _, err := d.stat(ctx, op, oldPath); err != nil {
		return err
	}

	if err := d.absent(ctx, op, newPath); err != nil {
		return err
	}

	d.drv.logger.Info("moving", slog.String("from", oldPath), slog.String("to", newPath))

	return d.flushAfter(ctx, mapErr(op, d.drv.sh.FilesMv(ctx, oldPath, newPath)))
}

func (d *Drive) Copy(ctx context.Context, srcPath, dstPath string) error {
	const op = "ipfs.copy"

	srcPath, dstPath = mfsPath(srcPath), mfsPath(dstPath)

	if _, err := d.stat(ctx, op, srcPath); err != nil {
		return err
	}

	if err := d.absent(ctx, op, dstPath); err != nil {
		return err
	}

	d.drv.logger.Info("copying", slog.String("from", srcPath), slog.String("to", dstPath))

	return d.flushAfter(ctx, mapErr(op, d.drv.sh.FilesCp(ctx, srcPath, dstPath)))
}

func (d *Drive) Delete(ctx context.Context, p string) error {
	const op = "ipfs.delete"

	p = mfsPath(p)
	if p == "/" {
		return hive.NewError(hive.CodeInvalidArgs, op, errors.New("cannot delete the drive root"))
	}

	if _, err := d.stat(ctx, op, p); err != nil {
		return err
	}

	d.drv.logger.Info("deleting", slog.String("path", p))

	return d.flushAfter(ctx, mapErr(op, d.drv.sh.FilesRm(ctx, p, true)))
}

func (d *Drive) OpenFile(ctx context.Context, p string, flags hive.OpenFlag) (hive.FileDriver, error) {
	const op = "ipfs.open"

	p = mfsPath(p)

	st, err := d.stat(ctx, op, p)
	exists := err == nil

	switch {
	case err != nil && !errors.Is(err, hive.ErrNotExists):
		return nil, err
	case exists && st.IsDir:
		return nil, hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("%s is a directory", p))
	case exists && flags.IsSet(hive.FlagCreate|hive.FlagExclusive):
		return nil, hive.NewError(hive.CodeAlreadyExists, op, fmt.Errorf("%s exists", p))
	case !exists && (!flags.IsSet(hive.FlagCreate) || !flags.Writable()):
		return nil, hive.NewError(hive.CodeNotExists, op, fmt.Errorf("%s does not exist", p))
	}

	if !exists {
		if _, err := d.stat(ctx, op, path.Dir(p)); err != nil {
			return nil, err
		}
	}

	var seed io.Reader
	if exists && !flags.IsSet(hive.FlagTruncate) {
		rc, err := d.drv.sh.FilesRead(ctx, p)
		if err != nil {
			return nil, mapErr(op, err)
		}
		defer rc.Close()

		seed = rc
	}

	h, err := spool.Open(d.drv.spoolDir, flags, seed, func(ctx context.Context, content *io.SectionReader) error {
		return d.commit(ctx, p, content)
	})
	if err != nil {
		return nil, fmt.Errorf("ipfs: %s: %w", op, err)
	}

	return h, nil
}

// commit replaces the file at p with the spooled content and flushes so
// the new root hash is durable.
func (d *Drive) commit(ctx context.Context, p string, content *io.SectionReader) error {
	err := d.drv.sh.FilesWrite(ctx, p, content, shell.FilesWrite.Create(true), shell.FilesWrite.Truncate(true))
	if err != nil {
		return mapErr("ipfs.commit", err)
	}

	d.drv.logger.Info("committed file", slog.String("path", p), slog.Int64("size", content.Size()))

	return d.flushAfter(ctx, nil)
}

// flushAfter flushes the MFS root after a successful mutation and records
// the new root hash in the account store.
func (d *Drive) flushAfter(ctx context.Context, err error) error {
	if err != nil {
		return err
	}

	root, err := d.drv.sh.FilesFlush(ctx, "/")
	if err != nil {
		return mapErr("ipfs.flush", err)
	}

	if err := d.drv.accounts.SetRootHash(ctx, backendName, root); err != nil && !errors.Is(err, store.ErrNotFound) {
		d.drv.logger.Warn("failed to record root hash", slog.String("error", err.Error()))
	}

	d.drv.logger.Debug("flushed mfs root", slog.String("root", root))

	return nil
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
