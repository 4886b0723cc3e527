package onedrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tonimelisma/hive/internal/graph"
	"github.com/tonimelisma/hive/internal/spool"
	"github.com/tonimelisma/hive/pkg/hive"
)

// ErrHashMismatch is returned by Commit when the service reports a
// QuickXorHash that differs from the uploaded content.
var ErrHashMismatch = errors.New("onedrive: uploaded content hash mismatch")

// Drive addresses items by path within one drive.
type Drive struct {
	drv *Driver
	id  string
}

func (d *Drive) DriveInfo(ctx context.Context) (*hive.DriveInfo, error) {
	drv, err := d.drv.client.Drive(ctx, d.id)
	if err != nil {
		return nil, mapErr("onedrive.drive_info", err)
	}

	return &hive.DriveInfo{
		ID:         drv.ID,
		Name:       drv.Name,
		DriveType:  drv.DriveType,
		QuotaUsed:  drv.QuotaUsed,
		QuotaTotal: drv.QuotaTotal,
	}, nil
}

func toFileInfo(p string, item *graph.Item) *hive.FileInfo {
	info := &hive.FileInfo{
		Name:    item.Name,
		Path:    p,
		IsDir:   item.IsFolder || item.IsPackage,
		ModTime: item.ModifiedAt,
		ID:      item.ID,
	}

	if !info.IsDir {
		info.Size = item.Size
	}

	if p == "/" {
		info.Name = "/"
	}

	return info
}

func (d *Drive) item(ctx context.Context, op, p string) (*graph.Item, error) {
	item, err := d.drv.client.GetItemByPath(ctx, d.id, p)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return item, nil
}

// absent returns CodeAlreadyExists when p exists and nil when it does not.
func (d *Drive) absent(ctx context.Context, op, p string) error {
	_, err := d.item(ctx, op, p)

	switch {
	case err == nil:
		return hive.NewError(hive.CodeAlreadyExists, op, fmt.Errorf("%s exists", p))
	case errors.Is(err, hive.ErrNotExists):
		return nil
	default:
		return err
	}
}

func (d *Drive) Stat(ctx context.Context, p string) (*hive.FileInfo, error) {
	p = graph.CleanPath(p)

	item, err := d.item(ctx, "onedrive.stat", p)
	if err != nil {
		return nil, err
	}

	return toFileInfo(p, item), nil
}

func (d *Drive) List(ctx context.Context, p string, fn hive.ListFunc) error {
	const op = "onedrive.list"

	dir := graph.CleanPath(p)

	st, err := d.item(ctx, op, dir)
	if err != nil {
		return err
	}

	if !st.IsFolder {
		return hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("%s is not a folder", dir))
	}

	err = d.drv.client.ListChildren(ctx, d.id, dir, func(item *graph.Item) bool {
		return fn(toFileInfo(joinPath(dir, item.Name), item))
	})

	return mapErr(op, err)
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}

	return dir + "/" + name
}

func (d *Drive) Mkdir(ctx context.Context, p string) error {
	const op = "onedrive.mkdir"

	parent, name := graph.SplitPath(p)
	if name == "" {
		return hive.NewError(hive.CodeAlreadyExists, op, errors.New("the drive root exists"))
	}

	if _, err := d.item(ctx, op, parent); err != nil {
		return err
	}

	_, err := d.drv.client.CreateFolder(ctx, d.id, parent, name)

	return mapErr(op, err)
}

// relocation resolves the source item and the destination parent for a
// move or copy, failing when the destination already exists.
func (d *Drive) relocation(ctx context.Context, op, from, to string) (src, parent *graph.Item, name string, err error) {
	if src, err = d.item(ctx, op, from); err != nil {
		return nil, nil, "", err
	}

	parentPath, name := graph.SplitPath(to)
	if name == "" {
		return nil, nil, "", hive.NewError(hive.CodeAlreadyExists, op, errors.New("destination is the drive root"))
	}

	if err = d.absent(ctx, op, to); err != nil {
		return nil, nil, "", err
	}

	if parent, err = d.item(ctx, op, parentPath); err != nil {
		return nil, nil, "", err
	}

	return src, parent, name, nil
}

func (d *Drive) Move(ctx context.Context, oldPath, newPath string) error {
	const op = "onedrive.move"

	src, parent, name, err := d.relocation(ctx, op, oldPath, newPath)
	if err != nil {
		return err
	}

	_, err = d.drv.client.MoveItem(ctx, d.id, src.ID, parent.ID, name)

	return mapErr(op, err)
}

func (d *Drive) Copy(ctx context.Context, srcPath, dstPath string) error {
	const op = "onedrive.copy"

	src, parent, name, err := d.relocation(ctx, op, srcPath, dstPath)
	if err != nil {
		return err
	}

	id, err := d.drv.client.CopyItem(ctx, d.id, src.ID, parent.ID, name)
	if err != nil {
		return mapErr(op, err)
	}

	d.drv.logger.Debug("copy completed", slog.String("new_item_id", id))

	return nil
}

func (d *Drive) Delete(ctx context.Context, p string) error {
	const op = "onedrive.delete"

	p = graph.CleanPath(p)
	if p == "/" {
		return hive.NewError(hive.CodeInvalidArgs, op, errors.New("cannot delete the drive root"))
	}

	item, err := d.item(ctx, op, p)
	if err != nil {
		return err
	}

	return mapErr(op, d.drv.client.DeleteItem(ctx, d.id, item.ID))
}

func (d *Drive) OpenFile(ctx context.Context, p string, flags hive.OpenFlag) (hive.FileDriver, error) {
	const op = "onedrive.open"

	p = graph.CleanPath(p)

	item, err := d.item(ctx, op, p)
	exists := err == nil

	switch {
	case err != nil && !errors.Is(err, hive.ErrNotExists):
		return nil, err
	case exists && item.IsFolder:
		return nil, hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("%s is a folder", p))
	case exists && flags.IsSet(hive.FlagCreate|hive.FlagExclusive):
		return nil, hive.NewError(hive.CodeAlreadyExists, op, fmt.Errorf("%s exists", p))
	case !exists && (!flags.IsSet(hive.FlagCreate) || !flags.Writable()):
		return nil, hive.NewError(hive.CodeNotExists, op, fmt.Errorf("%s does not exist", p))
	}

	if !exists {
		parent, _ := graph.SplitPath(p)
		if _, err := d.item(ctx, op, parent); err != nil {
			return nil, err
		}
	}

	var h *spool.Handle

	upload := func(ctx context.Context, content *io.SectionReader) error {
		return d.commit(ctx, p, h.Spool(), content)
	}

	if exists && !flags.IsSet(hive.FlagTruncate) {
		h, err = d.seeded(ctx, item.ID, flags, upload)
	} else {
		h, err = spool.Open(d.drv.spoolDir, flags, nil, upload)
	}

	if err != nil {
		return nil, mapErr(op, err)
	}

	return h, nil
}

// seeded opens a spool filled with the item's current content, streamed
// straight from the download.
func (d *Drive) seeded(ctx context.Context, itemID string, flags hive.OpenFlag, upload spool.UploadFunc) (*spool.Handle, error) {
	pr, pw := io.Pipe()

	go func() {
		_, err := d.drv.client.Download(ctx, d.id, itemID, pw)
		pw.CloseWithError(err)
	}()

	h, err := spool.Open(d.drv.spoolDir, flags, pr, upload)
	pr.Close()

	return h, err
}

// commit uploads the spool and checks the service's hash of the result.
func (d *Drive) commit(ctx context.Context, p string, sp *spool.Spool, content *io.SectionReader) error {
	const op = "onedrive.commit"

	item, err := d.drv.client.Upload(ctx, d.id, p, content, content.Size(), d.drv.cfg.ChunkSize)
	if err != nil {
		return mapErr(op, err)
	}

	local, err := sp.QuickXorHash()
	if err != nil {
		return err
	}

	if item.QuickXorHash != "" && item.QuickXorHash != local {
		return fmt.Errorf("%w: %s: local %s, remote %s", ErrHashMismatch, p, local, item.QuickXorHash)
	}

	d.drv.logger.Info("committed file",
		slog.String("path", p),
		slog.Int64("size", content.Size()),
		slog.String("item_id", item.ID),
	)

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
