// Package native is the local filesystem driver. A drive is a directory
// tree under Config.Root; pending writes spool next to their target and
// commit by rename.
package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tonimelisma/hive/internal/spool"
	"github.com/tonimelisma/hive/pkg/hive"
)

// DefaultDir is the root directory name under the persistent location
// when Config.Root is empty.
const DefaultDir = "native"

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// Config is the native backend section.
type Config struct {
	Root string `toml:"root" yaml:"root"`
}

// Driver serves one root directory. It has no login capability.
type Driver struct {
	root   string
	logger *slog.Logger
}

// New is the hive.Constructor for BackendNative. It creates the root
// directory if needed.
func New(_ context.Context, opts *hive.Options) (hive.Driver, error) {
	var cfg Config
	if c, ok := opts.Config.(*Config); ok && c != nil {
		cfg = *c
	}

	root := cfg.Root
	if root == "" {
		root = filepath.Join(opts.PersistentLocation, DefaultDir)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("native: resolving root: %w", err)
	}

	if err := os.MkdirAll(root, dirPerms); err != nil {
		return nil, fmt.Errorf("native: creating root %s: %w", root, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{root: root, logger: logger.With(slog.String("backend", "native"))}, nil
}

// Root returns the directory backing the drive.
func (d *Driver) Root() string { return d.root }

func (d *Driver) ClientInfo(context.Context) (*hive.ClientInfo, error) {
	info := &hive.ClientInfo{Endpoint: "file://" + filepath.ToSlash(d.root)}

	if host, err := os.Hostname(); err == nil {
		info.DisplayName = host
	}

	info.UserID = fmt.Sprint(os.Getuid())

	return info, nil
}

func (d *Driver) OpenDrive(context.Context) (hive.DriveDriver, error) {
	d.logger.Debug("opening drive", slog.String("root", d.root))

	return &Drive{root: d.root, logger: d.logger}, nil
}

func (d *Driver) Close() error { return nil }

// Drive maps slash paths onto the root directory.
type Drive struct {
	root   string
	logger *slog.Logger
}

// resolve maps a logical path to a host path. Dot-dot segments are
// rejected rather than cleaned away.
func (d *Drive) resolve(op, p string) (string, error) {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("path %q escapes the drive", p))
		}
	}

	return filepath.Join(d.root, filepath.FromSlash(path.Clean(p))), nil
}

// mapErr converts filesystem errors into hive errors. Errno values without
// a general meaning keep their number in FacilitySystem.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return hive.NewError(hive.CodeNotExists, op, err)
	case errors.Is(err, fs.ErrExist):
		return hive.NewError(hive.CodeAlreadyExists, op, err)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &hive.Error{Facility: hive.FacilitySystem, Code: hive.Code(errno), Op: op, Err: err}
	}

	return fmt.Errorf("native: %s: %w", op, err)
}

func (d *Drive) DriveInfo(context.Context) (*hive.DriveInfo, error) {
	return &hive.DriveInfo{
		ID:         filepath.ToSlash(d.root),
		Name:       filepath.Base(d.root),
		DriveType:  "local",
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

	if !info.IsDir {
		info.Size = fi.Size()
	}

	if p == "/" {
		info.Name = "/"
	}

	return info
}

func (d *Drive) Stat(_ context.Context, p string) (*hive.FileInfo, error) {
	host, err := d.resolve("native.stat", p)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(host)
	if err != nil {
		return nil, mapErr("native.stat", err)
	}

	return toFileInfo(path.Clean(p), fi), nil
}

func (d *Drive) List(ctx context.Context, p string, fn hive.ListFunc) error {
	host, err := d.resolve("native.list", p)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(host)
	if err != nil {
		return mapErr("native.list", err)
	}

	dir := path.Clean(p)

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".hive-") {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		fi, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return mapErr("native.list", err)
		}

		if !fn(toFileInfo(path.Join(dir, e.Name()), fi)) {
			return nil
		}
	}

	return nil
}

func (d *Drive) Mkdir(_ context.Context, p string) error {
	host, err := d.resolve("native.mkdir", p)
	if err != nil {
		return err
	}

	d.logger.Info("creating directory", slog.String("path", p))

	return mapErr("native.mkdir", os.Mkdir(host, dirPerms))
}

// exclusiveTarget fails with CodeAlreadyExists when dst exists.
func exclusiveTarget(op, dst string) error {
	_, err := os.Lstat(dst)
	if err == nil {
		return hive.NewError(hive.CodeAlreadyExists, op, fmt.Errorf("%s exists", dst))
	}

	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return mapErr(op, err)
}

func (d *Drive) Move(_ context.Context, oldPath, newPath string) error {
	const op = "native.move"

	src, err := d.resolve(op, oldPath)
	if err != nil {
		return err
	}

	dst, err := d.resolve(op, newPath)
	if err != nil {
		return err
	}

	if _, err := os.Lstat(src); err != nil {
		return mapErr(op, err)
	}

	if err := exclusiveTarget(op, dst); err != nil {
		return err
	}

	d.logger.Info("moving", slog.String("from", oldPath), slog.String("to", newPath))

	return mapErr(op, os.Rename(src, dst))
}

func (d *Drive) Copy(ctx context.Context, srcPath, dstPath string) error {
	const op = "native.copy"

	src, err := d.resolve(op, srcPath)
	if err != nil {
		return err
	}

	dst, err := d.resolve(op, dstPath)
	if err != nil {
		return err
	}

	fi, err := os.Stat(src)
	if err != nil {
		return mapErr(op, err)
	}

	if err := exclusiveTarget(op, dst); err != nil {
		return err
	}

	d.logger.Info("copying", slog.String("from", srcPath), slog.String("to", dstPath))

	if !fi.IsDir() {
		return mapErr(op, copyFile(src, dst))
	}

	if strings.HasPrefix(dst+string(filepath.Separator), src+string(filepath.Separator)) {
		return hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("cannot copy %s into itself", srcPath))
	}

	return mapErr(op, filepath.WalkDir(src, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		if e.IsDir() {
			return os.Mkdir(target, dirPerms)
		}

		if strings.HasPrefix(e.Name(), ".hive-") {
			return nil
		}

		return copyFile(p, target)
	}))
}

// copyFile writes src's content to a spool beside dst and renames it into
// place, so a failed copy never leaves a partial dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	sp, err := spool.NewFile(filepath.Dir(dst), false, fi.Mode().Perm())
	if err != nil {
		return err
	}
	defer sp.Close()

	if _, err := io.Copy(sp, in); err != nil {
		return err
	}

	return sp.Promote(dst, true)
}

func (d *Drive) Delete(_ context.Context, p string) error {
	const op = "native.delete"

	if path.Clean(p) == "/" {
		return hive.NewError(hive.CodeInvalidArgs, op, errors.New("cannot delete the drive root"))
	}

	host, err := d.resolve(op, p)
	if err != nil {
		return err
	}

	if _, err := os.Lstat(host); err != nil {
		return mapErr(op, err)
	}

	d.logger.Info("deleting", slog.String("path", p))

	return mapErr(op, os.RemoveAll(host))
}

func (d *Drive) OpenFile(_ context.Context, p string, flags hive.OpenFlag) (hive.FileDriver, error) {
	const op = "native.open"

	host, err := d.resolve(op, p)
	if err != nil {
		return nil, err
	}

	fi, statErr := os.Stat(host)
	exists := statErr == nil

	switch {
	case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
		return nil, mapErr(op, statErr)
	case exists && fi.IsDir():
		return nil, hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("%s is a directory", p))
	case exists && flags.IsSet(hive.FlagCreate|hive.FlagExclusive):
		return nil, hive.NewError(hive.CodeAlreadyExists, op, fmt.Errorf("%s exists", p))
	case !exists && (!flags.IsSet(hive.FlagCreate) || !flags.Writable()):
		return nil, hive.NewError(hive.CodeNotExists, op, fmt.Errorf("%s does not exist", p))
	}

	if !flags.Writable() {
		f, err := os.Open(host)
		if err != nil {
			return nil, mapErr(op, err)
		}

		return &readFile{f: f}, nil
	}

	if _, err := os.Stat(filepath.Dir(host)); err != nil {
		return nil, mapErr(op, err)
	}

	var seed io.Reader
	if exists && !flags.IsSet(hive.FlagTruncate) {
		f, err := os.Open(host)
		if err != nil {
			return nil, mapErr(op, err)
		}
		defer f.Close()

		seed = f
	}

	sp, err := spool.NewFile(filepath.Dir(host), flags.IsSet(hive.FlagAppend), filePerms)
	if err != nil {
		return nil, mapErr(op, err)
	}

	if seed != nil {
		if _, err := sp.Fill(seed); err != nil {
			sp.Close()
			return nil, mapErr(op, err)
		}
	}

	h := spool.NewHandle(sp, nil)

	d.logger.Debug("opened file for writing",
		slog.String("path", p),
		slog.String("flags", flags.String()),
		slog.String("spool", h.Spool().Path()),
	)

	return &writeFile{
		Handle:    h,
		target:    host,
		path:      p,
		exclusive: flags.IsSet(hive.FlagCreate | hive.FlagExclusive),
		logger:    d.logger,
	}, nil
}

func (d *Drive) Close() error { return nil }

var (
	_ hive.InfoDriver  = (*Driver)(nil)
	_ hive.DriveOpener = (*Driver)(nil)
	_ hive.DriveInfoer = (*Drive)(nil)
	_ hive.Stater      = (*Drive)(nil)
	_ hive.Lister      = (*Drive)(nil)
	_ hive.Mkdirer     = (*Drive)(nil)
	_ hive.Mover       = (*Drive)(nil)
	_ hive.Copier      = (*Drive)(nil)
	_ hive.Deleter     = (*Drive)(nil)
	_ hive.FileOpener  = (*Drive)(nil)
)
