package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/hive/internal/spool"
	"github.com/tonimelisma/hive/pkg/hive"
)

// Drive is one bucket (and prefix).
type Drive struct {
	drv    *Driver
	api    *s3.Client
	bucket string
	prefix string // empty or ends in "/"
}

func cleanPath(p string) string {
	return path.Clean("/" + strings.TrimLeft(p, "/"))
}

// key maps a cleaned drive path to its object key.
func (d *Drive) key(p string) string {
	return d.prefix + strings.TrimPrefix(p, "/")
}

// dirKey is the key prefix of everything inside directory p.
func (d *Drive) dirKey(p string) string {
	if p == "/" {
		return d.prefix
	}

	return d.key(p) + "/"
}

func (d *Drive) DriveInfo(context.Context) (*hive.DriveInfo, error) {
	return &hive.DriveInfo{
		ID:         d.bucket,
		Name:       strings.TrimSuffix(d.bucket+"/"+d.prefix, "/"),
		DriveType:  "s3",
		QuotaUsed:  -1,
		QuotaTotal: -1,
	}, nil
}

func (d *Drive) stat(ctx context.Context, op, p string) (*hive.FileInfo, error) {
	if p == "/" {
		return &hive.FileInfo{Name: "/", Path: "/", IsDir: true}, nil
	}

	head, err := d.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(d.key(p))})
	if err == nil {
		return &hive.FileInfo{
			Name:    path.Base(p),
			Path:    p,
			Size:    aws.ToInt64(head.ContentLength),
			ModTime: aws.ToTime(head.LastModified),
			ID:      strings.Trim(aws.ToString(head.ETag), `"`),
		}, nil
	}

	if err = mapErr(op, err); !errors.Is(err, hive.ErrNotExists) {
		return nil, err
	}

	out, err := d.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(d.dirKey(p)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, mapErr(op, err)
	}

	if len(out.Contents) == 0 {
		return nil, hive.NewError(hive.CodeNotExists, op, fmt.Errorf("%s does not exist", p))
	}

	return &hive.FileInfo{Name: path.Base(p), Path: p, IsDir: true}, nil
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

// requireDir fails unless p is an existing directory.
func (d *Drive) requireDir(ctx context.Context, op, p string) error {
	st, err := d.stat(ctx, op, p)
	if err != nil {
		return err
	}

	if !st.IsDir {
		return hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("%s is not a directory", p))
	}

	return nil
}

func (d *Drive) Stat(ctx context.Context, p string) (*hive.FileInfo, error) {
	return d.stat(ctx, "s3.stat", cleanPath(p))
}

func (d *Drive) List(ctx context.Context, p string, fn hive.ListFunc) error {
	const op = "s3.list"

	dir := cleanPath(p)
	if err := d.requireDir(ctx, op, dir); err != nil {
		return err
	}

	prefix := d.dirKey(dir)

	pages := s3.NewListObjectsV2Paginator(d.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return mapErr(op, err)
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if !fn(&hive.FileInfo{Name: name, Path: path.Join(dir, name), IsDir: true}) {
				return nil
			}
		}

		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue // the directory's own marker
			}

			info := &hive.FileInfo{
				Name:    name,
				Path:    path.Join(dir, name),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
				ID:      strings.Trim(aws.ToString(obj.ETag), `"`),
			}

			if !fn(info) {
				return nil
			}
		}
	}

	return nil
}

func (d *Drive) Mkdir(ctx context.Context, p string) error {
	const op = "s3.mkdir"

	p = cleanPath(p)

	if err := d.absent(ctx, op, p); err != nil {
		return err
	}

	if err := d.requireDir(ctx, op, path.Dir(p)); err != nil {
		return err
	}

	d.drv.logger.Info("creating directory", slog.String("path", p))

	_, err := d.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.dirKey(p)),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})

	return mapErr(op, err)
}

// keysUnder lists every object key below the key prefix.
func (d *Drive) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	pages := s3.NewListObjectsV2Paginator(d.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})

	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// each runs fn for every key with at most fanout requests in flight and
// returns the first error.
func each(ctx context.Context, keys []string, fn func(ctx context.Context, key string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanout)

	for _, k := range keys {
		g.Go(func() error { return fn(gctx, k) })
	}

	return g.Wait()
}

func (d *Drive) copyObject(ctx context.Context, src, dst string) error {
	_, err := d.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(url.PathEscape(d.bucket) + "/" + escapeKey(src)),
	})

	return err
}

func (d *Drive) deleteObject(ctx context.Context, key string) error {
	_, err := d.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(key)})
	return err
}

func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}

	return strings.Join(segs, "/")
}

// relocate copies from to to, object by object for directories, and
// deletes the sources afterwards when move is set.
func (d *Drive) relocate(ctx context.Context, op, from, to string, move bool) error {
	from, to = cleanPath(from), cleanPath(to)

	if from == "/" {
		return hive.NewError(hive.CodeInvalidArgs, op, errors.New("cannot relocate the drive root"))
	}

	st, err := d.stat(ctx, op, from)
	if err != nil {
		return err
	}

	if err := d.absent(ctx, op, to); err != nil {
		return err
	}

	if err := d.requireDir(ctx, op, path.Dir(to)); err != nil {
		return err
	}

	if st.IsDir && strings.HasPrefix(to+"/", from+"/") {
		return hive.NewError(hive.CodeInvalidArgs, op, fmt.Errorf("cannot place %s inside itself", from))
	}

	srcKeys := []string{d.key(from)}
	srcBase, dstBase := d.key(from), d.key(to)

	if st.IsDir {
		srcBase, dstBase = d.dirKey(from), d.dirKey(to)

		if srcKeys, err = d.keysUnder(ctx, srcBase); err != nil {
			return mapErr(op, err)
		}
	}

	d.drv.logger.Info(strings.TrimPrefix(op, "s3."),
		slog.String("from", from),
		slog.String("to", to),
		slog.Int("objects", len(srcKeys)),
	)

	err = each(ctx, srcKeys, func(ctx context.Context, key string) error {
		return d.copyObject(ctx, key, dstBase+strings.TrimPrefix(key, srcBase))
	})
	if err != nil || !move {
		return mapErr(op, err)
	}

	return mapErr(op, each(ctx, srcKeys, d.deleteObject))
}

func (d *Drive) Move(ctx context.Context, oldPath, newPath string) error {
	return d.relocate(ctx, "s3.move", oldPath, newPath, true)
}

func (d *Drive) Copy(ctx context.Context, srcPath, dstPath string) error {
	return d.relocate(ctx, "s3.copy", srcPath, dstPath, false)
}

func (d *Drive) Delete(ctx context.Context, p string) error {
	const op = "s3.delete"

	p = cleanPath(p)
	if p == "/" {
		return hive.NewError(hive.CodeInvalidArgs, op, errors.New("cannot delete the drive root"))
	}

	st, err := d.stat(ctx, op, p)
	if err != nil {
		return err
	}

	keys := []string{d.key(p)}
	if st.IsDir {
		if keys, err = d.keysUnder(ctx, d.dirKey(p)); err != nil {
			return mapErr(op, err)
		}
	}

	d.drv.logger.Info("deleting", slog.String("path", p), slog.Int("objects", len(keys)))

	return mapErr(op, each(ctx, keys, d.deleteObject))
}

func (d *Drive) OpenFile(ctx context.Context, p string, flags hive.OpenFlag) (hive.FileDriver, error) {
	const op = "s3.open"

	p = cleanPath(p)

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
		if err := d.requireDir(ctx, op, path.Dir(p)); err != nil {
			return nil, err
		}
	}

	var seed io.Reader
	if exists && !flags.IsSet(hive.FlagTruncate) {
		out, err := d.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(d.key(p))})
		if err != nil {
			return nil, mapErr(op, err)
		}
		defer out.Body.Close()

		seed = out.Body
	}

	exclusive := flags.IsSet(hive.FlagCreate | hive.FlagExclusive)

	h, err := spool.Open(d.drv.spoolDir, flags, seed, func(ctx context.Context, content *io.SectionReader) error {
		return d.commit(ctx, p, content, exclusive)
	})
	if err != nil {
		return nil, fmt.Errorf("s3: %s: %w", op, err)
	}

	return h, nil
}

// commit puts the spooled content. Exclusive creates are conditional so a
// concurrent writer that got there first wins.
func (d *Drive) commit(ctx context.Context, p string, content *io.SectionReader, exclusive bool) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.key(p)),
		Body:          content,
		ContentLength: aws.Int64(content.Size()),
	}

	if exclusive {
		in.IfNoneMatch = aws.String("*")
	}

	out, err := d.api.PutObject(ctx, in)
	if err != nil {
		return mapErr("s3.commit", err)
	}

	d.drv.logger.Info("committed file",
		slog.String("path", p),
		slog.Int64("size", content.Size()),
		slog.String("etag", aws.ToString(out.ETag)),
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
