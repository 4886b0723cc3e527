// Package owncloud is the ownCloud/Nextcloud driver. The drive is the
// user's WebDAV tree, reached with basic credentials.
package owncloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/studio-b12/gowebdav"

	"github.com/tonimelisma/hive/internal/store"
	"github.com/tonimelisma/hive/pkg/hive"
)

var backendName = hive.BackendOwnCloud.String()

// Config is the ownCloud backend section. URL is the WebDAV root, for
// example https://cloud.example.com/remote.php/dav/files/alice.
type Config struct {
	URL      string `toml:"url" yaml:"url" validate:"required,url"`
	Username string `toml:"username" yaml:"username" validate:"required"`
	Password string `toml:"password" yaml:"password"`

	// Transport overrides the HTTP transport used for WebDAV requests.
	Transport http.RoundTripper `toml:"-" yaml:"-"`
}

// Driver holds one WebDAV account. The WebDAV client exists only after a
// successful Login.
type Driver struct {
	cfg      Config
	dav      *gowebdav.Client
	accounts *store.Store
	spoolDir string
	logger   *slog.Logger
}

// New is the hive.Constructor for BackendOwnCloud.
func New(ctx context.Context, opts *hive.Options) (hive.Driver, error) {
	var cfg Config
	if c, ok := opts.Config.(*Config); ok && c != nil {
		cfg = *c
	}

	if cfg.URL == "" || cfg.Username == "" {
		return nil, hive.NewError(hive.CodeInvalidArgs, "owncloud.new", errors.New("url and username are required"))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("backend", backendName))

	spoolDir := filepath.Join(opts.PersistentLocation, backendName, "spool")
	if err := os.MkdirAll(spoolDir, 0o700); err != nil {
		return nil, fmt.Errorf("owncloud: creating spool directory: %w", err)
	}

	accounts, err := store.Open(ctx, filepath.Join(opts.PersistentLocation, store.FileName), logger)
	if err != nil {
		return nil, err
	}

	return &Driver{cfg: cfg, accounts: accounts, spoolDir: spoolDir, logger: logger}, nil
}

// Login asks auth for the password when the configuration has none, then
// checks the credentials with a PROPFIND on the root.
func (d *Driver) Login(ctx context.Context, auth hive.AuthHandler) error {
	const op = "owncloud.login"

	password := d.cfg.Password
	if password == "" {
		if auth == nil {
			return hive.NewError(hive.CodeInvalidArgs, op, errors.New("no password configured and no auth handler"))
		}

		var err error

		password, err = auth(ctx, &hive.AuthRequest{
			Backend: hive.BackendOwnCloud,
			URL:     d.cfg.URL,
			Message: fmt.Sprintf("Password for %s at %s", d.cfg.Username, d.cfg.URL),
		})
		if err != nil {
			return fmt.Errorf("owncloud: %s: %w", op, err)
		}
	}

	dav := gowebdav.NewClient(d.cfg.URL, d.cfg.Username, password)
	if d.cfg.Transport != nil {
		dav.SetTransport(d.cfg.Transport)
	}

	if _, err := dav.Stat("/"); err != nil {
		return mapErr(op, err)
	}

	d.dav = dav

	d.logger.Info("signed in", slog.String("user", d.cfg.Username), slog.String("url", d.cfg.URL))

	return d.accounts.Put(ctx, &store.Account{
		Backend:     backendName,
		UID:         d.cfg.Username,
		DisplayName: d.cfg.Username,
		Endpoint:    d.cfg.URL,
	})
}

// Logout drops the WebDAV client and the account record. The server keeps
// no session.
func (d *Driver) Logout(ctx context.Context) error {
	d.dav = nil

	return d.accounts.Delete(ctx, backendName)
}

func (d *Driver) ClientInfo(context.Context) (*hive.ClientInfo, error) {
	return &hive.ClientInfo{
		UserID:      d.cfg.Username,
		DisplayName: d.cfg.Username,
		Endpoint:    d.cfg.URL,
	}, nil
}

func (d *Driver) OpenDrive(context.Context) (hive.DriveDriver, error) {
	if d.dav == nil {
		return nil, hive.NewError(hive.CodeNotReady, "owncloud.open_drive", errors.New("not logged in"))
	}

	return &Drive{drv: d, dav: d.dav}, nil
}

func (d *Driver) Close() error {
	return d.accounts.Close()
}

// mapErr converts WebDAV status errors into hive errors. MKCOL reports an
// existing collection as 405 and a missing parent as 409.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var se gowebdav.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("owncloud: %s: %w", op, err)
	}

	switch se.Status {
	case http.StatusNotFound, http.StatusConflict:
		return hive.NewError(hive.CodeNotExists, op, err)
	case http.StatusMethodNotAllowed, http.StatusPreconditionFailed:
		return hive.NewError(hive.CodeAlreadyExists, op, err)
	default:
		return hive.HTTPError(se.Status, op, err)
	}
}

var (
	_ hive.LoginDriver  = (*Driver)(nil)
	_ hive.LogoutDriver = (*Driver)(nil)
	_ hive.InfoDriver   = (*Driver)(nil)
	_ hive.DriveOpener  = (*Driver)(nil)
)
