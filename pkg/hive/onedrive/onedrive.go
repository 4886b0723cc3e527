// Package onedrive is the OneDrive driver, built on the Microsoft Graph
// client in internal/graph. Tokens live in <location>/onedrive/token.json;
// the signed-in user and the default drive ID are cached in the account
// store.
package onedrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/hive/internal/graph"
	"github.com/tonimelisma/hive/internal/store"
	"github.com/tonimelisma/hive/internal/tokenfile"
	"github.com/tonimelisma/hive/pkg/hive"
)

// Login flows.
const (
	FlowDevice  = "device"
	FlowBrowser = "browser"
)

var backendName = hive.BackendOneDrive.String()

// ErrLoginRequired is the cause of the ErrInvalidArgs Login returns when
// there is no saved token and no auth handler to run a flow with.
var ErrLoginRequired = errors.New("onedrive: interactive login required")

// Config is the OneDrive backend section. Empty fields take the graph
// package defaults.
type Config struct {
	ClientID  string `toml:"client_id" yaml:"client_id"`
	Tenant    string `toml:"tenant" yaml:"tenant"`
	Flow      string `toml:"flow" yaml:"flow" validate:"omitempty,oneof=device browser"`
	BaseURL   string `toml:"base_url" yaml:"base_url" validate:"omitempty,url"`
	ChunkSize int64  `toml:"chunk_size" yaml:"chunk_size" validate:"gte=0"`

	HTTPClient *http.Client     `toml:"-" yaml:"-"`
	Endpoint   *oauth2.Endpoint `toml:"-" yaml:"-"`
}

// Driver holds one OneDrive session.
type Driver struct {
	cfg      Config
	session  *graph.Session
	client   *graph.Client
	accounts *store.Store
	spoolDir string
	logger   *slog.Logger
}

// New is the hive.Constructor for BackendOneDrive. Nothing is sent to the
// service until Login.
func New(ctx context.Context, opts *hive.Options) (hive.Driver, error) {
	var cfg Config
	if c, ok := opts.Config.(*Config); ok && c != nil {
		cfg = *c
	}

	if cfg.Flow == "" {
		cfg.Flow = FlowDevice
	}

	if cfg.Flow != FlowDevice && cfg.Flow != FlowBrowser {
		return nil, hive.NewError(hive.CodeInvalidArgs, "onedrive.new", fmt.Errorf("unknown login flow %q", cfg.Flow))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("backend", backendName))

	spoolDir := filepath.Join(opts.PersistentLocation, backendName, "spool")
	if err := os.MkdirAll(spoolDir, 0o700); err != nil {
		return nil, fmt.Errorf("onedrive: creating spool directory: %w", err)
	}

	accounts, err := store.Open(ctx, filepath.Join(opts.PersistentLocation, store.FileName), logger)
	if err != nil {
		return nil, err
	}

	session := graph.NewSession(graph.AuthConfig{
		ClientID:   cfg.ClientID,
		Tenant:     cfg.Tenant,
		Endpoint:   cfg.Endpoint,
		HTTPClient: cfg.HTTPClient,
	}, tokenfile.Path(opts.PersistentLocation, backendName), logger)

	return &Driver{
		cfg:      cfg,
		session:  session,
		client:   graph.NewClient(cfg.BaseURL, cfg.HTTPClient, session, logger),
		accounts: accounts,
		spoolDir: spoolDir,
		logger:   logger,
	}, nil
}

// Login resumes a saved token when one exists. Otherwise it runs the
// configured flow, handing the user code or authorization URL to auth.
func (d *Driver) Login(ctx context.Context, auth hive.AuthHandler) error {
	const op = "onedrive.login"

	err := d.session.Resume()

	switch {
	case err == nil:
		d.logger.Debug("resumed saved session")
	case !errors.Is(err, graph.ErrNotLoggedIn):
		return fmt.Errorf("onedrive: %s: %w", op, err)
	case auth == nil:
		return hive.NewError(hive.CodeInvalidArgs, op, ErrLoginRequired)
	default:
		if err := d.interactive(ctx, auth); err != nil {
			return err
		}
	}

	me, err := d.client.Me(ctx)
	if err != nil {
		return mapErr(op, err)
	}

	acct := &store.Account{
		Backend:     backendName,
		UID:         me.ID,
		DisplayName: me.DisplayName,
		Endpoint:    me.Email,
	}

	// Keep the cached drive ID across re-logins of the same user.
	if prev, err := d.accounts.Get(ctx, backendName); err == nil && prev.UID == me.ID {
		acct.DriveID = prev.DriveID
		acct.RootHash = prev.RootHash
	}

	d.logger.Info("signed in", slog.String("user", me.DisplayName))

	return d.accounts.Put(ctx, acct)
}

func (d *Driver) interactive(ctx context.Context, auth hive.AuthHandler) error {
	if d.cfg.Flow == FlowBrowser {
		return d.session.LoginBrowser(ctx, func(ctx context.Context, authURL string) error {
			_, err := auth(ctx, &hive.AuthRequest{
				Backend: hive.BackendOneDrive,
				URL:     authURL,
				Message: "Open the URL in a browser to sign in.",
			})

			return err
		})
	}

	return d.session.LoginDevice(ctx, func(ctx context.Context, da graph.DeviceAuth) error {
		_, err := auth(ctx, &hive.AuthRequest{
			Backend:  hive.BackendOneDrive,
			URL:      da.VerificationURI,
			UserCode: da.UserCode,
			Message:  fmt.Sprintf("Go to %s and enter the code %s.", da.VerificationURI, da.UserCode),
		})

		return err
	})
}

// Logout removes the token file and the account record.
func (d *Driver) Logout(ctx context.Context) error {
	if err := d.session.Logout(); err != nil {
		return fmt.Errorf("onedrive: onedrive.logout: %w", err)
	}

	return d.accounts.Delete(ctx, backendName)
}

func (d *Driver) ExpireToken(context.Context) error {
	if err := d.session.Expire(); err != nil {
		return fmt.Errorf("onedrive: onedrive.expire_token: %w", err)
	}

	return nil
}

func (d *Driver) ClientInfo(ctx context.Context) (*hive.ClientInfo, error) {
	me, err := d.client.Me(ctx)
	if err != nil {
		return nil, mapErr("onedrive.info", err)
	}

	return &hive.ClientInfo{
		UserID:      me.ID,
		DisplayName: me.DisplayName,
		Email:       me.Email,
		Endpoint:    d.baseURL(),
	}, nil
}

func (d *Driver) baseURL() string {
	if d.cfg.BaseURL != "" {
		return d.cfg.BaseURL
	}

	return graph.DefaultBaseURL
}

// OpenDrive opens the signed-in user's default drive. The drive ID comes
// from the account store when cached.
func (d *Driver) OpenDrive(ctx context.Context) (hive.DriveDriver, error) {
	const op = "onedrive.open_drive"

	acct, err := d.accounts.Get(ctx, backendName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if acct != nil && acct.DriveID != "" {
		d.logger.Debug("using cached drive ID", slog.String("drive_id", acct.DriveID))
		return &Drive{drv: d, id: acct.DriveID}, nil
	}

	drv, err := d.client.DefaultDrive(ctx)
	if err != nil {
		return nil, mapErr(op, err)
	}

	if err := d.accounts.SetDriveID(ctx, backendName, drv.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		d.logger.Warn("failed to cache drive ID", slog.String("error", err.Error()))
	}

	return &Drive{drv: d, id: drv.ID}, nil
}

func (d *Driver) Close() error {
	return d.accounts.Close()
}

// mapErr converts graph errors into hive errors. Statuses without a general
// meaning keep their number in FacilityHTTP.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, graph.ErrNotFound):
		return hive.NewError(hive.CodeNotExists, op, err)
	case errors.Is(err, graph.ErrConflict):
		return hive.NewError(hive.CodeAlreadyExists, op, err)
	case errors.Is(err, graph.ErrNotLoggedIn):
		return hive.NewError(hive.CodeNotReady, op, err)
	}

	var ge *graph.GraphError
	if errors.As(err, &ge) {
		return hive.HTTPError(ge.StatusCode, op, err)
	}

	return fmt.Errorf("onedrive: %s: %w", op, err)
}

var (
	_ hive.LoginDriver  = (*Driver)(nil)
	_ hive.LogoutDriver = (*Driver)(nil)
	_ hive.TokenExpirer = (*Driver)(nil)
	_ hive.InfoDriver   = (*Driver)(nil)
	_ hive.DriveOpener  = (*Driver)(nil)
)
