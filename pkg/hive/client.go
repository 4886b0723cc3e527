package hive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"
)

// Client is an authenticated session against one backend. It is safe for
// concurrent use. Create one with Registry.NewClient and release it with
// Close.
type Client struct {
	backend BackendType
	drv     Driver
	logger  *slog.Logger
	metrics *metrics

	state   atomic.Uint32
	session atomic.Uint64 // bumped on every successful login
	lastErr atomic.Error
	closed  atomic.Bool
}

func newClient(backend BackendType, drv Driver, logger *slog.Logger, m *metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		backend: backend,
		drv:     drv,
		logger:  logger.With(slog.String("backend", backend.String())),
		metrics: m,
	}
}

// Backend returns the backend type the client is bound to.
func (c *Client) Backend() BackendType { return c.backend }

// State returns the current authentication state.
func (c *Client) State() State { return State(c.state.Load()) }

// LastError returns the most recent error any operation on this client,
// or its drives and files, returned. It is nil until something fails.
func (c *Client) LastError() error { return c.lastErr.Load() }

// HasValidToken reports whether the client is logged in.
func (c *Client) HasValidToken() bool {
	return c.State() == StateLogined
}

// record stores a failure in the last-error slot and counts the operation.
func (c *Client) record(op string, start time.Time, err error) error {
	if err != nil {
		c.lastErr.Store(err)
	}

	c.metrics.observe(c.backend, op, start, err)

	return err
}

// transition attempts from -> to. On failure it reports the state that was
// observed instead. A spurious failure where the observed state equals from
// is retried, so the returned state always differs from from.
func (c *Client) transition(from, to State) (bool, State) {
	for {
		if c.state.CompareAndSwap(uint32(from), uint32(to)) {
			c.metrics.transition(c.backend, to)
			return true, to
		}

		cur := State(c.state.Load())
		if cur != from {
			return false, cur
		}
	}
}

// Login authenticates the client. Exactly one concurrent caller runs the
// driver login; the others get ErrWrongState while it is in progress and
// nil once the client is logged in. If the driver login fails the client
// returns to the raw state and the driver error is returned.
func (c *Client) Login(ctx context.Context, auth AuthHandler) error {
	const op = "login"

	if err := c.open("client." + op); err != nil {
		return c.record(op, time.Time{}, err)
	}

	ok, cur := c.transition(StateRaw, StateLogining)
	if !ok {
		if cur == StateLogined {
			return c.record(op, time.Time{}, nil)
		}

		return c.record(op, time.Time{}, newError(CodeWrongState, "client."+op, fmt.Errorf("state is %s", cur)))
	}

	start := time.Now()

	if ld, has := c.drv.(LoginDriver); has {
		c.logger.Debug("driver login starting")

		if err := ld.Login(ctx, auth); err != nil {
			c.transition(StateLogining, StateRaw)
			c.logger.Warn("login failed", slog.String("error", err.Error()))

			return c.record(op, start, err)
		}
	}

	c.session.Inc()
	c.transition(StateLogining, StateLogined)
	c.logger.Info("logged in")

	return c.record(op, start, nil)
}

// Logout ends the session. Logging out a raw client is a no-op. A driver
// logout failure is logged and returned, but the client still returns to
// the raw state.
func (c *Client) Logout(ctx context.Context) error {
	const op = "logout"

	if err := c.open("client." + op); err != nil {
		return c.record(op, time.Time{}, err)
	}

	ok, cur := c.transition(StateLogined, StateLogouting)
	if !ok {
		if cur == StateRaw {
			return c.record(op, time.Time{}, nil)
		}

		return c.record(op, time.Time{}, newError(CodeWrongState, "client."+op, fmt.Errorf("state is %s", cur)))
	}

	start := time.Now()

	var err error
	if ld, has := c.drv.(LogoutDriver); has {
		err = ld.Logout(ctx)
		if err != nil {
			c.logger.Warn("driver logout failed, dropping local session",
				slog.String("error", err.Error()))
		}
	}

	c.transition(StateLogouting, StateRaw)
	c.logger.Info("logged out")

	return c.record(op, start, err)
}

// open returns ErrWrongState once the client is closed.
func (c *Client) open(op string) error {
	if c.closed.Load() {
		return newError(CodeWrongState, op, fmt.Errorf("client closed"))
	}

	return nil
}

// ready returns ErrNotReady unless the client is logged in.
func (c *Client) ready(op string) error {
	if err := c.open(op); err != nil {
		return err
	}

	if c.HasValidToken() {
		return nil
	}

	return newError(CodeNotReady, op, fmt.Errorf("state is %s", c.State()))
}

// readyFor is ready plus a check that session is still the current login
// session. A handle from an earlier session stays unusable after a later
// login.
func (c *Client) readyFor(op string, session uint64) error {
	if err := c.ready(op); err != nil {
		return err
	}

	if cur := c.session.Load(); cur != session {
		return newError(CodeNotReady, op, fmt.Errorf("handle from session %d, client is in session %d", session, cur))
	}

	return nil
}

// Info returns the authenticated account.
func (c *Client) Info(ctx context.Context) (*ClientInfo, error) {
	const op = "info"

	if err := c.ready("client." + op); err != nil {
		return nil, c.record(op, time.Time{}, err)
	}

	id, has := c.drv.(InfoDriver)
	if !has {
		return nil, c.record(op, time.Time{}, newError(CodeNotSupported, "client."+op, nil))
	}

	start := time.Now()
	info, err := id.ClientInfo(ctx)

	return info, c.record(op, start, err)
}

// OpenDrive opens the backend's default drive. The drive is usable only
// while the client stays logged in.
func (c *Client) OpenDrive(ctx context.Context) (*Drive, error) {
	const op = "open_drive"

	if err := c.ready("client." + op); err != nil {
		return nil, c.record(op, time.Time{}, err)
	}

	session := c.session.Load()

	do, has := c.drv.(DriveOpener)
	if !has {
		return nil, c.record(op, time.Time{}, newError(CodeNotSupported, "client."+op, nil))
	}

	start := time.Now()

	dd, err := do.OpenDrive(ctx)
	if err != nil {
		return nil, c.record(op, start, err)
	}

	c.logger.Debug("drive opened")

	return &Drive{client: c, drv: dd, session: session}, c.record(op, start, nil)
}

// ExpireToken forces the driver to refresh its access token on the next
// request. Backends without tokens succeed without doing anything.
func (c *Client) ExpireToken(ctx context.Context) error {
	const op = "expire_token"

	if err := c.ready("client." + op); err != nil {
		return c.record(op, time.Time{}, err)
	}

	te, has := c.drv.(TokenExpirer)
	if !has {
		return c.record(op, time.Time{}, nil)
	}

	start := time.Now()

	return c.record(op, start, te.ExpireToken(ctx))
}

// Close releases the driver. It does not log out; persisted credentials
// survive for the next client. Calling Close twice is a no-op.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := c.drv.Close(); err != nil {
		return c.record("close", time.Time{}, fmt.Errorf("hive: closing %s driver: %w", c.backend, err))
	}

	return nil
}
