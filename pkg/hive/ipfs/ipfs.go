// Package ipfs is the IPFS driver. The drive is the node's mutable file
// system (MFS), reached through the Kubo RPC API.
package ipfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/tonimelisma/hive/internal/store"
	"github.com/tonimelisma/hive/pkg/hive"
)

// DefaultNode is the Kubo RPC address used when Config.Node is empty.
const DefaultNode = "127.0.0.1:5001"

// mfsDirectory is the entry type Kubo reports for directories in a long
// MFS listing.
const mfsDirectory = 1

var backendName = hive.BackendIPFS.String()

// Config is the IPFS backend section.
type Config struct {
	Node string `toml:"node" yaml:"node"`

	// HTTPClient overrides the client used for RPC calls.
	HTTPClient *http.Client `toml:"-" yaml:"-"`
}

// Driver talks to one Kubo node.
type Driver struct {
	node     string
	sh       *shell.Shell
	accounts *store.Store
	spoolDir string
	logger   *slog.Logger
}

// New is the hive.Constructor for BackendIPFS. It opens the account store
// and prepares the spool directory; the node is not contacted until Login.
func New(ctx context.Context, opts *hive.Options) (hive.Driver, error) {
	var cfg Config
	if c, ok := opts.Config.(*Config); ok && c != nil {
		cfg = *c
	}

	if cfg.Node == "" {
		cfg.Node = DefaultNode
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("backend", backendName))

	spoolDir := filepath.Join(opts.PersistentLocation, backendName, "spool")
	if err := os.MkdirAll(spoolDir, 0o700); err != nil {
		return nil, fmt.Errorf("ipfs: creating spool directory: %w", err)
	}

	accounts, err := store.Open(ctx, filepath.Join(opts.PersistentLocation, store.FileName), logger)
	if err != nil {
		return nil, err
	}

	sh := shell.NewShell(cfg.Node)
	if cfg.HTTPClient != nil {
		sh = shell.NewShellWithClient(cfg.Node, cfg.HTTPClient)
	}

	return &Driver{
		node:     cfg.Node,
		sh:       sh,
		accounts: accounts,
		spoolDir: spoolDir,
		logger:   logger,
	}, nil
}

// Login checks that the node is up and records its peer identity.
func (d *Driver) Login(ctx context.Context, _ hive.AuthHandler) error {
	if !d.sh.IsUp() {
		return fmt.Errorf("ipfs: node %s is not reachable", d.node)
	}

	id, err := d.sh.ID()
	if err != nil {
		return fmt.Errorf("ipfs: reading peer identity: %w", err)
	}

	d.logger.Info("connected to node",
		slog.String("node", d.node),
		slog.String("peer_id", id.ID),
		slog.String("agent", id.AgentVersion),
	)

	return d.accounts.Put(ctx, &store.Account{
		Backend:     backendName,
		UID:         id.ID,
		DisplayName: id.AgentVersion,
		Endpoint:    d.node,
	})
}

// Logout forgets the recorded identity. The node itself has no session.
func (d *Driver) Logout(ctx context.Context) error {
	return d.accounts.Delete(ctx, backendName)
}

func (d *Driver) ClientInfo(context.Context) (*hive.ClientInfo, error) {
	id, err := d.sh.ID()
	if err != nil {
		return nil, fmt.Errorf("ipfs: reading peer identity: %w", err)
	}

	return &hive.ClientInfo{
		UserID:      id.ID,
		DisplayName: id.AgentVersion,
		Endpoint:    d.node,
	}, nil
}

func (d *Driver) OpenDrive(context.Context) (hive.DriveDriver, error) {
	return &Drive{drv: d}, nil
}

func (d *Driver) Close() error {
	return d.accounts.Close()
}

// mapErr converts Kubo RPC errors into hive errors by message, since the
// API reports every failure with the same HTTP status.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *shell.Error
	if errors.As(err, &se) {
		msg := strings.ToLower(se.Message)

		switch {
		case strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
			return hive.NewError(hive.CodeNotExists, op, err)
		case strings.Contains(msg, "already has entry"), strings.Contains(msg, "already exists"):
			return hive.NewError(hive.CodeAlreadyExists, op, err)
		}
	}

	return fmt.Errorf("ipfs: %s: %w", op, err)
}

var (
	_ hive.LoginDriver  = (*Driver)(nil)
	_ hive.LogoutDriver = (*Driver)(nil)
	_ hive.InfoDriver   = (*Driver)(nil)
	_ hive.DriveOpener  = (*Driver)(nil)
)

// mfsPath normalizes a drive path for the MFS API.
func mfsPath(p string) string {
	return path.Clean("/" + p)
}
