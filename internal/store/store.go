// Package store persists per-backend account state (user identity, drive
// ID, last known root hash) in a SQLite database under the client's
// persistent location.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// FileName is the database file created inside the persistent location.
const FileName = "hive.db"

// ErrNotFound is returned when no account is recorded for a backend.
var ErrNotFound = errors.New("store: account not found")

const (
	sqlGetAccount = `SELECT backend, uid, display_name, endpoint, drive_id, root_hash, updated_at
		FROM accounts WHERE backend = ?`

	sqlUpsertAccount = `INSERT INTO accounts
		(backend, uid, display_name, endpoint, drive_id, root_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(backend) DO UPDATE SET
		 uid = excluded.uid,
		 display_name = excluded.display_name,
		 endpoint = excluded.endpoint,
		 drive_id = excluded.drive_id,
		 root_hash = excluded.root_hash,
		 updated_at = excluded.updated_at`

	sqlSetDriveID  = `UPDATE accounts SET drive_id = ?, updated_at = ? WHERE backend = ?`
	sqlSetRootHash = `UPDATE accounts SET root_hash = ?, updated_at = ? WHERE backend = ?`
	sqlDelete      = `DELETE FROM accounts WHERE backend = ?`
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Account is the persisted state of one backend's login.
type Account struct {
	Backend     string
	UID         string
	DisplayName string
	Endpoint    string
	DriveID     string
	RootHash    string
	UpdatedAt   time.Time
}

// Store wraps the account database. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the database at dbPath and applies
// pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("account store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Get returns the account recorded for backend, or ErrNotFound.
func (s *Store) Get(ctx context.Context, backend string) (*Account, error) {
	var (
		a       Account
		updated int64
	)

	err := s.db.QueryRowContext(ctx, sqlGetAccount, backend).Scan(
		&a.Backend, &a.UID, &a.DisplayName, &a.Endpoint, &a.DriveID, &a.RootHash, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading account %s: %w", backend, err)
	}

	a.UpdatedAt = time.Unix(0, updated)

	return &a, nil
}

// Put inserts or replaces the account for a.Backend. UpdatedAt is set to
// the current time.
func (s *Store) Put(ctx context.Context, a *Account) error {
	a.UpdatedAt = s.nowFunc()

	_, err := s.db.ExecContext(ctx, sqlUpsertAccount,
		a.Backend, a.UID, a.DisplayName, a.Endpoint, a.DriveID, a.RootHash, a.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store: saving account %s: %w", a.Backend, err)
	}

	s.logger.Debug("account saved", slog.String("backend", a.Backend), slog.String("uid", a.UID))

	return nil
}

// SetDriveID records the drive ID for an existing account.
func (s *Store) SetDriveID(ctx context.Context, backend, driveID string) error {
	return s.update(ctx, sqlSetDriveID, backend, driveID)
}

// SetRootHash records the latest root content hash for an existing account.
func (s *Store) SetRootHash(ctx context.Context, backend, hash string) error {
	return s.update(ctx, sqlSetRootHash, backend, hash)
}

func (s *Store) update(ctx context.Context, query, backend, value string) error {
	res, err := s.db.ExecContext(ctx, query, value, s.nowFunc().UnixNano(), backend)
	if err != nil {
		return fmt.Errorf("store: updating account %s: %w", backend, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: updating account %s: %w", backend, err)
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes the account for backend. Deleting a missing account is not
// an error.
func (s *Store) Delete(ctx context.Context, backend string) error {
	if _, err := s.db.ExecContext(ctx, sqlDelete, backend); err != nil {
		return fmt.Errorf("store: deleting account %s: %w", backend, err)
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
