package hive

import (
	"context"
	"io"
)

// Driver is the backend half of a Client. Close is the only required
// method; every other capability is an optional interface discovered by
// type assertion. A missing capability surfaces as ErrNotSupported (or as
// a no-op for token expiry).
type Driver interface {
	Close() error
}

// LoginDriver authenticates against the backend. The handler is the one
// the caller passed to Client.Login.
type LoginDriver interface {
	Login(ctx context.Context, auth AuthHandler) error
}

// LogoutDriver drops the backend session and any persisted credentials.
type LogoutDriver interface {
	Logout(ctx context.Context) error
}

// InfoDriver reports the authenticated account.
type InfoDriver interface {
	ClientInfo(ctx context.Context) (*ClientInfo, error)
}

// DriveOpener opens the backend's default drive.
type DriveOpener interface {
	OpenDrive(ctx context.Context) (DriveDriver, error)
}

// TokenExpirer invalidates the cached access token so the next request
// refreshes it.
type TokenExpirer interface {
	ExpireToken(ctx context.Context) error
}

// DriveDriver is the backend half of a Drive.
type DriveDriver interface {
	Close() error
}

// Optional drive capabilities.
type (
	DriveInfoer interface {
		DriveInfo(ctx context.Context) (*DriveInfo, error)
	}

	Stater interface {
		Stat(ctx context.Context, path string) (*FileInfo, error)
	}

	Lister interface {
		List(ctx context.Context, path string, fn ListFunc) error
	}

	Mkdirer interface {
		Mkdir(ctx context.Context, path string) error
	}

	Mover interface {
		Move(ctx context.Context, oldPath, newPath string) error
	}

	Copier interface {
		Copy(ctx context.Context, srcPath, dstPath string) error
	}

	Deleter interface {
		Delete(ctx context.Context, path string) error
	}

	FileOpener interface {
		OpenFile(ctx context.Context, path string, flags OpenFlag) (FileDriver, error)
	}
)

// FileDriver is the backend half of a File. Writes go to pending storage
// owned by the driver and become durable only on Commit.
type FileDriver interface {
	io.Reader
	io.Writer
	io.Seeker
	Commit(ctx context.Context) error
	Discard(ctx context.Context) error
	Close() error
}

// Constructor builds a driver from options. It must not perform network
// I/O; that belongs in Login.
type Constructor func(ctx context.Context, opts *Options) (Driver, error)
