package hive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// BackendType selects the driver a Client is bound to.
type BackendType int

// Known backend types. BackendNone is the zero value and is never valid
// in Options.
const (
	BackendNone BackendType = iota
	BackendNative
	BackendIPFS
	BackendOneDrive
	BackendOwnCloud
	BackendS3
)

var backendNames = map[BackendType]string{
	BackendNative:   "native",
	BackendIPFS:     "ipfs",
	BackendOneDrive: "onedrive",
	BackendOwnCloud: "owncloud",
	BackendS3:       "s3",
}

func (b BackendType) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}

	if b == BackendNone {
		return "none"
	}

	return fmt.Sprintf("backend(%d)", int(b))
}

// ParseBackendType maps a case-insensitive backend name to its type.
func ParseBackendType(name string) (BackendType, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for b, n := range backendNames {
		if n == lower {
			return b, nil
		}
	}

	return BackendNone, fmt.Errorf("hive: unknown backend %q", name)
}

// State is the authentication state of a Client.
type State uint32

// Client states. Transitions happen only through compare-and-swap.
const (
	StateRaw       State = 0 // not authenticated
	StateLogining  State = 1 // login in progress
	StateLogined   State = 2 // authenticated
	StateLogouting State = 3 // logout in progress
)

func (s State) String() string {
	switch s {
	case StateRaw:
		return "raw"
	case StateLogining:
		return "logining"
	case StateLogined:
		return "logined"
	case StateLogouting:
		return "logouting"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Options configures a Client. Backend and PersistentLocation are required;
// PersistentLocation must name an existing directory where drivers keep
// tokens and account state. Config carries the backend-specific settings
// (for example *native.Config) and is passed to the driver untouched.
type Options struct {
	Backend            BackendType
	PersistentLocation string
	Logger             *slog.Logger
	Config             any
}

// ClientInfo describes the authenticated account.
type ClientInfo struct {
	UserID      string
	DisplayName string
	Email       string
	Endpoint    string // service endpoint or node address, when meaningful
}

// DriveInfo describes a drive.
type DriveInfo struct {
	ID         string
	Name       string
	DriveType  string
	QuotaUsed  int64 // -1 when unknown
	QuotaTotal int64 // -1 when unknown
	RootHash   string
}

// FileInfo describes one file or directory.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	IsDir   bool
	ModTime time.Time
	ID      string // backend item identifier (item ID, CID, ETag), may be empty
}

// ListFunc is invoked once per directory entry by Drive.List. Returning
// false stops the iteration.
type ListFunc func(info *FileInfo) bool

// AuthRequest is handed to an AuthHandler when a driver needs the caller's
// help to authenticate: open URL, show UserCode, or supply a credential
// described by Message.
type AuthRequest struct {
	Backend  BackendType
	URL      string
	UserCode string
	Message  string
}

// AuthHandler is supplied by the caller to Login and invoked by the driver
// mid-login. The returned string is an out-of-band credential when the
// driver asked for one and is ignored otherwise.
type AuthHandler func(ctx context.Context, req *AuthRequest) (string, error)

// OpenFlag is the open mode bitmask for Drive.OpenFile. Values match the
// os.O_* constants.
type OpenFlag int

// Open flags. Exactly one of the access modes is combined with any of the
// modifiers.
const (
	FlagReadOnly  OpenFlag = OpenFlag(os.O_RDONLY)
	FlagWriteOnly OpenFlag = OpenFlag(os.O_WRONLY)
	FlagReadWrite OpenFlag = OpenFlag(os.O_RDWR)
	FlagAppend    OpenFlag = OpenFlag(os.O_APPEND)
	FlagCreate    OpenFlag = OpenFlag(os.O_CREATE)
	FlagTruncate  OpenFlag = OpenFlag(os.O_TRUNC)
	FlagExclusive OpenFlag = OpenFlag(os.O_EXCL)

	accessModeMask = FlagReadOnly | FlagWriteOnly | FlagReadWrite
	knownFlags     = accessModeMask | FlagAppend | FlagCreate | FlagTruncate | FlagExclusive
)

// IsSet reports whether every bit of mask is set in f.
func (f OpenFlag) IsSet(mask OpenFlag) bool {
	return f&mask == mask
}

// AccessMode returns the access-mode part of f.
func (f OpenFlag) AccessMode() OpenFlag {
	return f & accessModeMask
}

// Readable reports whether f permits reading.
func (f OpenFlag) Readable() bool {
	mode := f.AccessMode()
	return mode == FlagReadOnly || mode == FlagReadWrite
}

// Writable reports whether f permits writing.
func (f OpenFlag) Writable() bool {
	mode := f.AccessMode()
	return mode == FlagWriteOnly || mode == FlagReadWrite
}

// validate rejects unknown bits, an invalid access mode, and modifiers that
// only make sense for writers combined with read-only access.
func (f OpenFlag) validate() error {
	if f&^knownFlags != 0 {
		return fmt.Errorf("unknown open flags %#x", int(f&^knownFlags))
	}

	if f.AccessMode() == accessModeMask {
		return fmt.Errorf("invalid access mode %#x", int(f.AccessMode()))
	}

	if !f.Writable() && (f&(FlagTruncate|FlagAppend) != 0) {
		return fmt.Errorf("truncate/append require write access")
	}

	return nil
}

func (f OpenFlag) String() string {
	var parts []string

	switch f.AccessMode() {
	case FlagWriteOnly:
		parts = append(parts, "WRONLY")
	case FlagReadWrite:
		parts = append(parts, "RDWR")
	default:
		parts = append(parts, "RDONLY")
	}

	for _, m := range []struct {
		flag OpenFlag
		name string
	}{
		{FlagAppend, "APPEND"},
		{FlagCreate, "CREAT"},
		{FlagTruncate, "TRUNC"},
		{FlagExclusive, "EXCL"},
	} {
		if f.IsSet(m.flag) {
			parts = append(parts, m.name)
		}
	}

	return strings.Join(parts, "|")
}

// Whence selects the reference point of File.Seek.
type Whence int

// Seek origins, equal to the io.Seek* constants.
const (
	WhenceStart   Whence = io.SeekStart
	WhenceCurrent Whence = io.SeekCurrent
	WhenceEnd     Whence = io.SeekEnd
)
