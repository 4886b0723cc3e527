package graph

import (
	"path"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ChildCountUnknown indicates the child count was not present in the API response.
const ChildCountUnknown = -1

// Item represents a OneDrive drive item. Fields are normalized from the
// Graph API response.
type Item struct {
	ID           string
	Name         string
	DriveID      string // normalized: lowercase (Graph API casing is inconsistent)
	ParentID     string
	Size         int64
	ETag         string
	IsFolder     bool
	IsPackage    bool
	MimeType     string
	QuickXorHash string // base64-encoded
	ModifiedAt   time.Time
	ChildCount   int // ChildCountUnknown if not present
}

// User is the authenticated account.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// Drive describes a OneDrive drive.
type Drive struct {
	ID         string
	Name       string
	DriveType  string
	OwnerName  string
	QuotaUsed  int64
	QuotaTotal int64
}

// UploadSession is a resumable upload session.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}

// CleanPath normalizes a slash-separated drive path: NFC Unicode form
// (OneDrive stores names in NFC), a single leading slash, no trailing
// slash, no dot segments.
func CleanPath(p string) string {
	p = norm.NFC.String(p)

	return path.Clean("/" + strings.TrimLeft(p, "/"))
}

// SplitPath returns the parent path and base name of a cleaned path.
// The root has no name.
func SplitPath(p string) (parent, name string) {
	p = CleanPath(p)
	if p == "/" {
		return "/", ""
	}

	return path.Dir(p), path.Base(p)
}
