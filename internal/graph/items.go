package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// listChildrenPageSize is the $top value for children requests.
const listChildrenPageSize = 200

// Copy monitor polling.
const (
	copyPollInterval = 500 * time.Millisecond
	copyPollMax      = 10 * time.Second
)

// Conflict behaviours for create, copy, and upload requests.
const (
	ConflictFail    = "fail"
	ConflictReplace = "replace"
)

// ErrCopyFailed is returned when the copy monitor reports failure.
var ErrCopyFailed = errors.New("graph: copy failed")

// encodePathSegments URL-encodes each segment of a slash-separated path.
func encodePathSegments(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// itemAddress returns the API path addressing remotePath in driveID, using
// the root:/path: syntax for anything below the root.
func itemAddress(driveID, remotePath string) string {
	p := CleanPath(remotePath)
	if p == "/" {
		return fmt.Sprintf("/drives/%s/root", url.PathEscape(driveID))
	}

	return fmt.Sprintf("/drives/%s/root:%s:", url.PathEscape(driveID), encodePathSegments(p))
}

// driveItemResponse mirrors the Graph API driveItem JSON.
type driveItemResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	ETag                 string           `json:"eTag"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime"`
	ParentReference      *parentRef       `json:"parentReference"`
	File                 *fileFacet       `json:"file"`
	Folder               *folderFacet     `json:"folder"`
	Package              *json.RawMessage `json:"package"`
}

type parentRef struct {
	ID      string `json:"id,omitempty"`
	DriveID string `json:"driveId,omitempty"`
}

type fileFacet struct {
	MimeType string     `json:"mimeType"`
	Hashes   *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type listChildrenResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Folder           folderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type moveItemRequest struct {
	ParentReference *parentRef `json:"parentReference,omitempty"`
	Name            string     `json:"name,omitempty"`
}

type copyItemRequest struct {
	ParentReference parentRef `json:"parentReference"`
	Name            string    `json:"name,omitempty"`
}

type copyMonitorResponse struct {
	Status     string `json:"status"`
	ResourceID string `json:"resourceId"`
}

// toItem normalizes a Graph API driveItem response.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:         d.ID,
		Name:       d.Name,
		Size:       d.Size,
		ETag:       d.ETag,
		IsFolder:   d.Folder != nil,
		IsPackage:  d.Package != nil,
		ChildCount: ChildCountUnknown,
	}

	if d.ParentReference != nil {
		item.DriveID = strings.ToLower(d.ParentReference.DriveID)
		item.ParentID = d.ParentReference.ID
	}

	if d.Folder != nil {
		item.ChildCount = d.Folder.ChildCount
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType

		if d.File.Hashes != nil {
			item.QuickXorHash = d.File.Hashes.QuickXorHash
		}
	}

	if d.LastModifiedDateTime != "" {
		t, err := time.Parse(time.RFC3339, d.LastModifiedDateTime)
		if err != nil {
			logger.Warn("invalid lastModifiedDateTime",
				slog.String("item_id", d.ID),
				slog.String("raw", d.LastModifiedDateTime),
			)
		} else {
			item.ModifiedAt = t
		}
	}

	return item
}

func (c *Client) decodeItem(resp *http.Response, what string) (*Item, error) {
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

func jsonBody(v any) (io.ReadSeeker, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling request: %w", err)
	}

	return bytes.NewReader(data), nil
}

// GetItem retrieves a single drive item by ID.
func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*Item, error) {
	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/drives/%s/items/%s", driveID, itemID), nil)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "item")
}

// GetItemByPath retrieves a drive item by its path from the drive root.
func (c *Client) GetItemByPath(ctx context.Context, driveID, remotePath string) (*Item, error) {
	c.logger.Debug("getting item by path",
		slog.String("drive_id", driveID),
		slog.String("path", remotePath),
	)

	resp, err := c.Do(ctx, http.MethodGet, itemAddress(driveID, remotePath), nil)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "item")
}

// ListChildren calls fn for every child of the folder at remotePath,
// fetching pages lazily. Returning false from fn stops the listing without
// fetching further pages.
func (c *Client) ListChildren(ctx context.Context, driveID, remotePath string, fn func(*Item) bool) error {
	apiPath := fmt.Sprintf("%s/children?$top=%d", itemAddress(driveID, remotePath), listChildrenPageSize)

	for page := 1; apiPath != ""; page++ {
		resp, err := c.Do(ctx, http.MethodGet, apiPath, nil)
		if err != nil {
			return err
		}

		var lcr listChildrenResponse
		decErr := json.NewDecoder(resp.Body).Decode(&lcr)
		resp.Body.Close()

		if decErr != nil {
			return fmt.Errorf("graph: decoding children response: %w", decErr)
		}

		c.logger.Debug("fetched children page",
			slog.String("path", remotePath),
			slog.Int("page", page),
			slog.Int("count", len(lcr.Value)),
		)

		for i := range lcr.Value {
			item := lcr.Value[i].toItem(c.logger)
			if !fn(&item) {
				return nil
			}
		}

		apiPath = ""
		if lcr.NextLink != "" {
			if apiPath, err = c.stripBaseURL(lcr.NextLink); err != nil {
				return err
			}
		}
	}

	return nil
}

// stripBaseURL removes the client's base URL prefix from a full URL.
func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("graph: nextLink URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}

// CreateFolder creates name under the folder at parentPath. Uses
// conflictBehavior "fail", so a name collision returns ErrConflict.
func (c *Client) CreateFolder(ctx context.Context, driveID, parentPath, name string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("drive_id", driveID),
		slog.String("parent", parentPath),
		slog.String("name", name),
	)

	body, err := jsonBody(createFolderRequest{Name: name, ConflictBehavior: ConflictFail})
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPost, itemAddress(driveID, parentPath)+"/children", body)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "create folder")
}

// MoveItem moves and renames an item in one request.
func (c *Client) MoveItem(ctx context.Context, driveID, itemID, newParentID, newName string) (*Item, error) {
	c.logger.Info("moving item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
		slog.String("new_parent_id", newParentID),
		slog.String("new_name", newName),
	)

	body, err := jsonBody(moveItemRequest{
		ParentReference: &parentRef{ID: newParentID},
		Name:            newName,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPatch, fmt.Sprintf("/drives/%s/items/%s", driveID, itemID), body)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "move")
}

// CopyItem starts a server-side copy and waits for the async monitor to
// report completion. It returns the new item's ID when the service reports
// one.
func (c *Client) CopyItem(ctx context.Context, driveID, itemID, newParentID, newName string) (string, error) {
	c.logger.Info("copying item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
		slog.String("new_parent_id", newParentID),
		slog.String("new_name", newName),
	)

	body, err := jsonBody(copyItemRequest{
		ParentReference: parentRef{DriveID: driveID, ID: newParentID},
		Name:            newName,
	})
	if err != nil {
		return "", err
	}

	apiPath := fmt.Sprintf("/drives/%s/items/%s/copy?@microsoft.graph.conflictBehavior=%s", driveID, itemID, ConflictFail)

	resp, err := c.Do(ctx, http.MethodPost, apiPath, body)
	if err != nil {
		return "", err
	}

	monitor := resp.Header.Get("Location")
	drainAndClose(resp)

	if monitor == "" {
		return "", fmt.Errorf("graph: copy accepted without monitor URL")
	}

	return c.waitCopy(ctx, monitor)
}

// waitCopy polls a pre-authenticated copy monitor URL until the copy
// completes or fails.
func (c *Client) waitCopy(ctx context.Context, monitorURL string) (string, error) {
	interval := copyPollInterval

	for {
		resp, err := c.doRetry(ctx, http.MethodGet, monitorURL, "", nil, false)
		if err != nil {
			return "", err
		}

		var status copyMonitorResponse
		decErr := json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if decErr != nil {
			return "", fmt.Errorf("graph: decoding copy monitor response: %w", decErr)
		}

		c.logger.Debug("copy monitor status", slog.String("status", status.Status))

		switch status.Status {
		case "completed":
			return status.ResourceID, nil
		case "failed", "cancelled":
			return "", fmt.Errorf("%w: status %s", ErrCopyFailed, status.Status)
		}

		if err := c.sleepFunc(ctx, interval); err != nil {
			return "", fmt.Errorf("graph: waiting for copy: %w", err)
		}

		interval = min(interval*2, copyPollMax)
	}
}

// DeleteItem deletes a drive item, recursively for folders.
func (c *Client) DeleteItem(ctx context.Context, driveID, itemID string) error {
	c.logger.Info("deleting item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	resp, err := c.Do(ctx, http.MethodDelete, fmt.Sprintf("/drives/%s/items/%s", driveID, itemID), nil)
	if err != nil {
		return err
	}

	drainAndClose(resp)

	return nil
}

// Download streams an item's content to w and returns the bytes written.
// The /content endpoint redirects to a pre-authenticated URL; the HTTP
// client follows it without forwarding the Authorization header.
func (c *Client) Download(ctx context.Context, driveID, itemID string, w io.Writer) (int64, error) {
	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/drives/%s/items/%s/content", driveID, itemID), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("graph: streaming download content: %w", err)
	}

	c.logger.Debug("download complete",
		slog.String("item_id", itemID),
		slog.Int64("bytes", n),
	)

	return n, nil
}
