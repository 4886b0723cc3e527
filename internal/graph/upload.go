package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ChunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const ChunkAlignment = 320 * 1024

// SimpleUploadMaxSize is the largest payload sent as a single PUT (4 MiB).
// Larger content goes through an upload session.
const SimpleUploadMaxSize = 4 * 1024 * 1024

// DefaultChunkSize is the session chunk size: 32 x 320 KiB = 10 MiB.
const DefaultChunkSize = 32 * ChunkAlignment

// ErrRangeNotSatisfiable is returned when the upload session rejects a
// chunk's byte range.
var ErrRangeNotSatisfiable = errors.New("graph: upload range not satisfiable")

type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type uploadSessionResponse struct {
	UploadURL          string `json:"uploadUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// Upload writes content to remotePath, replacing any existing file.
// Payloads up to SimpleUploadMaxSize go in one request; larger ones use an
// upload session in chunks of chunkSize (rounded down to ChunkAlignment).
// The session is canceled if any chunk fails.
func (c *Client) Upload(
	ctx context.Context, driveID, remotePath string, content io.ReaderAt, size int64, chunkSize int64,
) (*Item, error) {
	if size <= SimpleUploadMaxSize {
		return c.SimpleUpload(ctx, driveID, remotePath, io.NewSectionReader(content, 0, size))
	}

	chunkSize -= chunkSize % ChunkAlignment
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	session, err := c.CreateUploadSession(ctx, driveID, remotePath)
	if err != nil {
		return nil, err
	}

	for offset := int64(0); offset < size; offset += chunkSize {
		length := min(chunkSize, size-offset)

		item, chunkErr := c.UploadChunk(ctx, session, io.NewSectionReader(content, offset, length), offset, length, size)
		if chunkErr != nil {
			if cancelErr := c.CancelUploadSession(context.WithoutCancel(ctx), session); cancelErr != nil {
				c.logger.Warn("failed to cancel upload session", slog.String("error", cancelErr.Error()))
			}

			return nil, chunkErr
		}

		if item != nil {
			return item, nil
		}
	}

	return nil, fmt.Errorf("graph: upload session for %s finished without an item", remotePath)
}

// SimpleUpload replaces the content at remotePath with a single PUT. The
// body is rewound and resent on retry.
func (c *Client) SimpleUpload(ctx context.Context, driveID, remotePath string, body io.ReadSeeker) (*Item, error) {
	c.logger.Debug("simple upload",
		slog.String("drive_id", driveID),
		slog.String("path", remotePath),
	)

	apiURL := c.baseURL + itemAddress(driveID, remotePath) + "/content?@microsoft.graph.conflictBehavior=" + ConflictReplace

	resp, err := c.doRetry(ctx, http.MethodPut, apiURL, "application/octet-stream", body, true)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "simple upload")
}

// CreateUploadSession creates a resumable upload session for remotePath.
// The returned session carries a pre-authenticated upload URL.
func (c *Client) CreateUploadSession(ctx context.Context, driveID, remotePath string) (*UploadSession, error) {
	c.logger.Info("creating upload session",
		slog.String("drive_id", driveID),
		slog.String("path", remotePath),
	)

	body, err := jsonBody(createUploadSessionRequest{Item: uploadSessionItem{ConflictBehavior: ConflictReplace}})
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, http.MethodPost, itemAddress(driveID, remotePath)+"/createUploadSession", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var usr uploadSessionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&usr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding upload session response: %w", decErr)
	}

	if usr.UploadURL == "" {
		return nil, fmt.Errorf("graph: upload session response has no uploadUrl")
	}

	expTime, parseErr := time.Parse(time.RFC3339, usr.ExpirationDateTime)
	if parseErr != nil {
		c.logger.Warn("invalid upload session expiration, using zero time",
			slog.String("raw", usr.ExpirationDateTime),
		)
	}

	return &UploadSession{UploadURL: usr.UploadURL, ExpirationTime: expTime}, nil
}

// UploadChunk sends one byte range of an upload session. It returns the
// completed item on the final chunk (200/201) and nil for intermediate
// chunks (202). The session URL is pre-authenticated, so no Authorization
// header is sent.
func (c *Client) UploadChunk(
	ctx context.Context, session *UploadSession, chunk io.Reader, offset, length, total int64,
) (*Item, error) {
	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, chunk)
	if err != nil {
		return nil, fmt.Errorf("graph: creating chunk upload request: %w", err)
	}

	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	req.ContentLength = length

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: chunk upload request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		drainAndClose(resp)

		return nil, nil
	case http.StatusOK, http.StatusCreated:
		return c.decodeItem(resp, "final chunk")
	case http.StatusRequestedRangeNotSatisfiable:
		drainAndClose(resp)

		return nil, ErrRangeNotSatisfiable
	default:
		return nil, newGraphError(resp)
	}
}

// CancelUploadSession cancels an in-progress upload session.
func (c *Client) CancelUploadSession(ctx context.Context, session *UploadSession) error {
	c.logger.Info("canceling upload session")

	resp, err := c.doRetry(ctx, http.MethodDelete, session.UploadURL, "", nil, false)
	if err != nil {
		return err
	}

	drainAndClose(resp)

	return nil
}
