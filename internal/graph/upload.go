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
	"time"
)

// ChunkAlignment is the required alignment for upload chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const ChunkAlignment = 320 * 1024

// SimpleUploadMaxSize is the maximum file size for simple (single-request) upload (4 MiB).
// Larger files must use upload sessions.
const SimpleUploadMaxSize = 4 * 1024 * 1024

// ErrRangeNotSatisfiable is returned when the service rejects a chunk's
// byte range (HTTP 416).
var ErrRangeNotSatisfiable = errors.New("graph: upload range not satisfiable")

type createUploadSessionRequest struct {
	Item uploadSessionItem `json:"item"`
}

type uploadSessionItem struct {
	ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
	Name             string `json:"name,omitempty"`
}

type uploadSessionResponse struct {
	UploadURL          string `json:"uploadUrl"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// uploadPath addresses a child of parentID by name.
func uploadPath(driveID, parentID, name, action string) string {
	return fmt.Sprintf("%s:/%s:/%s", itemPath(driveID, parentID), url.PathEscape(name), action)
}

// SimpleUpload uploads up to SimpleUploadMaxSize bytes in a single PUT.
// An existing file with the same name is replaced.
func (c *Client) SimpleUpload(ctx context.Context, driveID, parentID, name string, content []byte) (*Item, error) {
	c.logger.Info("simple upload",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
		slog.Int("size", len(content)),
	)

	resp, err := c.doRawUpload(ctx, http.MethodPut, uploadPath(driveID, parentID, name, "content"),
		"application/octet-stream", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "simple upload")
}

// CreateUploadSession creates a resumable upload session for a file.
// The returned UploadSession contains a pre-authenticated upload URL.
func (c *Client) CreateUploadSession(ctx context.Context, driveID, parentID, name string) (*UploadSession, error) {
	c.logger.Info("creating upload session",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	resp, err := c.sendJSON(ctx, http.MethodPost, uploadPath(driveID, parentID, name, "createUploadSession"),
		createUploadSessionRequest{Item: uploadSessionItem{ConflictBehavior: "replace"}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var usr uploadSessionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&usr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding upload session response: %w", decErr)
	}

	if usr.UploadURL == "" {
		return nil, errors.New("graph: upload session response has no uploadUrl")
	}

	expTime, parseErr := time.Parse(time.RFC3339, usr.ExpirationDateTime)
	if parseErr != nil {
		c.logger.Warn("invalid upload session expiration, using zero time",
			slog.String("raw", usr.ExpirationDateTime),
			slog.String("error", parseErr.Error()),
		)
	}

	return &UploadSession{UploadURL: usr.UploadURL, ExpirationTime: expTime}, nil
}

// UploadChunk uploads one byte range to an upload session.
// Returns the completed Item on the final chunk (201/200), nil for intermediate chunks (202).
// offset is the byte offset of chunk within a file of total bytes.
// The session URL is pre-authenticated, so no Authorization header is sent.
func (c *Client) UploadChunk(ctx context.Context, session *UploadSession, chunk []byte, offset, total int64) (*Item, error) {
	length := int64(len(chunk))

	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, bytes.NewReader(chunk))
	if err != nil {
		return nil, fmt.Errorf("graph: creating chunk upload request: %w", err)
	}

	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", c.userAgent)
	req.ContentLength = length

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: chunk upload request failed: %w", err)
	}

	return c.handleChunkResponse(resp)
}

// handleChunkResponse processes the HTTP response from an upload chunk request.
// 202 Accepted means intermediate chunk; 200/201 means upload complete with item data.
func (c *Client) handleChunkResponse(resp *http.Response) (*Item, error) {
	switch resp.StatusCode {
	case http.StatusAccepted:
		drainAndClose(resp)
		c.logger.Debug("intermediate chunk accepted")

		return nil, nil

	case http.StatusOK, http.StatusCreated:
		item, err := c.decodeItem(resp, "final chunk")
		if err != nil {
			return nil, err
		}

		c.logger.Debug("upload complete",
			slog.String("item_id", item.ID),
			slog.Bool("hash_reported", item.HasContentHash()),
		)

		return item, nil

	case http.StatusRequestedRangeNotSatisfiable:
		drainAndClose(resp)
		c.logger.Warn("upload chunk returned 416 Range Not Satisfiable")

		return nil, ErrRangeNotSatisfiable

	default:
		return nil, newGraphError(resp)
	}
}

// CancelUploadSession cancels an in-progress upload session.
// The session URL is pre-authenticated, so no Authorization header is sent.
func (c *Client) CancelUploadSession(ctx context.Context, session *UploadSession) error {
	c.logger.Info("canceling upload session")

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, session.UploadURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("graph: creating cancel session request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph: cancel upload session request failed: %w", err)
	}

	if resp.StatusCode != http.StatusNoContent {
		return newGraphError(resp)
	}

	drainAndClose(resp)

	return nil
}

// doRawUpload sends an authenticated request with a custom content type.
// Unlike Do(), this does not retry.
func (c *Client) doRawUpload(
	ctx context.Context, method, path, contentType string, body io.Reader,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating raw upload request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("graph: obtaining token for upload: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: raw upload request failed: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newGraphError(resp)
	}

	return resp, nil
}
