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

// MaxPageSize is the largest $top accepted for drive item collections.
const MaxPageSize = 200

// Timestamp validation bounds: timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// Copy monitor polling.
const (
	copyPollInterval = 1 * time.Second
	maxCopyPolls     = 600
)

// driveItemResponse mirrors the Graph API driveItem JSON exactly.
// Unexported; callers use Item via toItem() normalization.
type driveItemResponse struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	ETag                 string           `json:"eTag"`
	Description          string           `json:"description"`
	WebURL               string           `json:"webUrl"`
	CreatedDateTime      string           `json:"createdDateTime"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime"`
	ParentReference      *parentRef       `json:"parentReference"`
	File                 *fileFacet       `json:"file"`
	Folder               *folderFacet     `json:"folder"`
	Package              *json.RawMessage `json:"package"`
	Root                 *json.RawMessage `json:"root"`
	DownloadURL          string           `json:"@microsoft.graph.downloadUrl"` //nolint:tagliatelle // Graph API annotation key
}

type parentRef struct {
	ID      string `json:"id,omitempty"`
	DriveID string `json:"driveId,omitempty"`
	Path    string `json:"path,omitempty"`
}

type fileFacet struct {
	MimeType string     `json:"mimeType"`
	Hashes   *hashFacet `json:"hashes"`
}

type hashFacet struct {
	QuickXorHash string `json:"quickXorHash"`
	SHA1Hash     string `json:"sha1Hash"`
	SHA256Hash   string `json:"sha256Hash"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type itemCollectionResponse struct {
	Value    []driveItemResponse `json:"value"`
	NextLink string              `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

type createFolderRequest struct {
	Name             string      `json:"name"`
	Folder           folderFacet `json:"folder"`
	ConflictBehavior string      `json:"@microsoft.graph.conflictBehavior"` //nolint:tagliatelle // Graph API annotation key
}

type updateItemRequest struct {
	ParentReference *parentRef `json:"parentReference,omitempty"`
	Name            string     `json:"name,omitempty"`
	Description     *string    `json:"description,omitempty"`
}

type copyItemRequest struct {
	ParentReference parentRef `json:"parentReference"`
	Name            string    `json:"name,omitempty"`
}

type copyMonitorResponse struct {
	Status     string `json:"status"`
	ResourceID string `json:"resourceId"`
}

// ItemUpdate is a PATCH of name, parent, and/or description.
type ItemUpdate struct {
	Name        string
	ParentID    string
	Description *string
}

// toItem normalizes a Graph API driveItem response into our Item type.
func (d *driveItemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		ETag:        d.ETag,
		Description: d.Description,
		WebURL:      d.WebURL,
		IsFolder:    d.Folder != nil,
		IsPackage:   d.Package != nil,
		IsRoot:      d.Root != nil,
		DownloadURL: d.DownloadURL,
	}

	if d.ParentReference != nil {
		item.DriveID = strings.ToLower(d.ParentReference.DriveID)
		item.ParentID = d.ParentReference.ID
		// Children of the drive root carry a path ending in "root:".
		item.ParentIsRoot = strings.HasSuffix(d.ParentReference.Path, "root:")
	}

	if d.File != nil {
		item.MimeType = d.File.MimeType

		if d.File.Hashes != nil {
			item.QuickXorHash = d.File.Hashes.QuickXorHash
			item.SHA1Hash = d.File.Hashes.SHA1Hash
			item.SHA256Hash = d.File.Hashes.SHA256Hash
		}
	}

	item.CreatedAt = parseTimestamp(d.CreatedDateTime, "createdDateTime", d.ID, logger)
	item.ModifiedAt = parseTimestamp(d.LastModifiedDateTime, "lastModifiedDateTime", d.ID, logger)

	return item
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and logged.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Debug("empty timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
		)

		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}

// drivePath returns the API path of a drive. An empty driveID addresses the
// signed-in user's default drive.
func drivePath(driveID string) string {
	if driveID == "" {
		return "/me/drive"
	}

	return "/drives/" + url.PathEscape(driveID)
}

// itemPath returns the API path of an item within a drive.
func itemPath(driveID, itemID string) string {
	return drivePath(driveID) + "/items/" + url.PathEscape(itemID)
}

// decodeItem decodes a driveItem body and closes it.
func (c *Client) decodeItem(resp *http.Response, what string) (*Item, error) {
	defer resp.Body.Close()

	var dir driveItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&dir); err != nil {
		return nil, fmt.Errorf("graph: decoding %s response: %w", what, err)
	}

	item := dir.toItem(c.logger)

	return &item, nil
}

// sendJSON marshals reqBody and issues method on path.
func (c *Client) sendJSON(ctx context.Context, method, path string, reqBody any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling %s %s request: %w", method, path, err)
	}

	return c.Do(ctx, method, path, bytes.NewReader(bodyBytes))
}

// GetItem retrieves a single drive item by ID.
func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*Item, error) {
	c.logger.Info("getting item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	resp, err := c.Do(ctx, http.MethodGet, itemPath(driveID, itemID), nil)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "item")
}

// ListChildren fetches the first page of a folder's children.
// pageSize is capped at MaxPageSize. orderBy is passed as $orderby when set.
func (c *Client) ListChildren(ctx context.Context, driveID, parentID string, pageSize int, orderBy string) (*ItemPage, error) {
	c.logger.Info("listing children",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.Int("page_size", pageSize),
	)

	q := url.Values{}
	q.Set("$top", fmt.Sprint(min(pageSize, MaxPageSize)))

	if orderBy != "" {
		q.Set("$orderby", orderBy)
	}

	return c.FetchPage(ctx, itemPath(driveID, parentID)+"/children?"+q.Encode())
}

// Search fetches the first page of a drive-wide search.
func (c *Client) Search(ctx context.Context, driveID, query string, pageSize int) (*ItemPage, error) {
	c.logger.Info("searching drive",
		slog.String("drive_id", driveID),
		slog.Int("page_size", pageSize),
	)

	// OData string literals escape single quotes by doubling them.
	escaped := url.PathEscape(strings.ReplaceAll(query, "'", "''"))
	path := fmt.Sprintf("%s/root/search(q='%s')?$top=%d", drivePath(driveID), escaped, min(pageSize, MaxPageSize))

	return c.FetchPage(ctx, path)
}

// FetchPage fetches one page of an item collection. path is either a
// first-page path or the NextPath of a previous page.
func (c *Client) FetchPage(ctx context.Context, path string) (*ItemPage, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("graph: invalid page path %q", path)
	}

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var icr itemCollectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&icr); err != nil {
		return nil, fmt.Errorf("graph: decoding collection response: %w", err)
	}

	page := &ItemPage{Items: make([]Item, 0, len(icr.Value))}
	for i := range icr.Value {
		page.Items = append(page.Items, icr.Value[i].toItem(c.logger))
	}

	if icr.NextLink != "" {
		next, err := c.stripBaseURL(icr.NextLink)
		if err != nil {
			return nil, err
		}

		page.NextPath = next
	}

	c.logger.Debug("fetched collection page",
		slog.Int("count", len(page.Items)),
		slog.Bool("more", page.NextPath != ""),
	)

	return page, nil
}

// stripBaseURL removes the client's base URL prefix from a full URL,
// returning the path + query string for use with Do().
// Returns an error if the URL doesn't start with the expected base.
func (c *Client) stripBaseURL(fullURL string) (string, error) {
	if !strings.HasPrefix(fullURL, c.baseURL) {
		return "", fmt.Errorf("graph: nextLink URL %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}

// CreateFolder creates a new folder under the given parent.
// Uses conflictBehavior "fail" and returns ErrConflict (409) on name collision.
func (c *Client) CreateFolder(ctx context.Context, driveID, parentID, name string) (*Item, error) {
	c.logger.Info("creating folder",
		slog.String("drive_id", driveID),
		slog.String("parent_id", parentID),
		slog.String("name", name),
	)

	resp, err := c.sendJSON(ctx, http.MethodPost, itemPath(driveID, parentID)+"/children", createFolderRequest{
		Name:             name,
		Folder:           folderFacet{},
		ConflictBehavior: "fail",
	})
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "create folder")
}

// ErrUpdateNoChanges is returned when UpdateItem is called with an empty update.
var ErrUpdateNoChanges = errors.New("graph: UpdateItem requires at least one change")

// UpdateItem moves, renames, and/or re-describes an item in one PATCH.
func (c *Client) UpdateItem(ctx context.Context, driveID, itemID string, upd ItemUpdate) (*Item, error) {
	if upd.ParentID == "" && upd.Name == "" && upd.Description == nil {
		return nil, ErrUpdateNoChanges
	}

	c.logger.Info("updating item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
		slog.String("new_parent_id", upd.ParentID),
		slog.String("new_name", upd.Name),
	)

	req := updateItemRequest{Name: upd.Name, Description: upd.Description}
	if upd.ParentID != "" {
		req.ParentReference = &parentRef{ID: upd.ParentID}
	}

	resp, err := c.sendJSON(ctx, http.MethodPatch, itemPath(driveID, itemID), req)
	if err != nil {
		return nil, err
	}

	return c.decodeItem(resp, "update")
}

// DeleteItem moves a drive item to the recycle bin.
func (c *Client) DeleteItem(ctx context.Context, driveID, itemID string) error {
	c.logger.Info("deleting item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	resp, err := c.Do(ctx, http.MethodDelete, itemPath(driveID, itemID), nil)
	if err != nil {
		return err
	}

	drainAndClose(resp)

	return nil
}

// PermanentDeleteItem deletes an item without passing through the recycle
// bin. Personal accounts reject this endpoint.
func (c *Client) PermanentDeleteItem(ctx context.Context, driveID, itemID string) error {
	c.logger.Info("permanently deleting item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
	)

	resp, err := c.Do(ctx, http.MethodPost, itemPath(driveID, itemID)+"/permanentDelete", nil)
	if err != nil {
		return err
	}

	drainAndClose(resp)

	return nil
}

// CopyItem copies an item into parentID and waits for the asynchronous
// copy to finish. An empty name keeps the source name.
func (c *Client) CopyItem(ctx context.Context, driveID, itemID, parentID, name string) (*Item, error) {
	c.logger.Info("copying item",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
		slog.String("target_parent_id", parentID),
		slog.String("name", name),
	)

	req := copyItemRequest{Name: name, ParentReference: parentRef{ID: parentID}}
	if driveID != "" {
		req.ParentReference.DriveID = driveID
	}

	resp, err := c.sendJSON(ctx, http.MethodPost, itemPath(driveID, itemID)+"/copy", req)
	if err != nil {
		return nil, err
	}

	monitorURL := resp.Header.Get("Location")
	drainAndClose(resp)

	if monitorURL == "" {
		return nil, errors.New("graph: copy accepted without a monitor URL")
	}

	resourceID, err := c.waitForCopy(ctx, monitorURL)
	if err != nil {
		return nil, err
	}

	return c.GetItem(ctx, driveID, resourceID)
}

// waitForCopy polls a pre-authenticated copy monitor URL until the copy
// completes and returns the new item's ID.
func (c *Client) waitForCopy(ctx context.Context, monitorURL string) (string, error) {
	for poll := 0; poll < maxCopyPolls; poll++ {
		resp, err := c.doPreAuthRetry(ctx, "copy monitor", func() (*http.Request, error) {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, monitorURL, http.NoBody)
			if reqErr != nil {
				return nil, fmt.Errorf("graph: creating copy monitor request: %w", reqErr)
			}

			req.Header.Set("User-Agent", c.userAgent)

			return req, nil
		})
		if err != nil {
			return "", err
		}

		var status copyMonitorResponse

		decErr := json.NewDecoder(resp.Body).Decode(&status)
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain
		resp.Body.Close()

		if decErr != nil {
			return "", fmt.Errorf("graph: decoding copy monitor response: %w", decErr)
		}

		switch status.Status {
		case "completed":
			if status.ResourceID == "" {
				return "", errors.New("graph: copy completed without a resource id")
			}

			return status.ResourceID, nil
		case "failed":
			return "", errors.New("graph: copy failed")
		}

		c.logger.Debug("copy in progress",
			slog.String("status", status.Status),
			slog.Int("poll", poll+1),
		)

		if err := c.sleepFunc(ctx, copyPollInterval); err != nil {
			return "", fmt.Errorf("graph: copy wait canceled: %w", err)
		}
	}

	return "", fmt.Errorf("graph: copy did not complete after %d polls", maxCopyPolls)
}
