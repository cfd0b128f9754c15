// Package onedrive adapts the Graph drive API to storage.Provider.
//
// Items are addressed by durable id. Listing and search pages are the
// service's @odata.nextLink with the base URL stripped. Non-permanent
// deletes go to the recycle bin. Files above graph.SimpleUploadMaxSize are
// sent through an upload session in fixed-size chunks.
package onedrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/cloudvfs/internal/driveid"
	"github.com/tonimelisma/cloudvfs/internal/graph"
	"github.com/tonimelisma/cloudvfs/internal/mimetype"
	"github.com/tonimelisma/cloudvfs/internal/storage"
	"github.com/tonimelisma/cloudvfs/pkg/quickxorhash"
)

// backendName is used in UnsupportedError and log attributes.
const backendName = "onedrive"

// DefaultChunkSize is the upload session chunk size used when Options
// leaves it unset (3.125 MiB, ten alignment units).
const DefaultChunkSize = 10 * graph.ChunkAlignment

// ErrHashMismatch is returned when the content hash Graph reports for an
// upload differs from the hash of the bytes sent.
var ErrHashMismatch = errors.New("onedrive: uploaded content hash mismatch")

// Options configures a Provider. The zero value talks to the public Graph
// endpoint and the signed-in user's default drive.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// DriveID selects a drive other than the user's default drive.
	DriveID string
	// ChunkSize must be a positive multiple of graph.ChunkAlignment.
	ChunkSize int64
	UserAgent string
	Logger    *slog.Logger
}

// tokenHolder is the graph.TokenSource behind a Provider. SetAccessToken
// swaps the value in place so the client keeps its connection pool.
type tokenHolder struct {
	value string
}

func (t *tokenHolder) Token() (string, error) {
	return graph.StaticToken(t.value).Token()
}

// Provider implements storage.Provider on a graph.Client.
type Provider struct {
	client    *graph.Client
	token     *tokenHolder
	driveID   string
	chunkSize int64
	logger    *slog.Logger
}

var _ storage.Provider = (*Provider)(nil)

// New returns a Provider bound to accessToken.
func New(accessToken string, opts Options) (*Provider, error) {
	if accessToken == "" {
		return nil, storage.InvalidArgumentf("onedrive: access token is required")
	}

	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}

	if chunk < 0 || chunk%graph.ChunkAlignment != 0 {
		return nil, storage.InvalidArgumentf("onedrive: chunk size %d is not a multiple of %d", chunk, graph.ChunkAlignment)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	token := &tokenHolder{value: accessToken}

	return &Provider{
		client:    graph.NewClient(opts.BaseURL, opts.HTTPClient, token, logger, opts.UserAgent),
		token:     token,
		driveID:   driveid.New(opts.DriveID).String(),
		chunkSize: chunk,
		logger:    logger.With(slog.String("backend", backendName)),
	}, nil
}

// parentOrRoot maps the "root" sentinel and "" to the Graph root alias.
func parentOrRoot(id string) string {
	if id == "" {
		return storage.RootID
	}

	return id
}

// isNotFound reports whether err is a Graph 404/itemNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, graph.ErrNotFound)
}

// toFile projects a Graph item into the canonical File.
func toFile(item *graph.Item) *storage.File {
	f := &storage.File{
		ID:           item.ID,
		Name:         item.Name,
		Size:         item.Size,
		ParentID:     item.ParentID,
		CreatedTime:  item.CreatedAt,
		ModifiedTime: item.ModifiedAt,
		Type:         storage.TypeFile,
		WebViewLink:  item.WebURL,
		Description:  item.Description,
		MimeType:     mimetype.OrFromName(item.MimeType, item.Name),
	}

	switch {
	case item.IsRoot:
		f.ParentID = ""
	case item.ParentIsRoot:
		f.ParentID = storage.RootID
	}

	if item.IsFolder {
		f.Type = storage.TypeFolder
		f.Size = 0
		f.MimeType = storage.FolderMimeType
	}

	f.ProviderData = map[string]any{"eTag": item.ETag}
	if item.DriveID != "" {
		f.ProviderData["driveId"] = driveid.New(item.DriveID).String()
	}

	if item.QuickXorHash != "" {
		f.ProviderData["quickXorHash"] = item.QuickXorHash
	}

	if item.IsPackage {
		f.ProviderData["package"] = true
	}

	storage.BackfillTimes(f)

	return f
}

func toResult(page *graph.ItemPage) *storage.ListFilesResult {
	res := &storage.ListFilesResult{
		Files:         make([]storage.File, 0, len(page.Items)),
		NextPageToken: page.NextPath,
	}

	for i := range page.Items {
		res.Files = append(res.Files, *toFile(&page.Items[i]))
	}

	return res
}

// Create implements storage.Provider.
func (p *Provider) Create(ctx context.Context, meta storage.FileMetadata, content []byte) (*storage.File, error) {
	if err := storage.ValidateMetadata(meta); err != nil {
		return nil, err
	}

	parentID := parentOrRoot(meta.ParentID)

	var (
		item *graph.Item
		err  error
	)

	if storage.IsFolderMimeType(meta.MimeType) {
		item, err = p.client.CreateFolder(ctx, p.driveID, parentID, meta.Name)
	} else {
		var data []byte

		data, err = storage.ResolveContent(meta, content)
		if err != nil {
			return nil, err
		}

		item, err = p.upload(ctx, parentID, meta.Name, data)
	}

	if err != nil {
		return nil, fmt.Errorf("onedrive: creating %q: %w", meta.Name, err)
	}

	if meta.Description != "" {
		desc := meta.Description

		item, err = p.client.UpdateItem(ctx, p.driveID, item.ID, graph.ItemUpdate{Description: &desc})
		if err != nil {
			return nil, fmt.Errorf("onedrive: setting description on %q: %w", meta.Name, err)
		}
	}

	return toFile(item), nil
}

// upload picks simple upload or an upload session by size, then checks the
// stored content against data when Graph reports a QuickXorHash.
func (p *Provider) upload(ctx context.Context, parentID, name string, data []byte) (*graph.Item, error) {
	var (
		item *graph.Item
		err  error
	)

	if len(data) <= graph.SimpleUploadMaxSize {
		item, err = p.client.SimpleUpload(ctx, p.driveID, parentID, name, data)
	} else {
		item, err = p.uploadChunked(ctx, parentID, name, data)
	}

	if err != nil {
		return nil, err
	}

	if item.QuickXorHash != "" {
		if local := quickxorhash.Base64(data); local != item.QuickXorHash {
			p.logger.Warn("uploaded content hash mismatch",
				slog.String("item_id", item.ID),
				slog.String("local", local),
				slog.String("remote", item.QuickXorHash),
			)

			return nil, fmt.Errorf("%w: item %s", ErrHashMismatch, item.ID)
		}
	}

	return item, nil
}

// uploadChunked sends data through an upload session. The session is
// canceled when any chunk fails.
func (p *Provider) uploadChunked(ctx context.Context, parentID, name string, data []byte) (*graph.Item, error) {
	session, err := p.client.CreateUploadSession(ctx, p.driveID, parentID, name)
	if err != nil {
		return nil, err
	}

	total := int64(len(data))

	for offset := int64(0); offset < total; offset += p.chunkSize {
		end := min(offset+p.chunkSize, total)

		item, chunkErr := p.client.UploadChunk(ctx, session, data[offset:end], offset, total)
		if chunkErr != nil {
			p.cancelSession(ctx, session)

			return nil, fmt.Errorf("uploading bytes %d-%d: %w", offset, end-1, chunkErr)
		}

		if item == nil {
			continue
		}

		if item.HasContentHash() {
			return item, nil
		}

		// The final response sometimes omits hashes; the stored item has them.
		p.logger.Debug("final chunk reported no hash, refetching item",
			slog.String("item_id", item.ID),
		)

		return p.client.GetItem(ctx, p.driveID, item.ID)
	}

	p.cancelSession(ctx, session)

	return nil, errors.New("upload session ended without a completed item")
}

func (p *Provider) cancelSession(ctx context.Context, session *graph.UploadSession) {
	if err := p.client.CancelUploadSession(context.WithoutCancel(ctx), session); err != nil {
		p.logger.Warn("canceling upload session failed",
			slog.String("error", err.Error()),
		)
	}
}

// GetByID implements storage.Provider. fields is ignored; Graph always
// returns the full item.
func (p *Provider) GetByID(ctx context.Context, id string, _ ...string) (*storage.File, error) {
	item, err := p.client.GetItem(ctx, p.driveID, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("onedrive: getting %s: %w", id, err)
	}

	return toFile(item), nil
}

// Update implements storage.Provider.
func (p *Provider) Update(ctx context.Context, id string, update storage.FileUpdate) (*storage.File, error) {
	if update.IsEmpty() {
		return p.GetByID(ctx, id)
	}

	upd := graph.ItemUpdate{Name: update.Name, Description: update.Description}
	if update.ParentID != "" {
		upd.ParentID = parentOrRoot(update.ParentID)
	}

	item, err := p.client.UpdateItem(ctx, p.driveID, id, upd)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("onedrive: updating %s: %w", id, err)
	}

	return toFile(item), nil
}

// Delete implements storage.Provider. permanent=false moves the item to
// the recycle bin.
func (p *Provider) Delete(ctx context.Context, id string, permanent bool) (bool, error) {
	var err error
	if permanent {
		err = p.client.PermanentDeleteItem(ctx, p.driveID, id)
	} else {
		err = p.client.DeleteItem(ctx, p.driveID, id)
	}

	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		if permanent && permanentDeleteRejected(err) {
			p.logger.Warn("permanent delete rejected by drive",
				slog.String("item_id", id),
			)

			return false, storage.Unsupported(backendName, "permanent delete")
		}

		return false, fmt.Errorf("onedrive: deleting %s: %w", id, err)
	}

	return true, nil
}

// permanentDeleteRejected reports whether err is the answer personal
// drives give to permanentDelete.
func permanentDeleteRejected(err error) bool {
	var ge *graph.GraphError
	if !errors.As(err, &ge) {
		return false
	}

	switch {
	case ge.StatusCode == http.StatusNotImplemented:
		return true
	case ge.Code == "notSupported":
		return true
	default:
		return ge.StatusCode == http.StatusBadRequest && ge.Code == "invalidRequest"
	}
}

// ListChildren implements storage.Provider. The recycle bin is never
// listed, so IncludeTrashed has no effect.
func (p *Provider) ListChildren(ctx context.Context, parentID string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	p.logger.Debug("listing children",
		slog.String("parent_id", parentID),
		slog.String("options", opts.String()),
	)

	var (
		page *graph.ItemPage
		err  error
	)

	if opts.PageToken != "" {
		page, err = p.client.FetchPage(ctx, opts.PageToken)
	} else {
		size := storage.ClampPageSize(opts.PageSize, graph.MaxPageSize, graph.MaxPageSize)
		page, err = p.client.ListChildren(ctx, p.driveID, parentOrRoot(parentID), size, opts.OrderBy)
	}

	if err != nil {
		return nil, fmt.Errorf("onedrive: listing %s: %w", parentID, err)
	}

	return toResult(page), nil
}

// Download implements storage.Provider.
func (p *Provider) Download(ctx context.Context, id string, _ storage.DownloadOptions) (*storage.DownloadResult, error) {
	item, err := p.client.GetItem(ctx, p.driveID, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("onedrive: getting %s for download: %w", id, err)
	}

	if item.IsFolder {
		return nil, storage.InvalidArgumentf("onedrive: %s is a folder", id)
	}

	var buf bytes.Buffer
	buf.Grow(int(item.Size))

	n, err := p.client.Download(ctx, item, &buf)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("onedrive: downloading %s: %w", id, err)
	}

	return &storage.DownloadResult{
		Data:     buf.Bytes(),
		Filename: item.Name,
		MimeType: mimetype.OrFromName(item.MimeType, item.Name),
		Size:     n,
	}, nil
}

// Copy implements storage.Provider. It blocks until the service finishes
// the asynchronous copy.
func (p *Provider) Copy(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	item, err := p.client.CopyItem(ctx, p.driveID, sourceID, parentOrRoot(targetParentID), newName)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("onedrive: copying %s: %w", sourceID, err)
	}

	return toFile(item), nil
}

// Move implements storage.Provider as a single reparenting PATCH.
func (p *Provider) Move(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	return p.Update(ctx, sourceID, storage.FileUpdate{
		Name:     newName,
		ParentID: parentOrRoot(targetParentID),
	})
}

// DriveInfo implements storage.Provider from the drive quota facet.
func (p *Provider) DriveInfo(ctx context.Context) (*storage.DriveInfo, error) {
	drive, err := p.client.Drive(ctx, p.driveID)
	if err != nil {
		if isNotFound(err) || errors.Is(err, graph.ErrForbidden) {
			return nil, nil
		}

		return nil, fmt.Errorf("onedrive: fetching drive: %w", err)
	}

	return &storage.DriveInfo{
		TotalSpace: drive.QuotaTotal,
		UsedSpace:  drive.QuotaUsed,
		TrashSize:  drive.QuotaDeleted,
	}, nil
}

// ShareableLink implements storage.Provider with an anonymous view or
// edit link. Tenants that forbid anonymous links yield "".
func (p *Provider) ShareableLink(ctx context.Context, id string, perm storage.LinkPermission) (string, error) {
	linkType := graph.LinkView
	if perm == storage.PermissionWrite {
		linkType = graph.LinkEdit
	}

	link, err := p.client.CreateLink(ctx, p.driveID, id, linkType)
	if err != nil {
		if isNotFound(err) || errors.Is(err, graph.ErrForbidden) || errors.Is(err, graph.ErrBadRequest) {
			p.logger.Debug("no sharing link available",
				slog.String("item_id", id),
				slog.String("error", err.Error()),
			)

			return "", nil
		}

		return "", fmt.Errorf("onedrive: creating link for %s: %w", id, err)
	}

	return link, nil
}

// Search implements storage.Provider using the drive search endpoint,
// which matches names and content.
func (p *Provider) Search(ctx context.Context, query string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	var (
		page *graph.ItemPage
		err  error
	)

	if opts.PageToken != "" {
		page, err = p.client.FetchPage(ctx, opts.PageToken)
	} else {
		size := storage.ClampPageSize(opts.PageSize, graph.MaxPageSize, graph.MaxPageSize)
		page, err = p.client.Search(ctx, p.driveID, query, size)
	}

	if err != nil {
		return nil, fmt.Errorf("onedrive: searching: %w", err)
	}

	return toResult(page), nil
}

// AccessToken implements storage.Provider.
func (p *Provider) AccessToken() string {
	return p.token.value
}

// SetAccessToken implements storage.Provider.
func (p *Provider) SetAccessToken(token string) error {
	if token == "" {
		return storage.InvalidArgumentf("onedrive: access token is required")
	}

	p.token.value = token

	return nil
}
