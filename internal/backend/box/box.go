// Package box adapts the Box content API to storage.Provider.
//
// Files and folders are separate resource types with separate endpoints,
// so lookups by bare id probe the file endpoint first and fall back to the
// folder endpoint. The root folder is "0" on the wire and "root" here.
// Listing and search pages are numeric offsets. Non-permanent deletes move
// the item to the trash; permanent deletes also purge it from the trash.
//
// Box stores no content type. Every call, Create included, reports the
// type derived from the file name, so a type passed to Create survives
// only when the name's extension maps to it.
package box

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/cloudvfs/internal/mimetype"
	"github.com/tonimelisma/cloudvfs/internal/storage"
)

const backendName = "box"

// Endpoints.
const (
	DefaultBaseURL   = "https://api.box.com/2.0"
	DefaultUploadURL = "https://upload.box.com/api/2.0"
	authURL          = "https://account.box.com/api/oauth2/authorize"
	tokenURL         = "https://api.box.com/oauth2/token"
)

// Paging limits.
const (
	MaxPageSize     = 1000
	defaultPageSize = 100
	maxSearchSize   = 200
)

// rootFolderID is Box's id for the account root.
const rootFolderID = "0"

// itemFields are requested on every item read.
var itemFields = []string{
	"id", "type", "name", "size", "created_at", "modified_at",
	"description", "parent", "item_status", "shared_link",
}

// Options configures a Provider.
type Options struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	UploadURL    string
	// HTTPClient is the base transport; the bearer token is layered on
	// top of it.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider implements storage.Provider on the Box API.
type Provider struct {
	oauth  *oauth2.Config
	base   *http.Client
	api    *client
	token  string
	logger *slog.Logger
}

var _ storage.Provider = (*Provider)(nil)

// New returns a Provider bound to accessToken. The client id and secret
// identify the application the token was issued to.
func New(accessToken string, opts Options) (*Provider, error) {
	if accessToken == "" {
		return nil, storage.InvalidArgumentf("box: access token is required")
	}

	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, storage.InvalidArgumentf("box: client id and secret are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	uploadURL := opts.UploadURL
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}

	p := &Provider{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		base:   opts.HTTPClient,
		logger: logger.With(slog.String("backend", backendName)),
		api: &client{
			baseURL:   strings.TrimSuffix(baseURL, "/"),
			uploadURL: strings.TrimSuffix(uploadURL, "/"),
			logger:    logger,
			sleepFunc: timeSleep,
		},
	}

	p.bind(accessToken)

	return p, nil
}

// bind points the API client at an oauth2 transport carrying token.
func (p *Provider) bind(token string) {
	ctx := context.Background()
	if p.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.base)
	}

	p.api.httpClient = p.oauth.Client(ctx, &oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	p.token = token
}

// boxID maps the root sentinel to Box's root folder id.
func boxID(id string) string {
	if id == "" || id == storage.RootID || id == "/" {
		return rootFolderID
	}

	return id
}

type itemRef struct {
	ID string `json:"id"`
}

type sharedLink struct {
	URL         string `json:"url"`
	DownloadURL string `json:"download_url"`
}

// item mirrors a Box file, folder or web_link resource.
type item struct {
	Type        string      `json:"type"`
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Size        int64       `json:"size"`
	CreatedAt   string      `json:"created_at"`
	ModifiedAt  string      `json:"modified_at"`
	Description string      `json:"description"`
	ItemStatus  string      `json:"item_status"`
	Parent      *itemRef    `json:"parent"`
	SharedLink  *sharedLink `json:"shared_link"`
	ETag        string      `json:"etag"`
}

type collection struct {
	TotalCount int64  `json:"total_count"`
	Entries    []item `json:"entries"`
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return t.UTC()
}

// toFile projects a Box item into the canonical File.
func toFile(it *item) *storage.File {
	f := &storage.File{
		ID:           it.ID,
		Name:         it.Name,
		Size:         it.Size,
		CreatedTime:  parseTime(it.CreatedAt),
		ModifiedTime: parseTime(it.ModifiedAt),
		Description:  it.Description,
		Trashed:      it.ItemStatus == "trashed" || it.ItemStatus == "deleted",
		ProviderData: map[string]any{"type": it.Type},
	}

	if it.ETag != "" {
		f.ProviderData["etag"] = it.ETag
	}

	switch {
	case it.ID == rootFolderID:
		f.ID = storage.RootID
		f.ParentID = ""
	case it.Parent == nil || it.Parent.ID == rootFolderID:
		f.ParentID = storage.RootID
	default:
		f.ParentID = it.Parent.ID
	}

	switch it.Type {
	case "folder":
		f.Type = storage.TypeFolder
		f.Size = 0
		f.MimeType = storage.FolderMimeType
		f.WebViewLink = "https://app.box.com/folder/" + it.ID
	case "web_link":
		f.Type = storage.TypeShortcut
		f.MimeType = storage.ShortcutMimeType
	default:
		f.Type = storage.TypeFile
		f.MimeType = mimetype.FromName(it.Name)
		f.WebViewLink = "https://app.box.com/file/" + it.ID
	}

	if it.SharedLink != nil {
		f.WebContentLink = it.SharedLink.DownloadURL
	}

	storage.BackfillTimes(f)

	return f
}

func fieldsQuery(fields []string) url.Values {
	q := url.Values{}

	if len(fields) == 0 {
		fields = itemFields
	} else {
		fields = append([]string{"id", "type", "name", "parent"}, fields...)
	}

	q.Set("fields", strings.Join(fields, ","))

	return q
}

// lookup probes the file endpoint and then the folder endpoint. Returns
// ErrNotFound when neither knows id.
func (p *Provider) lookup(ctx context.Context, id string, fields ...string) (*item, error) {
	id = boxID(id)
	q := fieldsQuery(fields)

	var it item

	if id != rootFolderID {
		err := p.api.getJSON(ctx, "/files/"+url.PathEscape(id), q, &it)
		if err == nil {
			return &it, nil
		}

		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("box: getting file %s: %w", id, err)
		}
	}

	err := p.api.getJSON(ctx, "/folders/"+url.PathEscape(id), q, &it)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("box: getting folder %s: %w", id, err)
	}

	return &it, nil
}

// resourcePath returns "/files/{id}" or "/folders/{id}" for it.
func resourcePath(it *item) string {
	if it.Type == "folder" {
		return "/folders/" + url.PathEscape(it.ID)
	}

	if it.Type == "web_link" {
		return "/web_links/" + url.PathEscape(it.ID)
	}

	return "/files/" + url.PathEscape(it.ID)
}

// Create implements storage.Provider.
func (p *Provider) Create(ctx context.Context, meta storage.FileMetadata, content []byte) (*storage.File, error) {
	if err := storage.ValidateMetadata(meta); err != nil {
		return nil, err
	}

	parent := boxID(meta.ParentID)

	var (
		it  *item
		err error
	)

	if storage.IsFolderMimeType(meta.MimeType) {
		p.logger.Info("creating folder",
			slog.String("parent_id", parent),
			slog.String("name", meta.Name),
		)

		it = &item{}
		err = p.api.sendJSON(ctx, http.MethodPost, "/folders", fieldsQuery(nil), map[string]any{
			"name":   meta.Name,
			"parent": itemRef{ID: parent},
		}, it)
	} else {
		var data []byte

		data, err = storage.ResolveContent(meta, content)
		if err != nil {
			return nil, err
		}

		it, err = p.upload(ctx, parent, meta.Name, data)
	}

	if err != nil {
		return nil, fmt.Errorf("box: creating %q: %w", meta.Name, err)
	}

	if meta.Description != "" {
		var updated item
		if err := p.api.sendJSON(ctx, http.MethodPut, resourcePath(it), fieldsQuery(nil),
			map[string]any{"description": meta.Description}, &updated); err != nil {
			return nil, fmt.Errorf("box: setting description on %q: %w", meta.Name, err)
		}

		it = &updated
	}

	return toFile(it), nil
}

// upload sends data as a multipart form with an attributes part.
func (p *Provider) upload(ctx context.Context, parent, name string, data []byte) (*item, error) {
	p.logger.Info("uploading file",
		slog.String("parent_id", parent),
		slog.String("name", name),
		slog.Int("size", len(data)),
	)

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	attrs := fmt.Sprintf(`{"name":%s,"parent":{"id":%s}}`, strconv.Quote(name), strconv.Quote(parent))
	if err := mw.WriteField("attributes", attrs); err != nil {
		return nil, err
	}

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%s`, strconv.Quote(name)))
	h.Set("Content-Type", "application/octet-stream")

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}

	if _, err := part.Write(data); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}

	q := fieldsQuery(nil)

	resp, err := p.api.do(ctx, http.MethodPost, p.api.uploadURL+"/files/content?"+q.Encode(), mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return nil, err
	}

	var col collection
	if err := decodeBody(resp, &col); err != nil {
		return nil, err
	}

	if len(col.Entries) == 0 {
		return nil, errors.New("upload response has no entries")
	}

	return &col.Entries[0], nil
}

// GetByID implements storage.Provider. fields narrows the Box fields
// requested; id, type and name are always included.
func (p *Provider) GetByID(ctx context.Context, id string, fields ...string) (*storage.File, error) {
	it, err := p.lookup(ctx, id, fields...)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return toFile(it), nil
}

// Update implements storage.Provider.
func (p *Provider) Update(ctx context.Context, id string, update storage.FileUpdate) (*storage.File, error) {
	it, err := p.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	if update.IsEmpty() {
		return toFile(it), nil
	}

	body := map[string]any{}
	if update.Name != "" {
		body["name"] = update.Name
	}

	if update.ParentID != "" {
		body["parent"] = itemRef{ID: boxID(update.ParentID)}
	}

	if update.Description != nil {
		body["description"] = *update.Description
	}

	p.logger.Info("updating item",
		slog.String("item_id", it.ID),
		slog.String("type", it.Type),
	)

	var updated item
	if err := p.api.sendJSON(ctx, http.MethodPut, resourcePath(it), fieldsQuery(nil), body, &updated); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("box: updating %s: %w", it.ID, err)
	}

	return toFile(&updated), nil
}

// Delete implements storage.Provider.
func (p *Provider) Delete(ctx context.Context, id string, permanent bool) (bool, error) {
	it, err := p.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	if it.ID == rootFolderID {
		return false, storage.InvalidArgumentf("box: the root folder cannot be deleted")
	}

	p.logger.Info("deleting item",
		slog.String("item_id", it.ID),
		slog.String("type", it.Type),
		slog.Bool("permanent", permanent),
	)

	var q url.Values
	if it.Type == "folder" {
		q = url.Values{"recursive": {"true"}}
	}

	if err := p.api.sendJSON(ctx, http.MethodDelete, resourcePath(it), q, nil, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("box: deleting %s: %w", it.ID, err)
	}

	if permanent {
		if err := p.api.sendJSON(ctx, http.MethodDelete, resourcePath(it)+"/trash", nil, nil, nil); err != nil {
			return false, fmt.Errorf("box: purging %s from trash: %w", it.ID, err)
		}
	}

	return true, nil
}

// sortFields are the Box sort keys accepted for OrderBy.
var sortFields = map[string]bool{"id": true, "name": true, "date": true, "size": true}

// ListChildren implements storage.Provider. OrderBy accepts "name",
// "date", "size" or "id" with an optional " desc" suffix. Box never lists
// trashed items in a folder.
func (p *Provider) ListChildren(ctx context.Context, parentID string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	offset, err := storage.DecodeOffsetToken(opts.PageToken)
	if err != nil {
		return nil, err
	}

	limit := storage.ClampPageSize(opts.PageSize, defaultPageSize, MaxPageSize)
	q := fieldsQuery(nil)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	if field, dir, _ := strings.Cut(strings.TrimSpace(opts.OrderBy), " "); sortFields[field] {
		q.Set("sort", field)

		if strings.EqualFold(dir, "desc") {
			q.Set("direction", "DESC")
		}
	}

	var col collection
	if err := p.api.getJSON(ctx, "/folders/"+url.PathEscape(boxID(parentID))+"/items", q, &col); err != nil {
		return nil, fmt.Errorf("box: listing %s: %w", parentID, err)
	}

	return p.page(&col, offset, limit), nil
}

func (p *Provider) page(col *collection, offset, limit int) *storage.ListFilesResult {
	res := &storage.ListFilesResult{
		Files:         make([]storage.File, 0, len(col.Entries)),
		NextPageToken: storage.NextOffsetToken(offset, limit, col.TotalCount),
	}

	for i := range col.Entries {
		res.Files = append(res.Files, *toFile(&col.Entries[i]))
	}

	return res
}

// Download implements storage.Provider.
func (p *Provider) Download(ctx context.Context, id string, _ storage.DownloadOptions) (*storage.DownloadResult, error) {
	it, err := p.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	if it.Type != "file" {
		return nil, storage.InvalidArgumentf("box: %s is a %s", id, it.Type)
	}

	resp, err := p.api.do(ctx, http.MethodGet, p.api.apiURL(resourcePath(it)+"/content", nil), "", nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("box: downloading %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("box: reading %s: %w", id, err)
	}

	return &storage.DownloadResult{
		Data:     data,
		Filename: it.Name,
		MimeType: mimetype.FromName(it.Name),
		Size:     int64(len(data)),
	}, nil
}

// Copy implements storage.Provider.
func (p *Provider) Copy(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	it, err := p.lookup(ctx, sourceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	body := map[string]any{"parent": itemRef{ID: boxID(targetParentID)}}
	if newName != "" {
		body["name"] = newName
	}

	p.logger.Info("copying item",
		slog.String("item_id", it.ID),
		slog.String("target_parent_id", boxID(targetParentID)),
	)

	var copied item
	if err := p.api.sendJSON(ctx, http.MethodPost, resourcePath(it)+"/copy", fieldsQuery(nil), body, &copied); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("box: copying %s: %w", it.ID, err)
	}

	return toFile(&copied), nil
}

// Move implements storage.Provider as one parent update.
func (p *Provider) Move(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	return p.Update(ctx, sourceID, storage.FileUpdate{
		Name:     newName,
		ParentID: boxID(targetParentID),
	})
}

type userInfo struct {
	SpaceAmount int64 `json:"space_amount"`
	SpaceUsed   int64 `json:"space_used"`
}

// DriveInfo implements storage.Provider. The account quota and the trash
// item count are fetched concurrently; a failed trash count leaves
// TrashItems zero.
func (p *Provider) DriveInfo(ctx context.Context) (*storage.DriveInfo, error) {
	var (
		user  userInfo
		trash collection
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.api.getJSON(gctx, "/users/me", url.Values{"fields": {"space_amount,space_used"}}, &user)
	})

	g.Go(func() error {
		err := p.api.getJSON(gctx, "/folders/trash/items", url.Values{"limit": {"1"}, "fields": {"id"}}, &trash)
		if err != nil && gctx.Err() == nil {
			p.logger.Warn("trash count unavailable", slog.String("error", err.Error()))
			trash = collection{}

			return nil
		}

		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("box: fetching drive info: %w", err)
	}

	return &storage.DriveInfo{
		TotalSpace: user.SpaceAmount,
		UsedSpace:  user.SpaceUsed,
		TrashItems: trash.TotalCount,
	}, nil
}

// ShareableLink implements storage.Provider with an open shared link.
// Box only allows edit links on files, so write links on folders yield "".
// Enterprises that forbid open links also yield "".
func (p *Provider) ShareableLink(ctx context.Context, id string, perm storage.LinkPermission) (string, error) {
	it, err := p.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}

		return "", err
	}

	canEdit := perm == storage.PermissionWrite
	if canEdit && it.Type != "file" {
		return "", nil
	}

	body := map[string]any{
		"shared_link": map[string]any{
			"access": "open",
			"permissions": map[string]bool{
				"can_download": true,
				"can_edit":     canEdit,
			},
		},
	}

	var updated item
	if err := p.api.sendJSON(ctx, http.MethodPut, resourcePath(it), url.Values{"fields": {"shared_link"}}, body, &updated); err != nil {
		if errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadRequest) {
			p.logger.Debug("no shared link available",
				slog.String("item_id", it.ID),
				slog.String("error", err.Error()),
			)

			return "", nil
		}

		return "", fmt.Errorf("box: creating link for %s: %w", it.ID, err)
	}

	if updated.SharedLink == nil {
		return "", nil
	}

	return updated.SharedLink.URL, nil
}

// Search implements storage.Provider with Box search, which matches names,
// descriptions and file content.
func (p *Provider) Search(ctx context.Context, query string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	offset, err := storage.DecodeOffsetToken(opts.PageToken)
	if err != nil {
		return nil, err
	}

	limit := storage.ClampPageSize(opts.PageSize, defaultPageSize, maxSearchSize)
	q := fieldsQuery(nil)
	q.Set("query", query)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	if opts.IncludeTrashed {
		q.Set("trash_content", "all_items")
	}

	var col collection
	if err := p.api.getJSON(ctx, "/search", q, &col); err != nil {
		return nil, fmt.Errorf("box: searching: %w", err)
	}

	return p.page(&col, offset, limit), nil
}

// AccessToken implements storage.Provider.
func (p *Provider) AccessToken() string {
	return p.token
}

// SetAccessToken implements storage.Provider.
func (p *Provider) SetAccessToken(token string) error {
	if token == "" {
		return storage.InvalidArgumentf("box: access token is required")
	}

	p.bind(token)

	return nil
}
