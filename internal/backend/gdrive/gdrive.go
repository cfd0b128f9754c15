// Package gdrive adapts Google Drive to storage.Provider.
//
// Items are addressed by durable id. Drive's root folder has a real id;
// it is fetched once and reported as "root". Native office documents
// (Docs, Sheets, Slides, Drawings) have no binary body and are exported on
// download. Non-permanent deletes set trashed=true.
package gdrive

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
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tonimelisma/cloudvfs/internal/mimetype"
	"github.com/tonimelisma/cloudvfs/internal/storage"
)

const backendName = "gdrive"

// DefaultUploadURL is the resumable upload endpoint.
const DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files"

// Paging limits.
const (
	MaxPageSize     = 1000
	defaultPageSize = 100
)

// nativePrefix marks Google's own document types.
const nativePrefix = "application/vnd.google-apps."

// fileFields is the partial response requested for every item.
const fileFields = "id,name,mimeType,size,parents,createdTime,modifiedTime," +
	"webViewLink,webContentLink,description,trashed,md5Checksum,shortcutDetails"

// exportFormat is the default conversion for a native document type.
type exportFormat struct {
	mimeType string
	ext      string
}

var defaultExports = map[string]exportFormat{
	nativePrefix + "document":     {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx"},
	nativePrefix + "spreadsheet":  {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"},
	nativePrefix + "presentation": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", ".pptx"},
	nativePrefix + "drawing":      {"image/png", ".png"},
	nativePrefix + "script":       {"application/vnd.google-apps.script+json", ".json"},
}

// Options configures a Provider.
type Options struct {
	// BaseURL overrides the Drive API endpoint, e.g. for tests.
	BaseURL string
	// UploadURL overrides the resumable upload endpoint. When empty and
	// BaseURL is set it is derived from BaseURL's host.
	UploadURL  string
	HTTPClient *http.Client
	// ForceResumableUpload sends every file body through the two-phase
	// resumable protocol instead of the client library's media upload.
	// Runtimes whose HTTP stack cannot stream multipart binary bodies set it.
	ForceResumableUpload bool
	UserAgent            string
	Logger               *slog.Logger
}

// Provider implements storage.Provider on the Drive v3 API.
type Provider struct {
	opts      Options
	uploadURL string
	logger    *slog.Logger

	svc   *drive.Service
	http  *http.Client
	token string

	mu     sync.Mutex
	rootID string
}

var _ storage.Provider = (*Provider)(nil)

// New returns a Provider bound to accessToken.
func New(ctx context.Context, accessToken string, opts Options) (*Provider, error) {
	if accessToken == "" {
		return nil, storage.InvalidArgumentf("gdrive: access token is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	uploadURL, err := resolveUploadURL(opts)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		opts:      opts,
		uploadURL: uploadURL,
		logger:    logger.With(slog.String("backend", backendName)),
	}

	if err := p.bind(ctx, accessToken); err != nil {
		return nil, err
	}

	return p, nil
}

func resolveUploadURL(opts Options) (string, error) {
	if opts.UploadURL != "" {
		return opts.UploadURL, nil
	}

	if opts.BaseURL == "" {
		return DefaultUploadURL, nil
	}

	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Host == "" {
		return "", storage.InvalidArgumentf("gdrive: invalid base URL %q", opts.BaseURL)
	}

	u.Path = "/upload/drive/v3/files"
	u.RawQuery = ""

	return u.String(), nil
}

// bind builds the Drive service and the raw upload client for token.
func (p *Provider) bind(ctx context.Context, token string) error {
	if p.opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.opts.HTTPClient)
	}

	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))

	clientOpts := []option.ClientOption{option.WithHTTPClient(hc)}
	if p.opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(p.opts.BaseURL))
	}

	if p.opts.UserAgent != "" {
		clientOpts = append(clientOpts, option.WithUserAgent(p.opts.UserAgent))
	}

	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("gdrive: creating drive service: %w", err)
	}

	p.svc = svc
	p.http = hc
	p.token = token

	return nil
}

func isStatus(err error, codes ...int) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}

	for _, c := range codes {
		if gerr.Code == c {
			return true
		}
	}

	return false
}

func isNotFound(err error) bool {
	return isStatus(err, http.StatusNotFound)
}

// driveID maps the root sentinel to Drive's "root" alias.
func driveID(id string) string {
	if id == "" || id == "/" {
		return storage.RootID
	}

	return id
}

// root returns the real id of the root folder, fetching it once. An
// unavailable root id leaves parent ids unmapped.
func (p *Provider) root(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rootID != "" {
		return p.rootID
	}

	f, err := p.svc.Files.Get("root").Fields("id").Context(ctx).Do()
	if err != nil {
		p.logger.Warn("root folder id unavailable", slog.String("error", err.Error()))

		return ""
	}

	p.rootID = f.Id

	return p.rootID
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return t.UTC()
}

// toFile projects a Drive file into the canonical File.
func toFile(df *drive.File, rootID string) *storage.File {
	f := &storage.File{
		ID:             df.Id,
		Name:           df.Name,
		MimeType:       df.MimeType,
		Size:           df.Size,
		CreatedTime:    parseTime(df.CreatedTime),
		ModifiedTime:   parseTime(df.ModifiedTime),
		WebViewLink:    df.WebViewLink,
		WebContentLink: df.WebContentLink,
		Description:    df.Description,
		Trashed:        df.Trashed,
		Type:           storage.TypeFile,
		ProviderData:   map[string]any{},
	}

	switch {
	case rootID != "" && df.Id == rootID:
		f.ID = storage.RootID
	case len(df.Parents) == 0 || df.Parents[0] == rootID:
		f.ParentID = storage.RootID
	default:
		f.ParentID = df.Parents[0]
	}

	switch df.MimeType {
	case storage.FolderMimeType:
		f.Type = storage.TypeFolder
		f.Size = 0
	case storage.ShortcutMimeType:
		f.Type = storage.TypeShortcut

		if df.ShortcutDetails != nil {
			f.ProviderData["shortcutTargetId"] = df.ShortcutDetails.TargetId
			f.ProviderData["shortcutTargetMimeType"] = df.ShortcutDetails.TargetMimeType
		}
	}

	if f.MimeType == "" {
		f.MimeType = mimetype.FromName(df.Name)
	}

	if df.Md5Checksum != "" {
		f.ProviderData["md5Checksum"] = df.Md5Checksum
	}

	if len(f.ProviderData) == 0 {
		f.ProviderData = nil
	}

	storage.BackfillTimes(f)

	return f
}

func (p *Provider) file(ctx context.Context, df *drive.File) *storage.File {
	return toFile(df, p.root(ctx))
}

// Create implements storage.Provider.
func (p *Provider) Create(ctx context.Context, meta storage.FileMetadata, content []byte) (*storage.File, error) {
	if err := storage.ValidateMetadata(meta); err != nil {
		return nil, err
	}

	df := &drive.File{
		Name:        meta.Name,
		Parents:     []string{driveID(meta.ParentID)},
		Description: meta.Description,
	}

	if storage.IsFolderMimeType(meta.MimeType) {
		df.MimeType = storage.FolderMimeType

		p.logger.Info("creating folder",
			slog.String("parent_id", df.Parents[0]),
			slog.String("name", meta.Name),
		)

		created, err := p.svc.Files.Create(df).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gdrive: creating folder %q: %w", meta.Name, err)
		}

		return p.file(ctx, created), nil
	}

	data, err := storage.ResolveContent(meta, content)
	if err != nil {
		return nil, err
	}

	df.MimeType = mimetype.OrFromName(meta.MimeType, meta.Name)

	p.logger.Info("uploading file",
		slog.String("parent_id", df.Parents[0]),
		slog.String("name", meta.Name),
		slog.Int("size", len(data)),
		slog.Bool("resumable", p.opts.ForceResumableUpload),
	)

	var created *drive.File

	if p.opts.ForceResumableUpload {
		created, err = p.resumableUpload(ctx, df, data)
	} else {
		created, err = p.svc.Files.Create(df).
			Media(bytes.NewReader(data), googleapi.ContentType(df.MimeType)).
			Fields(fileFields).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	}

	if err != nil {
		return nil, fmt.Errorf("gdrive: uploading %q: %w", meta.Name, err)
	}

	return p.file(ctx, created), nil
}

// resumableUpload initiates a resumable session with the metadata, reads
// the session URL from the Location header, then PUTs the whole buffer to
// it in one request.
func (p *Provider) resumableUpload(ctx context.Context, df *drive.File, data []byte) (*drive.File, error) {
	meta, err := df.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	q := url.Values{
		"uploadType":        {"resumable"},
		"supportsAllDrives": {"true"},
		"fields":            {fileFields},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL+"?"+q.Encode(), bytes.NewReader(meta))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", df.MimeType)
	req.Header.Set("X-Upload-Content-Length", strconv.Itoa(len(data)))

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initiating resumable session: %w", err)
	}

	if err := googleapi.CheckResponse(resp); err != nil {
		resp.Body.Close()

		return nil, err
	}

	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain
	resp.Body.Close()

	session := resp.Header.Get("Location")
	if session == "" {
		return nil, errors.New("resumable session response has no Location header")
	}

	p.logger.Debug("resumable session opened", slog.Int("size", len(data)))

	put, err := http.NewRequestWithContext(ctx, http.MethodPut, session, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	put.Header.Set("Content-Type", df.MimeType)
	put.ContentLength = int64(len(data))

	resp, err = p.http.Do(put)
	if err != nil {
		return nil, fmt.Errorf("uploading to resumable session: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}

	var created drive.File
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}

	return &created, nil
}

// GetByID implements storage.Provider. fields are Drive field names;
// id, name, mimeType and parents are always requested.
func (p *Provider) GetByID(ctx context.Context, id string, fields ...string) (*storage.File, error) {
	sel := fileFields
	if len(fields) > 0 {
		sel = "id,name,mimeType,parents," + strings.Join(fields, ",")
	}

	df, err := p.svc.Files.Get(driveID(id)).Fields(googleapi.Field(sel)).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("gdrive: getting %s: %w", id, err)
	}

	return p.file(ctx, df), nil
}

// Update implements storage.Provider.
func (p *Provider) Update(ctx context.Context, id string, update storage.FileUpdate) (*storage.File, error) {
	current, err := p.svc.Files.Get(driveID(id)).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("gdrive: getting %s: %w", id, err)
	}

	if update.IsEmpty() {
		return p.file(ctx, current), nil
	}

	patch := &drive.File{Name: update.Name}
	if update.Description != nil {
		patch.Description = *update.Description
		patch.ForceSendFields = []string{"Description"}
	}

	call := p.svc.Files.Update(current.Id, patch).Fields(fileFields).SupportsAllDrives(true)

	if update.ParentID != "" {
		call = call.AddParents(driveID(update.ParentID)).RemoveParents(strings.Join(current.Parents, ","))
	}

	p.logger.Info("updating item",
		slog.String("item_id", current.Id),
		slog.String("target_parent_id", update.ParentID),
	)

	updated, err := call.Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("gdrive: updating %s: %w", id, err)
	}

	return p.file(ctx, updated), nil
}

// Delete implements storage.Provider. permanent=false sets trashed=true.
func (p *Provider) Delete(ctx context.Context, id string, permanent bool) (bool, error) {
	if driveID(id) == storage.RootID {
		return false, storage.InvalidArgumentf("gdrive: the root folder cannot be deleted")
	}

	p.logger.Info("deleting item",
		slog.String("item_id", id),
		slog.Bool("permanent", permanent),
	)

	var err error
	if permanent {
		err = p.svc.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do()
	} else {
		_, err = p.svc.Files.Update(id, &drive.File{Trashed: true}).Fields("id").SupportsAllDrives(true).Context(ctx).Do()
	}

	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("gdrive: deleting %s: %w", id, err)
	}

	return true, nil
}

// escapeQuery quotes s for a Drive query string literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func (p *Provider) list(ctx context.Context, q string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	if !opts.IncludeTrashed {
		q += " and trashed = false"
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "folder,name"
	}

	pageSize := storage.ClampPageSize(opts.PageSize, defaultPageSize, MaxPageSize)

	p.logger.Debug("listing files",
		slog.String("q", q),
		slog.String("options", opts.String()),
	)

	res, err := p.svc.Files.List().
		Q(q).
		PageSize(int64(pageSize)).
		PageToken(opts.PageToken).
		OrderBy(orderBy).
		Fields(googleapi.Field("nextPageToken,files(" + fileFields + ")")).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	root := p.root(ctx)
	out := &storage.ListFilesResult{
		Files:         make([]storage.File, 0, len(res.Files)),
		NextPageToken: res.NextPageToken,
	}

	for _, df := range res.Files {
		out.Files = append(out.Files, *toFile(df, root))
	}

	return out, nil
}

// ListChildren implements storage.Provider. OrderBy is a Drive orderBy
// expression; the default lists folders first, then by name.
func (p *Provider) ListChildren(ctx context.Context, parentID string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	q := fmt.Sprintf("'%s' in parents", escapeQuery(driveID(parentID)))

	res, err := p.list(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("gdrive: listing %s: %w", parentID, err)
	}

	return res, nil
}

// Search implements storage.Provider with Drive's "name contains", which
// matches case-insensitively on word prefixes.
func (p *Provider) Search(ctx context.Context, query string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	res, err := p.list(ctx, fmt.Sprintf("name contains '%s'", escapeQuery(query)), opts)
	if err != nil {
		return nil, fmt.Errorf("gdrive: searching: %w", err)
	}

	return res, nil
}

// Download implements storage.Provider. Native documents are exported to
// opts.ExportMimeType, or to a default office format when it is empty.
// Shortcuts are followed one hop.
func (p *Provider) Download(ctx context.Context, id string, opts storage.DownloadOptions) (*storage.DownloadResult, error) {
	df, err := p.svc.Files.Get(driveID(id)).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("gdrive: getting %s: %w", id, err)
	}

	if df.MimeType == storage.ShortcutMimeType && df.ShortcutDetails != nil {
		p.logger.Debug("following shortcut",
			slog.String("item_id", df.Id),
			slog.String("target_id", df.ShortcutDetails.TargetId),
		)

		return p.Download(ctx, df.ShortcutDetails.TargetId, opts)
	}

	if df.MimeType == storage.FolderMimeType {
		return nil, storage.InvalidArgumentf("gdrive: %s is a folder", id)
	}

	var (
		resp     *http.Response
		filename = df.Name
		mimeType = df.MimeType
	)

	if strings.HasPrefix(df.MimeType, nativePrefix) {
		exportType := opts.ExportMimeType

		format, ok := defaultExports[df.MimeType]
		if exportType == "" {
			if !ok {
				format = exportFormat{mimeType: "application/pdf", ext: ".pdf"}
			}

			exportType = format.mimeType
		}

		if exportType == format.mimeType {
			filename += format.ext
		}

		p.logger.Info("exporting document",
			slog.String("item_id", df.Id),
			slog.String("export_mime_type", exportType),
		)

		resp, err = p.svc.Files.Export(df.Id, exportType).Context(ctx).Download()
		mimeType = exportType
	} else {
		resp, err = p.svc.Files.Get(df.Id).SupportsAllDrives(true).Context(ctx).Download()
	}

	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("gdrive: downloading %s: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gdrive: reading %s: %w", id, err)
	}

	return &storage.DownloadResult{
		Data:     data,
		Filename: filename,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

// Copy implements storage.Provider. Drive cannot copy folders, so folders
// are recreated and their children copied one by one.
func (p *Provider) Copy(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	src, err := p.svc.Files.Get(driveID(sourceID)).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("gdrive: getting %s: %w", sourceID, err)
	}

	name := newName
	if name == "" {
		name = src.Name
	}

	p.logger.Info("copying item",
		slog.String("item_id", src.Id),
		slog.String("target_parent_id", driveID(targetParentID)),
	)

	copied, err := p.copyItem(ctx, src, driveID(targetParentID), name)
	if err != nil {
		return nil, fmt.Errorf("gdrive: copying %s: %w", sourceID, err)
	}

	return p.file(ctx, copied), nil
}

func (p *Provider) copyItem(ctx context.Context, src *drive.File, parent, name string) (*drive.File, error) {
	if src.MimeType != storage.FolderMimeType {
		return p.svc.Files.Copy(src.Id, &drive.File{Name: name, Parents: []string{parent}}).
			Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	}

	dir, err := p.svc.Files.Create(&drive.File{
		Name:        name,
		MimeType:    storage.FolderMimeType,
		Parents:     []string{parent},
		Description: src.Description,
	}).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(src.Id))

	err = p.svc.Files.List().
		Q(q).
		PageSize(MaxPageSize).
		Fields(googleapi.Field("nextPageToken,files(" + fileFields + ")")).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, child := range page.Files {
				if _, err := p.copyItem(ctx, child, dir.Id, child.Name); err != nil {
					return err
				}
			}

			return nil
		})
	if err != nil {
		return nil, err
	}

	return dir, nil
}

// Move implements storage.Provider by reparenting.
func (p *Provider) Move(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	return p.Update(ctx, sourceID, storage.FileUpdate{Name: newName, ParentID: driveID(targetParentID)})
}

// DriveInfo implements storage.Provider from the account's storage quota.
// Unlimited accounts report TotalSpace zero.
func (p *Provider) DriveInfo(ctx context.Context) (*storage.DriveInfo, error) {
	about, err := p.svc.About.Get().Fields("storageQuota").Context(ctx).Do()
	if err != nil {
		if isStatus(err, http.StatusForbidden, http.StatusNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("gdrive: fetching quota: %w", err)
	}

	if about.StorageQuota == nil {
		return nil, nil
	}

	return &storage.DriveInfo{
		TotalSpace: about.StorageQuota.Limit,
		UsedSpace:  about.StorageQuota.Usage,
		TrashSize:  about.StorageQuota.UsageInDriveTrash,
	}, nil
}

// ShareableLink implements storage.Provider by granting "anyone with the
// link" access and returning the item's view link. Domains that forbid
// public sharing yield "".
func (p *Provider) ShareableLink(ctx context.Context, id string, perm storage.LinkPermission) (string, error) {
	role := "reader"
	if perm == storage.PermissionWrite {
		role = "writer"
	}

	_, err := p.svc.Permissions.Create(driveID(id), &drive.Permission{Type: "anyone", Role: role}).
		SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		if isStatus(err, http.StatusNotFound, http.StatusForbidden, http.StatusBadRequest) {
			p.logger.Debug("no shareable link available",
				slog.String("item_id", id),
				slog.String("error", err.Error()),
			)

			return "", nil
		}

		return "", fmt.Errorf("gdrive: sharing %s: %w", id, err)
	}

	df, err := p.svc.Files.Get(driveID(id)).Fields("webViewLink").SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}

		return "", fmt.Errorf("gdrive: getting link for %s: %w", id, err)
	}

	return df.WebViewLink, nil
}

// AccessToken implements storage.Provider.
func (p *Provider) AccessToken() string {
	return p.token
}

// SetAccessToken implements storage.Provider.
func (p *Provider) SetAccessToken(token string) error {
	if token == "" {
		return storage.InvalidArgumentf("gdrive: access token is required")
	}

	return p.bind(context.Background(), token)
}
