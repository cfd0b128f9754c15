// Package dropbox adapts the Dropbox API to storage.Provider.
//
// Ids are display paths ("/Docs/a.txt"); renames and moves change them.
// Listing pages are list_folder cursors. Dropbox keeps deleted files
// recoverable on its own, so Delete always uses delete_v2 and the
// permanent flag has no effect. Descriptions are not supported and are
// dropped. The SDK takes no context; ctx is checked before each call.
//
// Dropbox stores no content type. Every call, Create included, reports
// the type derived from the file name, so a type passed to Create
// survives only when the name's extension maps to it.
package dropbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/sharing"

	"github.com/tonimelisma/cloudvfs/internal/mimetype"
	"github.com/tonimelisma/cloudvfs/internal/storage"
)

const backendName = "dropbox"

// Page size limits for list_folder and search_v2.
const (
	MaxPageSize       = 2000
	defaultPageSize   = 1000
	maxSearchResults  = 1000
	defaultSearchSize = 100
)

// DefaultChunkSize is the upload session chunk size and the size above
// which uploads use a session.
const DefaultChunkSize = 8 * 1024 * 1024

// Options configures a Provider.
type Options struct {
	HTTPClient *http.Client
	ChunkSize  int64
	Logger     *slog.Logger
}

// Provider implements storage.Provider on the Dropbox API.
type Provider struct {
	newClients clientFactory
	c          clients
	token      string
	chunkSize  int64
	logger     *slog.Logger
}

var _ storage.Provider = (*Provider)(nil)

// New returns a Provider bound to accessToken.
func New(accessToken string, opts Options) (*Provider, error) {
	if accessToken == "" {
		return nil, storage.InvalidArgumentf("dropbox: access token is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return newProvider(accessToken, sdkFactory(opts.HTTPClient, logger), opts.ChunkSize, logger), nil
}

func newProvider(token string, factory clientFactory, chunkSize int64, logger *slog.Logger) *Provider {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Provider{
		newClients: factory,
		c:          factory(token),
		token:      token,
		chunkSize:  chunkSize,
		logger:     logger.With(slog.String("backend", backendName)),
	}
}

// toFile projects SDK metadata into the canonical File.
func toFile(md files.IsMetadata) *storage.File {
	var f *storage.File

	switch m := md.(type) {
	case *files.FileMetadata:
		f = &storage.File{
			ID:           displayPath(&m.Metadata),
			Name:         m.Name,
			Size:         int64(m.Size),
			Type:         storage.TypeFile,
			MimeType:     mimetype.FromName(m.Name),
			CreatedTime:  m.ClientModified,
			ModifiedTime: m.ServerModified,
			ProviderData: map[string]any{"id": m.Id, "rev": m.Rev, "contentHash": m.ContentHash},
		}
	case *files.FolderMetadata:
		f = &storage.File{
			ID:           displayPath(&m.Metadata),
			Name:         m.Name,
			Type:         storage.TypeFolder,
			MimeType:     storage.FolderMimeType,
			ProviderData: map[string]any{"id": m.Id},
		}
	case *files.DeletedMetadata:
		f = &storage.File{
			ID:       displayPath(&m.Metadata),
			Name:     m.Name,
			Type:     storage.TypeFile,
			MimeType: mimetype.FromName(m.Name),
			Trashed:  true,
		}
	default:
		return nil
	}

	f.ParentID = parentOfPath(f.ID)
	storage.BackfillTimes(f)

	return f
}

func displayPath(m *files.Metadata) string {
	if m.PathDisplay != "" {
		return m.PathDisplay
	}

	return m.PathLower
}

func filesFrom(entries []files.IsMetadata) []storage.File {
	out := make([]storage.File, 0, len(entries))

	for _, e := range entries {
		if f := toFile(e); f != nil {
			out = append(out, *f)
		}
	}

	return out
}

// Create implements storage.Provider. Existing files are overwritten.
func (p *Provider) Create(ctx context.Context, meta storage.FileMetadata, content []byte) (*storage.File, error) {
	if err := storage.ValidateMetadata(meta); err != nil {
		return nil, err
	}

	target, err := joinPath(meta.ParentID, meta.Name)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if storage.IsFolderMimeType(meta.MimeType) {
		p.logger.Info("creating folder", slog.String("path", target))

		res, err := p.c.files.CreateFolderV2(files.NewCreateFolderArg(target))
		if err != nil {
			return nil, fmt.Errorf("dropbox: creating folder %s: %w", target, err)
		}

		return toFile(res.Metadata), nil
	}

	data, err := storage.ResolveContent(meta, content)
	if err != nil {
		return nil, err
	}

	p.logger.Info("uploading file",
		slog.String("path", target),
		slog.Int("size", len(data)),
	)

	var md *files.FileMetadata
	if int64(len(data)) <= p.chunkSize {
		arg := files.NewUploadArg(target)
		arg.Mode = overwrite()
		md, err = p.c.files.Upload(arg, bytes.NewReader(data))
	} else {
		md, err = p.uploadSession(ctx, target, data)
	}

	if err != nil {
		return nil, fmt.Errorf("dropbox: uploading %s: %w", target, err)
	}

	return toFile(md), nil
}

func overwrite() *files.WriteMode {
	return &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeOverwrite}}
}

// uploadSession sends data in chunkSize pieces: start, appends, finish.
func (p *Provider) uploadSession(ctx context.Context, target string, data []byte) (*files.FileMetadata, error) {
	total := int64(len(data))
	first := min(p.chunkSize, total)

	start, err := p.c.files.UploadSessionStart(files.NewUploadSessionStartArg(), bytes.NewReader(data[:first]))
	if err != nil {
		return nil, fmt.Errorf("starting upload session: %w", err)
	}

	offset := first
	for total-offset > p.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := offset + p.chunkSize
		cursor := files.NewUploadSessionCursor(start.SessionId, uint64(offset))

		if err := p.c.files.UploadSessionAppendV2(files.NewUploadSessionAppendArg(cursor), bytes.NewReader(data[offset:end])); err != nil {
			return nil, fmt.Errorf("appending at offset %d: %w", offset, err)
		}

		p.logger.Debug("appended upload chunk",
			slog.Int64("offset", offset),
			slog.Int64("total", total),
		)

		offset = end
	}

	commit := files.NewCommitInfo(target)
	commit.Mode = overwrite()
	cursor := files.NewUploadSessionCursor(start.SessionId, uint64(offset))

	return p.c.files.UploadSessionFinish(files.NewUploadSessionFinishArg(cursor, commit), bytes.NewReader(data[offset:]))
}

// GetByID implements storage.Provider. fields is ignored.
func (p *Provider) GetByID(ctx context.Context, id string, _ ...string) (*storage.File, error) {
	target, err := itemPath(id)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	md, err := p.c.files.GetMetadata(files.NewGetMetadataArg(target))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("dropbox: getting %s: %w", target, err)
	}

	return toFile(md), nil
}

// Update implements storage.Provider. Renames and moves are one move_v2;
// the returned File carries the new path as id.
func (p *Provider) Update(ctx context.Context, id string, update storage.FileUpdate) (*storage.File, error) {
	if update.Name == "" && update.ParentID == "" {
		return p.GetByID(ctx, id)
	}

	parent := update.ParentID
	name := update.Name

	if parent == "" || name == "" {
		src, err := itemPath(id)
		if err != nil {
			return nil, err
		}

		if parent == "" {
			parent = parentOfPath(src)
		}

		if name == "" {
			name = pathBase(src)
		}
	}

	return p.relocate(ctx, "move", id, parent, name)
}

// Delete implements storage.Provider. permanent is ignored.
func (p *Provider) Delete(ctx context.Context, id string, _ bool) (bool, error) {
	target, err := itemPath(id)
	if err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.logger.Info("deleting", slog.String("path", target))

	if _, err := p.c.files.DeleteV2(files.NewDeleteArg(target)); err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("dropbox: deleting %s: %w", target, err)
	}

	return true, nil
}

// ListChildren implements storage.Provider. IncludeTrashed lists deleted
// entries with Trashed set.
func (p *Provider) ListChildren(ctx context.Context, parentID string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		res *files.ListFolderResult
		err error
	)

	if opts.PageToken != "" {
		res, err = p.c.files.ListFolderContinue(files.NewListFolderContinueArg(opts.PageToken))
	} else {
		arg := files.NewListFolderArg(normalizeParentPath(parentID))
		arg.Limit = uint32(storage.ClampPageSize(opts.PageSize, defaultPageSize, MaxPageSize))
		arg.IncludeDeleted = opts.IncludeTrashed
		res, err = p.c.files.ListFolder(arg)
	}

	if err != nil {
		return nil, fmt.Errorf("dropbox: listing %q: %w", parentID, err)
	}

	out := &storage.ListFilesResult{Files: filesFrom(res.Entries)}
	if res.HasMore {
		out.NextPageToken = res.Cursor
	}

	return out, nil
}

// Download implements storage.Provider.
func (p *Provider) Download(ctx context.Context, id string, _ storage.DownloadOptions) (*storage.DownloadResult, error) {
	target, err := itemPath(id)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	md, body, err := p.c.files.Download(files.NewDownloadArg(target))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("dropbox: downloading %s: %w", target, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("dropbox: reading %s: %w", target, err)
	}

	return &storage.DownloadResult{
		Data:     data,
		Filename: md.Name,
		MimeType: mimetype.FromName(md.Name),
		Size:     int64(len(data)),
	}, nil
}

// Copy implements storage.Provider.
func (p *Provider) Copy(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	return p.relocate(ctx, "copy", sourceID, targetParentID, newName)
}

// Move implements storage.Provider.
func (p *Provider) Move(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	return p.relocate(ctx, "move", sourceID, targetParentID, newName)
}

// relocate runs copy_v2 or move_v2 from id into parent, keeping the
// source name when name is empty.
func (p *Provider) relocate(ctx context.Context, op, id, parent, name string) (*storage.File, error) {
	from, err := itemPath(id)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = pathBase(from)
	}

	to, err := joinPath(parent, name)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("relocating",
		slog.String("op", op),
		slog.String("from", from),
		slog.String("to", to),
	)

	arg := files.NewRelocationArg(from, to)

	var res *files.RelocationResult
	if op == "copy" {
		res, err = p.c.files.CopyV2(arg)
	} else {
		res, err = p.c.files.MoveV2(arg)
	}

	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("dropbox: %s %s to %s: %w", op, from, to, err)
	}

	return toFile(res.Metadata), nil
}

// DriveInfo implements storage.Provider from the account space usage.
func (p *Provider) DriveInfo(ctx context.Context) (*storage.DriveInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	usage, err := p.c.users.GetSpaceUsage()
	if err != nil {
		p.logger.Warn("space usage unavailable", slog.String("error", err.Error()))

		return nil, nil
	}

	info := &storage.DriveInfo{UsedSpace: int64(usage.Used)}

	if a := usage.Allocation; a != nil {
		switch {
		case a.Individual != nil:
			info.TotalSpace = int64(a.Individual.Allocated)
		case a.Team != nil:
			info.TotalSpace = int64(a.Team.Allocated)
		}
	}

	return info, nil
}

// ShareableLink implements storage.Provider. Dropbox shared links are
// view-only, so write requests yield "".
func (p *Provider) ShareableLink(ctx context.Context, id string, perm storage.LinkPermission) (string, error) {
	if perm != storage.PermissionRead {
		return "", nil
	}

	target, err := itemPath(id)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	link, err := p.c.sharing.CreateSharedLinkWithSettings(sharing.NewCreateSharedLinkWithSettingsArg(target))
	if err == nil {
		return linkURL(link), nil
	}

	switch {
	case isLinkExists(err):
		arg := sharing.NewListSharedLinksArg()
		arg.Path = target
		arg.DirectOnly = true

		res, listErr := p.c.sharing.ListSharedLinks(arg)
		if listErr != nil {
			return "", fmt.Errorf("dropbox: listing links of %s: %w", target, listErr)
		}

		for _, l := range res.Links {
			if u := linkURL(l); u != "" {
				return u, nil
			}
		}

		return "", nil
	case isNotFound(err):
		return "", nil
	default:
		return "", fmt.Errorf("dropbox: creating link for %s: %w", target, err)
	}
}

func linkURL(l sharing.IsSharedLinkMetadata) string {
	switch m := l.(type) {
	case *sharing.FileLinkMetadata:
		return m.Url
	case *sharing.FolderLinkMetadata:
		return m.Url
	case *sharing.SharedLinkMetadata:
		return m.Url
	default:
		return ""
	}
}

// Search implements storage.Provider with search_v2, which matches file
// names and content case-insensitively with Dropbox's own tokenization.
func (p *Provider) Search(ctx context.Context, query string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		res *files.SearchV2Result
		err error
	)

	if opts.PageToken != "" {
		res, err = p.c.files.SearchContinueV2(files.NewSearchV2ContinueArg(opts.PageToken))
	} else {
		arg := files.NewSearchV2Arg(query)
		arg.Options = files.NewSearchOptions()
		arg.Options.MaxResults = uint64(storage.ClampPageSize(opts.PageSize, defaultSearchSize, maxSearchResults))
		res, err = p.c.files.SearchV2(arg)
	}

	if err != nil {
		return nil, fmt.Errorf("dropbox: searching: %w", err)
	}

	entries := make([]files.IsMetadata, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m != nil && m.Metadata != nil && m.Metadata.Metadata != nil {
			entries = append(entries, m.Metadata.Metadata)
		}
	}

	out := &storage.ListFilesResult{Files: filesFrom(entries)}
	if res.HasMore {
		out.NextPageToken = res.Cursor
	}

	return out, nil
}

// AccessToken implements storage.Provider.
func (p *Provider) AccessToken() string {
	return p.token
}

// SetAccessToken implements storage.Provider by rebuilding the SDK
// clients around the new token.
func (p *Provider) SetAccessToken(token string) error {
	if token == "" {
		return storage.InvalidArgumentf("dropbox: access token is required")
	}

	p.c = p.newClients(token)
	p.token = token

	return nil
}
