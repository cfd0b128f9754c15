// Package objstore adapts an S3-compatible bucket to storage.Provider.
//
// Ids are object keys. Folders are zero-byte marker objects whose key ends
// in "/"; a prefix that holds objects but has no marker still resolves as
// a folder. Listing pages use the S3 continuation token. The bucket has no
// trash, so only permanent deletes are accepted, and the signing
// credential is fixed at construction, so tokens cannot be rotated.
// Search is a case-insensitive substring match on base names that scans
// the bucket.
//
// Listings report the type derived from each object's name and fall back
// to the stored Content-Type only when the extension does not resolve, so
// a file stored with a type that disagrees with its extension lists with
// the extension's type while GetByID reports the stored one.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudvfs/internal/mimetype"
	"github.com/tonimelisma/cloudvfs/internal/storage"
)

const backendName = "objstore"

// Listing and batching limits.
const (
	MaxPageSize     = 1000
	deleteBatchSize = 1000
	copyConcurrency = 8
)

// DefaultRegion is used when Options.Region is empty.
const DefaultRegion = "us-east-1"

// linkExpiry is the lifetime of presigned read links.
const linkExpiry = 7 * 24 * time.Hour

// folderContentType is stored on folder marker objects.
const folderContentType = "application/x-directory"

// descriptionMetaKey holds the query-escaped description in user metadata.
const descriptionMetaKey = "description"

// Options configures a Provider.
type Options struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint     string
	UsePathStyle bool
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Provider implements storage.Provider on one bucket.
type Provider struct {
	api     API
	presign Presigner
	bucket  string
	token   string
	logger  *slog.Logger
}

var _ storage.Provider = (*Provider)(nil)

// New returns a Provider for opts.Bucket signed with the credentials in
// accessToken ("ACCESS_KEY_ID:SECRET_ACCESS_KEY[:SESSION_TOKEN]").
func New(accessToken string, opts Options) (*Provider, error) {
	if opts.Bucket == "" {
		return nil, storage.InvalidArgumentf("objstore: bucket is required")
	}

	client, err := newS3Client(accessToken, opts)
	if err != nil {
		return nil, err
	}

	return newProvider(client, s3.NewPresignClient(client), accessToken, opts), nil
}

func newProvider(api API, presign Presigner, token string, opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		api:     api,
		presign: presign,
		bucket:  opts.Bucket,
		token:   token,
		logger:  logger.With(slog.String("backend", backendName), slog.String("bucket", opts.Bucket)),
	}
}

// objectFile projects an object into the canonical File.
func (p *Provider) objectFile(key string, size int64, modified *time.Time, contentType, etag string, meta map[string]string) *storage.File {
	f := &storage.File{
		ID:       key,
		Name:     baseName(key),
		ParentID: parentID(key),
		Type:     storage.TypeFile,
		Size:     size,
		ProviderData: map[string]any{
			"bucket": p.bucket,
			"key":    key,
		},
	}

	if etag != "" {
		f.ProviderData["eTag"] = strings.Trim(etag, `"`)
	}

	if modified != nil {
		f.CreatedTime = modified.UTC()
		f.ModifiedTime = modified.UTC()
	}

	if desc, ok := meta[descriptionMetaKey]; ok {
		if decoded, err := url.QueryUnescape(desc); err == nil {
			f.Description = decoded
		}
	}

	if isFolderKey(key) {
		f.Type = storage.TypeFolder
		f.Size = 0
		f.MimeType = storage.FolderMimeType
	} else {
		f.MimeType = mimetype.OrFromName(contentType, f.Name)
	}

	storage.BackfillTimes(f)

	return f
}

// head fetches key's metadata. Returns storage.ErrNotFound when absent.
func (p *Provider) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := p.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("objstore: head %s: %w", key, err)
	}

	return out, nil
}

// stat resolves key to a File. Folder keys without a marker object are
// reported when any object lives under the prefix.
func (p *Provider) stat(ctx context.Context, key string) (*storage.File, error) {
	out, err := p.head(ctx, key)
	if err == nil {
		return p.objectFile(key, aws.ToInt64(out.ContentLength), out.LastModified,
			aws.ToString(out.ContentType), aws.ToString(out.ETag), out.Metadata), nil
	}

	if !errors.Is(err, storage.ErrNotFound) || !isFolderKey(key) {
		return nil, err
	}

	list, err := p.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: probing prefix %s: %w", key, err)
	}

	if len(list.Contents) == 0 {
		return nil, storage.ErrNotFound
	}

	return p.objectFile(key, 0, nil, "", "", nil), nil
}

// resolve looks id up as given and, for a key without the folder marker,
// as a folder. Returns storage.ErrNotFound when neither exists.
func (p *Provider) resolve(ctx context.Context, id string) (*storage.File, error) {
	key := strings.TrimLeft(id, delimiter)
	if key == "" || key == storage.RootID {
		return nil, storage.InvalidArgumentf("objstore: the bucket root is not an object")
	}

	f, err := p.stat(ctx, key)
	if err == nil || !errors.Is(err, storage.ErrNotFound) || isFolderKey(key) {
		return f, err
	}

	return p.stat(ctx, key+delimiter)
}

// Create implements storage.Provider.
func (p *Provider) Create(ctx context.Context, meta storage.FileMetadata, content []byte) (*storage.File, error) {
	if err := storage.ValidateMetadata(meta); err != nil {
		return nil, err
	}

	folder := storage.IsFolderMimeType(meta.MimeType)

	key, err := joinKey(meta.ParentID, meta.Name, folder)
	if err != nil {
		return nil, err
	}

	contentType := folderContentType

	var data []byte

	if !folder {
		data, err = storage.ResolveContent(meta, content)
		if err != nil {
			return nil, err
		}

		contentType = mimetype.OrFromName(meta.MimeType, meta.Name)
	}

	p.logger.Info("creating object",
		slog.String("key", key),
		slog.Bool("folder", folder),
		slog.Int("size", len(data)),
	)

	in := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}

	var userMeta map[string]string
	if meta.Description != "" {
		userMeta = map[string]string{descriptionMetaKey: url.QueryEscape(meta.Description)}
		in.Metadata = userMeta
	}

	out, err := p.api.PutObject(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("objstore: putting %s: %w", key, err)
	}

	now := time.Now().UTC()

	return p.objectFile(key, int64(len(data)), &now, contentType, aws.ToString(out.ETag), userMeta), nil
}

// GetByID implements storage.Provider. fields is ignored.
func (p *Provider) GetByID(ctx context.Context, id string, _ ...string) (*storage.File, error) {
	f, err := p.resolve(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}

	return f, err
}

// Update implements storage.Provider. Renames and moves rewrite the key,
// so the returned File carries a new id.
func (p *Provider) Update(ctx context.Context, id string, update storage.FileUpdate) (*storage.File, error) {
	cur, err := p.GetByID(ctx, id)
	if err != nil || cur == nil {
		return nil, err
	}

	if update.Name != "" || update.ParentID != "" {
		parent := update.ParentID
		if parent == "" {
			parent = cur.ParentID
		}

		name := update.Name
		if name == "" {
			name = cur.Name
		}

		dst, err := joinKey(parent, name, cur.IsFolder())
		if err != nil {
			return nil, err
		}

		if dst != cur.ID {
			cur, err = p.Move(ctx, cur.ID, parent, update.Name)
			if err != nil || cur == nil {
				return nil, err
			}
		}
	}

	if update.Description != nil {
		return p.setDescription(ctx, cur.ID, *update.Description)
	}

	return cur, nil
}

// setDescription rewrites key's user metadata with an in-place copy.
func (p *Provider) setDescription(ctx context.Context, key, description string) (*storage.File, error) {
	head, err := p.head(ctx, key)
	if errors.Is(err, storage.ErrNotFound) && isFolderKey(key) {
		// Implicit folder: materialize the marker to hold the metadata.
		_, err = p.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(nil),
			ContentType: aws.String(folderContentType),
			Metadata:    map[string]string{descriptionMetaKey: url.QueryEscape(description)},
		})
		if err != nil {
			return nil, fmt.Errorf("objstore: creating marker %s: %w", key, err)
		}

		return p.GetByID(ctx, key)
	}

	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	meta := cloneMeta(head.Metadata)
	meta[descriptionMetaKey] = url.QueryEscape(description)

	_, err = p.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(p.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(p.copySource(key)),
		ContentType:       head.ContentType,
		Metadata:          meta,
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: updating metadata of %s: %w", key, err)
	}

	return p.GetByID(ctx, key)
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}

	return out
}

// copySource is the URL-encoded "bucket/key" CopyObject expects.
func (p *Provider) copySource(key string) string {
	segments := strings.Split(key, delimiter)
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return url.PathEscape(p.bucket) + "/" + strings.Join(segments, "/")
}

// Delete implements storage.Provider. Buckets have no trash: permanent
// must be true. Deleting a folder removes every object under its prefix.
func (p *Provider) Delete(ctx context.Context, id string, permanent bool) (bool, error) {
	if !permanent {
		return false, storage.Unsupported(backendName, "soft delete")
	}

	f, err := p.resolve(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	p.logger.Info("deleting object",
		slog.String("key", f.ID),
		slog.Bool("folder", f.IsFolder()),
	)

	if !f.IsFolder() {
		_, err = p.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(f.ID),
		})
		if err != nil {
			return false, fmt.Errorf("objstore: deleting %s: %w", f.ID, err)
		}

		return true, nil
	}

	if err := p.deletePrefix(ctx, f.ID); err != nil {
		return false, err
	}

	return true, nil
}

// deletePrefix removes every object whose key starts with prefix, in
// concurrent batches.
func (p *Provider) deletePrefix(ctx context.Context, prefix string) error {
	keys, err := p.keysUnder(ctx, prefix)
	if err != nil {
		return err
	}

	// The marker sorts first under its prefix; delete it last so a partial
	// failure leaves the folder visible.
	keys = slices.DeleteFunc(keys, func(k string) bool { return k == prefix })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(copyConcurrency)

	for batch := range slices.Chunk(keys, deleteBatchSize) {
		g.Go(func() error {
			return p.deleteBatch(gctx, batch)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	_, err = p.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(prefix),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("objstore: deleting marker %s: %w", prefix, err)
	}

	return nil
}

func (p *Provider) deleteBatch(ctx context.Context, keys []string) error {
	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
	}

	out, err := p.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(p.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("objstore: deleting %d objects: %w", len(keys), err)
	}

	if len(out.Errors) > 0 {
		first := out.Errors[0]

		return fmt.Errorf("objstore: deleting %s: %s: %s (%d failed)",
			aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message), len(out.Errors))
	}

	return nil
}

// keysUnder lists every key starting with prefix.
func (p *Provider) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(p.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("objstore: listing %s: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// ListChildren implements storage.Provider. Child folders come from
// common prefixes, so each appears once whether or not it has a marker.
func (p *Provider) ListChildren(ctx context.Context, parentID string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	prefix := folderPrefix(parentID)

	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
		MaxKeys:   aws.Int32(int32(storage.ClampPageSize(opts.PageSize, MaxPageSize, MaxPageSize))),
	}

	if opts.PageToken != "" {
		in.ContinuationToken = aws.String(opts.PageToken)
	}

	out, err := p.api.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("objstore: listing %q: %w", prefix, err)
	}

	files := make([]storage.File, 0, len(out.Contents)+len(out.CommonPrefixes))

	for _, cp := range out.CommonPrefixes {
		files = append(files, *p.objectFile(aws.ToString(cp.Prefix), 0, nil, "", "", nil))
	}

	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == prefix {
			continue // the parent's own marker
		}

		files = append(files, *p.objectFile(key, aws.ToInt64(obj.Size), obj.LastModified, "", aws.ToString(obj.ETag), nil))
	}

	slices.SortFunc(files, func(a, b storage.File) int { return strings.Compare(a.ID, b.ID) })

	if err := p.fillContentTypes(ctx, files); err != nil {
		return nil, err
	}

	res := &storage.ListFilesResult{Files: files}
	if aws.ToBool(out.IsTruncated) {
		res.NextPageToken = aws.ToString(out.NextContinuationToken)
	}

	p.logger.Debug("listed prefix",
		slog.String("prefix", prefix),
		slog.Int("count", len(files)),
		slog.Bool("more", res.NextPageToken != ""),
	)

	return res, nil
}

// fillContentTypes replaces the name-derived type of listed files whose
// extension does not resolve with the stored Content-Type.
func (p *Provider) fillContentTypes(ctx context.Context, files []storage.File) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(copyConcurrency)

	for i := range files {
		f := &files[i]
		if f.IsFolder() || f.MimeType != mimetype.Default {
			continue
		}

		g.Go(func() error {
			out, err := p.head(gctx, f.ID)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}

			if err != nil {
				return err
			}

			if ct := aws.ToString(out.ContentType); ct != "" {
				f.MimeType = ct
			}

			return nil
		})
	}

	return g.Wait()
}

// Download implements storage.Provider.
func (p *Provider) Download(ctx context.Context, id string, _ storage.DownloadOptions) (*storage.DownloadResult, error) {
	key := strings.TrimLeft(id, delimiter)
	if isFolderKey(key) {
		return nil, storage.InvalidArgumentf("objstore: %s is a folder", id)
	}

	out, err := p.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("objstore: getting %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objstore: reading %s: %w", key, err)
	}

	name := baseName(key)

	return &storage.DownloadResult{
		Data:     data,
		Filename: name,
		MimeType: mimetype.OrFromName(aws.ToString(out.ContentType), name),
		Size:     int64(len(data)),
	}, nil
}

// Copy implements storage.Provider. Folders are copied object by object.
func (p *Provider) Copy(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	src, err := p.resolve(ctx, sourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	name := newName
	if name == "" {
		name = src.Name
	}

	dst, err := joinKey(targetParentID, name, src.IsFolder())
	if err != nil {
		return nil, err
	}

	if dst == src.ID {
		return nil, storage.InvalidArgumentf("objstore: %s cannot be copied onto itself", src.ID)
	}

	p.logger.Info("copying object",
		slog.String("source", src.ID),
		slog.String("target", dst),
	)

	if !src.IsFolder() {
		if err := p.copyObject(ctx, src.ID, dst); err != nil {
			return nil, err
		}

		return p.GetByID(ctx, dst)
	}

	if strings.HasPrefix(dst, src.ID) {
		return nil, storage.InvalidArgumentf("objstore: cannot copy %s into itself", src.ID)
	}

	keys, err := p.keysUnder(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	var copied atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(copyConcurrency)

	for _, k := range keys {
		g.Go(func() error {
			if err := p.copyObject(gctx, k, dst+strings.TrimPrefix(k, src.ID)); err != nil {
				return err
			}

			copied.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Debug("copied folder",
		slog.String("target", dst),
		slog.Int64("objects", copied.Load()),
	)

	return p.GetByID(ctx, dst)
}

func (p *Provider) copyObject(ctx context.Context, from, to string) error {
	_, err := p.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(p.bucket),
		Key:               aws.String(to),
		CopySource:        aws.String(p.copySource(from)),
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	if err != nil {
		return fmt.Errorf("objstore: copying %s to %s: %w", from, to, err)
	}

	return nil
}

// Move implements storage.Provider as copy then delete. The source is only
// deleted after the copy fully succeeds.
func (p *Provider) Move(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	moved, err := p.Copy(ctx, sourceID, targetParentID, newName)
	if err != nil || moved == nil {
		return nil, err
	}

	if _, err := p.Delete(ctx, sourceID, true); err != nil {
		return nil, fmt.Errorf("objstore: copied to %s but removing source: %w", moved.ID, err)
	}

	return moved, nil
}

// DriveInfo implements storage.Provider by summing the bucket. Buckets
// have no quota, so TotalSpace stays zero.
func (p *Provider) DriveInfo(ctx context.Context) (*storage.DriveInfo, error) {
	info := &storage.DriveInfo{}

	paginator := s3.NewListObjectsV2Paginator(p.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isAccessDenied(err) {
				return nil, nil
			}

			return nil, fmt.Errorf("objstore: summing bucket: %w", err)
		}

		for _, obj := range page.Contents {
			if isFolderKey(aws.ToString(obj.Key)) {
				continue
			}

			info.UsedSpace += aws.ToInt64(obj.Size)
			info.FileCount++
		}
	}

	return info, nil
}

// ShareableLink implements storage.Provider. Read links are presigned GET
// URLs valid for seven days; buckets have no write link.
func (p *Provider) ShareableLink(ctx context.Context, id string, perm storage.LinkPermission) (string, error) {
	if perm != storage.PermissionRead {
		return "", nil
	}

	key := strings.TrimLeft(id, delimiter)
	if isFolderKey(key) {
		return "", nil
	}

	if _, err := p.head(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}

		return "", err
	}

	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(linkExpiry))
	if err != nil {
		return "", fmt.Errorf("objstore: presigning %s: %w", key, err)
	}

	return req.URL, nil
}

// Search implements storage.Provider. Each call scans S3 pages until at
// least one match is found or the bucket is exhausted; the token resumes
// the scan.
func (p *Provider) Search(ctx context.Context, query string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	needle := strings.ToLower(norm.NFC.String(query))
	token := opts.PageToken
	res := &storage.ListFilesResult{}

	for {
		in := &s3.ListObjectsV2Input{
			Bucket:  aws.String(p.bucket),
			MaxKeys: aws.Int32(int32(storage.ClampPageSize(opts.PageSize, MaxPageSize, MaxPageSize))),
		}

		if token != "" {
			in.ContinuationToken = aws.String(token)
		}

		out, err := p.api.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("objstore: searching: %w", err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !strings.Contains(strings.ToLower(baseName(key)), needle) {
				continue
			}

			res.Files = append(res.Files, *p.objectFile(key, aws.ToInt64(obj.Size), obj.LastModified, "", aws.ToString(obj.ETag), nil))
		}

		token = ""
		if aws.ToBool(out.IsTruncated) {
			token = aws.ToString(out.NextContinuationToken)
		}

		if len(res.Files) > 0 || token == "" {
			res.NextPageToken = token

			if err := p.fillContentTypes(ctx, res.Files); err != nil {
				return nil, err
			}

			return res, nil
		}
	}
}

// AccessToken implements storage.Provider.
func (p *Provider) AccessToken() string {
	return p.token
}

// SetAccessToken always fails: the client's signing credential is derived
// once at construction.
func (p *Provider) SetAccessToken(string) error {
	return storage.Unsupported(backendName, "access token rotation")
}
