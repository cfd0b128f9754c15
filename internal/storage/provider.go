package storage

import "context"

// Provider is the uniform contract implemented by every back-end adapter.
// An instance is bound to one account's bearer token.
//
// Not-found is never an error: lookups return a nil *File (or nil result)
// with a nil error, and Delete returns false. Capabilities a back end lacks
// fail with an *UnsupportedError. Transport and back-end failures are
// returned wrapped, so errors.Is/As still reach the original cause.
//
// Operations do not impose timeouts of their own; ctx is the only way to
// bound them. Concurrent calls on different ids are safe. SetAccessToken
// must not race with in-flight calls on the same instance.
type Provider interface {
	// Create makes a folder when meta.MimeType is a folder sentinel,
	// otherwise a file. Files require content (or meta.Content).
	Create(ctx context.Context, meta FileMetadata, content []byte) (*File, error)

	// GetByID returns nil, nil when the item does not exist. fields limits
	// the returned attributes on back ends with partial responses.
	GetByID(ctx context.Context, id string, fields ...string) (*File, error)

	// Update renames and/or reparents an item. Returns nil, nil when the
	// item vanished.
	Update(ctx context.Context, id string, update FileUpdate) (*File, error)

	// Delete removes an item. permanent=false requests trash where the back
	// end has one. Returns false when the item did not exist.
	Delete(ctx context.Context, id string, permanent bool) (bool, error)

	// ListChildren lists direct children of parentID.
	ListChildren(ctx context.Context, parentID string, opts ListFilesOptions) (*ListFilesResult, error)

	// Download buffers the full content. Returns nil, nil when not found.
	Download(ctx context.Context, id string, opts DownloadOptions) (*DownloadResult, error)

	// Copy duplicates sourceID into targetParentID, optionally renamed.
	Copy(ctx context.Context, sourceID, targetParentID, newName string) (*File, error)

	// Move relocates sourceID into targetParentID, optionally renamed.
	Move(ctx context.Context, sourceID, targetParentID, newName string) (*File, error)

	// DriveInfo returns nil, nil when the back end cannot answer.
	DriveInfo(ctx context.Context) (*DriveInfo, error)

	// ShareableLink returns "" when the back end has no link for the
	// requested permission or the item is unavailable.
	ShareableLink(ctx context.Context, id string, perm LinkPermission) (string, error)

	// Search matches names (and possibly content) per back-end rules.
	Search(ctx context.Context, query string, opts ListFilesOptions) (*ListFilesResult, error)

	AccessToken() string
	SetAccessToken(token string) error
}
