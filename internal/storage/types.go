// Package storage defines the uniform file/folder contract shared by every
// cloud back end. Callers depend only on Provider and the types in this
// package; back-end specifics stay inside the adapters.
package storage

import (
	"slices"
	"time"
)

// RootID is the parent id reported for items at the top level of a drive.
// Every adapter also accepts it as a parent id for list/create/copy/move.
const RootID = "root"

// FolderMimeType is the MIME type adapters report for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// ShortcutMimeType identifies office-suite drive shortcuts.
const ShortcutMimeType = "application/vnd.google-apps.shortcut"

// folderMimeTypes are the MIME types that make Create build a folder.
var folderMimeTypes = []string{
	FolderMimeType,
	"inode/directory",
	"application/x-directory",
	"httpd/unix-directory",
}

// IsFolderMimeType reports whether mimeType is one of the recognized folder
// sentinel types.
func IsFolderMimeType(mimeType string) bool {
	return slices.Contains(folderMimeTypes, mimeType)
}

// FileType classifies a File.
type FileType string

// File types.
const (
	TypeFile     FileType = "file"
	TypeFolder   FileType = "folder"
	TypeShortcut FileType = "shortcut"
)

// FileMetadata is the write-side description of a new file or folder.
type FileMetadata struct {
	Name        string
	MimeType    string
	ParentID    string // empty or RootID for the top level
	Description string
	Size        int64
	Content     []byte
}

// File is the canonical read-side projection of a back-end item. It is
// computed fresh on every call and never cached.
type File struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	MimeType       string         `json:"mimeType"`
	Size           int64          `json:"size"`
	ParentID       string         `json:"parentId"`
	CreatedTime    time.Time      `json:"createdTime"`
	ModifiedTime   time.Time      `json:"modifiedTime"`
	Type           FileType       `json:"type"`
	WebViewLink    string         `json:"webViewLink,omitempty"`
	WebContentLink string         `json:"webContentLink,omitempty"`
	Description    string         `json:"description,omitempty"`
	Trashed        bool           `json:"trashed,omitempty"`
	ProviderData   map[string]any `json:"providerData,omitempty"`
}

// IsFolder reports whether f is a folder.
func (f *File) IsFolder() bool {
	return f.Type == TypeFolder
}

// FileUpdate carries a partial update. Empty strings leave the field
// unchanged; a nil Description leaves the description unchanged.
type FileUpdate struct {
	Name        string
	ParentID    string
	Description *string
}

// IsEmpty reports whether the update changes nothing.
func (u FileUpdate) IsEmpty() bool {
	return u.Name == "" && u.ParentID == "" && u.Description == nil
}

// ListFilesOptions controls listing and search pagination.
type ListFilesOptions struct {
	// PageSize is clamped to each back end's maximum. Zero uses the
	// adapter default.
	PageSize int
	// PageToken is the opaque NextPageToken of a previous result.
	PageToken string
	// OrderBy is passed to back ends that support server-side ordering.
	OrderBy        string
	IncludeTrashed bool
}

// ListFilesResult is one page of files.
type ListFilesResult struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// DownloadOptions tunes Download.
type DownloadOptions struct {
	// ExportMimeType requests a format conversion for native office
	// documents. Back ends without native documents ignore it.
	ExportMimeType string
}

// DownloadResult is a fully buffered download.
type DownloadResult struct {
	Data     []byte
	Filename string
	MimeType string
	Size     int64
}

// DriveInfo is a best-effort storage summary. Unknown fields stay zero.
type DriveInfo struct {
	TotalSpace int64 `json:"totalSpace"`
	UsedSpace  int64 `json:"usedSpace"`
	TrashSize  int64 `json:"trashSize"`
	TrashItems int64 `json:"trashItems"`
	FileCount  int64 `json:"fileCount"`
}

// LinkPermission is the access level requested for a shareable link.
type LinkPermission string

// Link permissions.
const (
	PermissionRead  LinkPermission = "read"
	PermissionWrite LinkPermission = "write"
)

// BackfillTimes replaces zero timestamps with the current time so callers
// always see populated created/modified times.
func BackfillTimes(f *File) {
	now := time.Now().UTC()

	if f.CreatedTime.IsZero() {
		f.CreatedTime = now
	}

	if f.ModifiedTime.IsZero() {
		f.ModifiedTime = f.CreatedTime
	}
}
