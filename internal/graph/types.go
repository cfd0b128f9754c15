package graph

import "time"

// Item represents a drive item (file, folder, or package).
// Fields are normalized from the Graph API response; callers never see raw API data.
type Item struct {
	ID           string
	Name         string
	DriveID      string // normalized: lowercase (Graph API casing is inconsistent)
	ParentID     string
	ParentIsRoot bool // parent is the drive root
	Size         int64
	ETag         string
	IsFolder     bool
	IsPackage    bool
	IsRoot       bool
	MimeType     string
	Description  string
	WebURL       string
	QuickXorHash string // base64-encoded
	SHA1Hash     string // hex (Personal accounts only)
	SHA256Hash   string // hex (Business accounts, sometimes)
	CreatedAt    time.Time
	ModifiedAt   time.Time
	DownloadURL  string // pre-authenticated, ephemeral; NEVER log
}

// HasContentHash reports whether the service reported any content hash.
func (i *Item) HasContentHash() bool {
	return i.QuickXorHash != "" || i.SHA1Hash != "" || i.SHA256Hash != ""
}

// ItemPage is one page of a children or search listing.
type ItemPage struct {
	Items []Item
	// NextPath is the nextLink with the base URL stripped, or "" when done.
	NextPath string
}

// Drive is a normalized drive resource with its quota.
type Drive struct {
	ID             string
	Name           string
	DriveType      string
	QuotaTotal     int64
	QuotaUsed      int64
	QuotaDeleted   int64
	QuotaRemaining int64
}

// UploadSession is a resumable upload session. UploadURL is
// pre-authenticated; NEVER log it.
type UploadSession struct {
	UploadURL      string
	ExpirationTime time.Time
}

// LinkType is the sharing link type requested from createLink.
type LinkType string

// Sharing link types.
const (
	LinkView LinkType = "view"
	LinkEdit LinkType = "edit"
)
