// Package mimetype resolves a content type from a file name when a back end
// does not report one.
package mimetype

import (
	"mime"
	"path"
	"strings"
)

// Default is returned for names without a known extension.
const Default = "application/octet-stream"

// known covers extensions whose system mime.types entries vary across
// platforms or are missing on minimal images.
var known = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".7z":   "application/x-7z-compressed",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".heic": "image/heic",
	".bmp":  "image/bmp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".sql":  "application/sql",
}

// FromName returns the content type for name's extension. The lookup is
// case-insensitive. Parameters such as charset are stripped.
func FromName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return Default
	}

	if t, ok := known[ext]; ok {
		return t
	}

	if t := mime.TypeByExtension(ext); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}

		return t
	}

	return Default
}

// OrFromName returns mimeType when set, otherwise the type derived from name.
func OrFromName(mimeType, name string) string {
	if mimeType != "" {
		return mimeType
	}

	return FromName(name)
}
