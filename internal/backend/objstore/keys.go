package objstore

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudvfs/internal/storage"
)

// delimiter separates key segments. A key ending in it is a folder marker.
const delimiter = "/"

// isFolderKey reports whether key names a folder.
func isFolderKey(key string) bool {
	return strings.HasSuffix(key, delimiter)
}

// folderPrefix normalizes a parent id into a key prefix. "", "root" and
// "/" are the bucket root (empty prefix); anything else ends in delimiter.
func folderPrefix(parentID string) string {
	if parentID == storage.RootID {
		return ""
	}

	p := strings.TrimLeft(parentID, delimiter)
	if p == "" {
		return ""
	}

	if !isFolderKey(p) {
		p += delimiter
	}

	return p
}

// joinKey builds the key for name under parentID. Names are stored NFC
// so the same visible name maps to one key.
func joinKey(parentID, name string, folder bool) (string, error) {
	name = norm.NFC.String(name)
	if name == "" || strings.Contains(name, delimiter) {
		return "", storage.InvalidArgumentf("objstore: invalid name %q", name)
	}

	key := folderPrefix(parentID) + name
	if folder {
		key += delimiter
	}

	return key, nil
}

// parentID returns the id of the folder holding key, or storage.RootID.
func parentID(key string) string {
	trimmed := strings.TrimSuffix(key, delimiter)

	i := strings.LastIndex(trimmed, delimiter)
	if i < 0 {
		return storage.RootID
	}

	return trimmed[:i+1]
}

// baseName returns the last segment of key without the folder marker.
func baseName(key string) string {
	trimmed := strings.TrimSuffix(key, delimiter)

	return trimmed[strings.LastIndex(trimmed, delimiter)+1:]
}
