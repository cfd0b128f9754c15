package dropbox

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudvfs/internal/storage"
)

// normalizeParentPath maps a parent id to a Dropbox folder path. "",
// "/" and "root" are the root, which the API spells "". Other paths get
// one leading slash and no trailing slash. The function is idempotent.
func normalizeParentPath(p string) string {
	if p == storage.RootID {
		return ""
	}

	p = strings.Trim(norm.NFC.String(p), "/")
	if p == "" {
		return ""
	}

	return "/" + p
}

// joinPath returns the path of name inside parent.
func joinPath(parent, name string) (string, error) {
	name = norm.NFC.String(name)
	if name == "" || strings.Contains(name, "/") {
		return "", storage.InvalidArgumentf("dropbox: invalid name %q", name)
	}

	return normalizeParentPath(parent) + "/" + name, nil
}

// itemPath normalizes an item id. The root itself has no item path.
func itemPath(id string) (string, error) {
	p := normalizeParentPath(id)
	if p == "" {
		return "", storage.InvalidArgumentf("dropbox: the root folder is not an item")
	}

	return p, nil
}

// parentOfPath returns the parent id of an item path.
func parentOfPath(p string) string {
	dir := path.Dir(p)
	if dir == "/" || dir == "." {
		return storage.RootID
	}

	return dir
}

// pathBase returns the last element of an item path.
func pathBase(p string) string {
	return path.Base(p)
}
