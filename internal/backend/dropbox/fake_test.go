package dropbox

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/sharing"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/users"
)

type fakeNode struct {
	display string
	folder  bool
	data    []byte
	id      string
}

// fakeDropbox is an in-memory FilesClient, SharingClient and UsersClient.
// Paths are case-insensitive like the real service.
type fakeDropbox struct {
	nodes    map[string]*fakeNode // key: lower-case path
	sessions map[string]*bytes.Buffer
	links    map[string]string
	nextID   int
	appends  int
	token    string
}

func newFakeDropbox() *fakeDropbox {
	return &fakeDropbox{
		nodes:    map[string]*fakeNode{},
		sessions: map[string]*bytes.Buffer{},
		links:    map[string]string{},
	}
}

func (d *fakeDropbox) factory(token string) clients {
	d.token = token

	return clients{files: d, sharing: d, users: d}
}

func notFound(prefix string) error {
	return dropbox.APIError{ErrorSummary: prefix + "/not_found/..."}
}

func (d *fakeDropbox) lookup(p string) (*fakeNode, bool) {
	n, ok := d.nodes[strings.ToLower(p)]
	return n, ok
}

func (d *fakeDropbox) put(p string, folder bool, data []byte) *fakeNode {
	d.nextID++
	n := &fakeNode{display: p, folder: folder, data: data, id: "id:" + strconv.Itoa(d.nextID)}
	d.nodes[strings.ToLower(p)] = n

	return n
}

func (d *fakeDropbox) meta(n *fakeNode) files.IsMetadata {
	base := files.Metadata{Name: path.Base(n.display), PathDisplay: n.display, PathLower: strings.ToLower(n.display)}
	if n.folder {
		return &files.FolderMetadata{Metadata: base, Id: n.id}
	}

	return d.fileMeta(n)
}

func (d *fakeDropbox) fileMeta(n *fakeNode) *files.FileMetadata {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	return &files.FileMetadata{
		Metadata:       files.Metadata{Name: path.Base(n.display), PathDisplay: n.display, PathLower: strings.ToLower(n.display)},
		Id:             n.id,
		Size:           uint64(len(n.data)),
		ClientModified: ts,
		ServerModified: ts,
		Rev:            "rev1",
	}
}

func (d *fakeDropbox) GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error) {
	n, ok := d.lookup(arg.Path)
	if !ok {
		return nil, files.GetMetadataAPIError{
			APIError: dropbox.APIError{ErrorSummary: "path/not_found/"},
			EndpointError: &files.GetMetadataError{
				Tagged: dropbox.Tagged{Tag: files.GetMetadataErrorPath},
				Path:   &files.LookupError{Tagged: dropbox.Tagged{Tag: files.LookupErrorNotFound}},
			},
		}
	}

	return d.meta(n), nil
}

func (d *fakeDropbox) children(dir string) []*fakeNode {
	var out []*fakeNode

	for lower, n := range d.nodes {
		parent := path.Dir(lower)
		if parent == "/" {
			parent = ""
		}

		if parent == strings.ToLower(dir) {
			out = append(out, n)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].display < out[j].display })

	return out
}

// listPage serves entries of dir from offset; the cursor is "dir|offset|limit".
func (d *fakeDropbox) listPage(dir string, offset, limit int) *files.ListFolderResult {
	all := d.children(dir)
	end := min(offset+limit, len(all))

	res := &files.ListFolderResult{}
	for _, n := range all[offset:end] {
		res.Entries = append(res.Entries, d.meta(n))
	}

	res.HasMore = end < len(all)
	res.Cursor = fmt.Sprintf("%s|%d|%d", dir, end, limit)

	return res
}

func (d *fakeDropbox) ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error) {
	if arg.Path != "" {
		if n, ok := d.lookup(arg.Path); !ok || !n.folder {
			return nil, notFound("path")
		}
	}

	return d.listPage(arg.Path, 0, int(arg.Limit)), nil
}

func (d *fakeDropbox) ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error) {
	parts := strings.Split(arg.Cursor, "|")
	offset, _ := strconv.Atoi(parts[1])
	limit, _ := strconv.Atoi(parts[2])

	return d.listPage(parts[0], offset, limit), nil
}

func (d *fakeDropbox) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	n, ok := d.lookup(arg.Path)
	if !ok {
		return nil, nil, files.DownloadAPIError{
			APIError: dropbox.APIError{ErrorSummary: "path/not_found/"},
			EndpointError: &files.DownloadError{
				Tagged: dropbox.Tagged{Tag: files.DownloadErrorPath},
				Path:   &files.LookupError{Tagged: dropbox.Tagged{Tag: files.LookupErrorNotFound}},
			},
		}
	}

	return d.fileMeta(n), io.NopCloser(bytes.NewReader(n.data)), nil
}

func (d *fakeDropbox) Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	return d.fileMeta(d.put(arg.Path, false, data)), nil
}

func (d *fakeDropbox) UploadSessionStart(_ *files.UploadSessionStartArg, content io.Reader) (*files.UploadSessionStartResult, error) {
	id := fmt.Sprintf("session-%d", len(d.sessions)+1)
	buf := &bytes.Buffer{}
	_, _ = io.Copy(buf, content)
	d.sessions[id] = buf

	return &files.UploadSessionStartResult{SessionId: id}, nil
}

func (d *fakeDropbox) UploadSessionAppendV2(arg *files.UploadSessionAppendArg, content io.Reader) error {
	buf := d.sessions[arg.Cursor.SessionId]
	if uint64(buf.Len()) != arg.Cursor.Offset {
		return dropbox.APIError{ErrorSummary: "incorrect_offset/"}
	}

	d.appends++
	_, _ = io.Copy(buf, content)

	return nil
}

func (d *fakeDropbox) UploadSessionFinish(arg *files.UploadSessionFinishArg, content io.Reader) (*files.FileMetadata, error) {
	buf := d.sessions[arg.Cursor.SessionId]
	if uint64(buf.Len()) != arg.Cursor.Offset {
		return nil, dropbox.APIError{ErrorSummary: "incorrect_offset/"}
	}

	_, _ = io.Copy(buf, content)
	delete(d.sessions, arg.Cursor.SessionId)

	return d.fileMeta(d.put(arg.Commit.Path, false, buf.Bytes())), nil
}

func (d *fakeDropbox) CreateFolderV2(arg *files.CreateFolderArg) (*files.CreateFolderResult, error) {
	if _, ok := d.lookup(arg.Path); ok {
		return nil, dropbox.APIError{ErrorSummary: "path/conflict/folder/"}
	}

	n := d.put(arg.Path, true, nil)

	return &files.CreateFolderResult{Metadata: d.meta(n).(*files.FolderMetadata)}, nil
}

// subtree returns the lower-case keys of p and everything below it.
func (d *fakeDropbox) subtree(p string) []string {
	lower := strings.ToLower(p)

	var keys []string

	for k := range d.nodes {
		if k == lower || strings.HasPrefix(k, lower+"/") {
			keys = append(keys, k)
		}
	}

	return keys
}

func (d *fakeDropbox) relocate(arg *files.RelocationArg, move bool) (*files.RelocationResult, error) {
	src, ok := d.lookup(arg.FromPath)
	if !ok {
		return nil, notFound("from_lookup")
	}

	from := src.display

	for _, k := range d.subtree(from) {
		n := d.nodes[k]
		display := arg.ToPath + n.display[len(from):]

		if move {
			delete(d.nodes, k)
			n.display = display
			d.nodes[strings.ToLower(display)] = n

			continue
		}

		d.put(display, n.folder, bytes.Clone(n.data))
	}

	moved, _ := d.lookup(arg.ToPath)

	return &files.RelocationResult{Metadata: d.meta(moved)}, nil
}

func (d *fakeDropbox) CopyV2(arg *files.RelocationArg) (*files.RelocationResult, error) {
	return d.relocate(arg, false)
}

func (d *fakeDropbox) MoveV2(arg *files.RelocationArg) (*files.RelocationResult, error) {
	return d.relocate(arg, true)
}

func (d *fakeDropbox) DeleteV2(arg *files.DeleteArg) (*files.DeleteResult, error) {
	n, ok := d.lookup(arg.Path)
	if !ok {
		return nil, notFound("path_lookup")
	}

	md := d.meta(n)

	for _, k := range d.subtree(n.display) {
		delete(d.nodes, k)
	}

	return &files.DeleteResult{Metadata: md}, nil
}

func (d *fakeDropbox) SearchV2(arg *files.SearchV2Arg) (*files.SearchV2Result, error) {
	q := strings.ToLower(arg.Query)
	res := &files.SearchV2Result{}

	keys := make([]string, 0, len(d.nodes))
	for k := range d.nodes {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		if strings.Contains(path.Base(k), q) {
			res.Matches = append(res.Matches, &files.SearchMatchV2{
				Metadata: &files.MetadataV2{Tagged: dropbox.Tagged{Tag: "metadata"}, Metadata: d.meta(d.nodes[k])},
			})
		}
	}

	return res, nil
}

func (d *fakeDropbox) SearchContinueV2(*files.SearchV2ContinueArg) (*files.SearchV2Result, error) {
	return &files.SearchV2Result{}, nil
}

func (d *fakeDropbox) CreateSharedLinkWithSettings(arg *sharing.CreateSharedLinkWithSettingsArg) (sharing.IsSharedLinkMetadata, error) {
	if _, ok := d.lookup(arg.Path); !ok {
		return nil, notFound("path")
	}

	if _, ok := d.links[arg.Path]; ok {
		return nil, dropbox.APIError{ErrorSummary: "shared_link_already_exists/metadata/.."}
	}

	d.links[arg.Path] = "https://db.tt/s/" + path.Base(arg.Path)

	return &sharing.FileLinkMetadata{SharedLinkMetadata: sharing.SharedLinkMetadata{Url: d.links[arg.Path]}}, nil
}

func (d *fakeDropbox) ListSharedLinks(arg *sharing.ListSharedLinksArg) (*sharing.ListSharedLinksResult, error) {
	res := &sharing.ListSharedLinksResult{}
	if u, ok := d.links[arg.Path]; ok {
		res.Links = append(res.Links, &sharing.FileLinkMetadata{SharedLinkMetadata: sharing.SharedLinkMetadata{Url: u}})
	}

	return res, nil
}

func (d *fakeDropbox) GetSpaceUsage() (*users.SpaceUsage, error) {
	return &users.SpaceUsage{
		Used: 300,
		Allocation: &users.SpaceAllocation{
			Tagged:     dropbox.Tagged{Tag: users.SpaceAllocationIndividual},
			Individual: &users.IndividualSpaceAllocation{Allocated: 2000},
		},
	}, nil
}
