package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tonimelisma/cloudvfs/internal/storage"
)

// memProvider is an in-memory storage.Provider for command tests.
type memProvider struct {
	mu     sync.Mutex
	nextID int
	items  map[string]*memItem
	token  string
	info   *storage.DriveInfo
	links  map[string]string
}

type memItem struct {
	file storage.File
	data []byte
}

func newMemProvider() *memProvider {
	return &memProvider{
		nextID: 1,
		items:  make(map[string]*memItem),
		token:  "tok",
		links:  make(map[string]string),
	}
}

func (m *memProvider) add(name, parentID string, data []byte, folder bool) *storage.File {
	id := fmt.Sprintf("id-%d", m.nextID)
	m.nextID++

	if parentID == "" {
		parentID = storage.RootID
	}

	f := storage.File{
		ID:           id,
		Name:         name,
		ParentID:     parentID,
		Size:         int64(len(data)),
		Type:         storage.TypeFile,
		MimeType:     "application/octet-stream",
		CreatedTime:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		ModifiedTime: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if folder {
		f.Type = storage.TypeFolder
		f.MimeType = storage.FolderMimeType
		f.Size = 0
	}

	m.items[id] = &memItem{file: f, data: data}

	return &f
}

func (m *memProvider) Create(_ context.Context, meta storage.FileMetadata, content []byte) (*storage.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := storage.ValidateMetadata(meta); err != nil {
		return nil, err
	}

	if storage.IsFolderMimeType(meta.MimeType) {
		f := m.add(meta.Name, meta.ParentID, nil, true)
		m.items[f.ID].file.Description = meta.Description
		out := m.items[f.ID].file

		return &out, nil
	}

	data, err := storage.ResolveContent(meta, content)
	if err != nil {
		return nil, err
	}

	f := m.add(meta.Name, meta.ParentID, data, false)
	m.items[f.ID].file.MimeType = meta.MimeType
	m.items[f.ID].file.Description = meta.Description
	out := m.items[f.ID].file

	return &out, nil
}

func (m *memProvider) GetByID(_ context.Context, id string, _ ...string) (*storage.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}

	f := it.file

	return &f, nil
}

func (m *memProvider) Update(_ context.Context, id string, u storage.FileUpdate) (*storage.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}

	if u.Name != "" {
		it.file.Name = u.Name
	}

	if u.ParentID != "" {
		it.file.ParentID = u.ParentID
	}

	if u.Description != nil {
		it.file.Description = *u.Description
	}

	f := it.file

	return &f, nil
}

func (m *memProvider) Delete(_ context.Context, id string, permanent bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.file.Trashed {
		return false, nil
	}

	if permanent {
		delete(m.items, id)
	} else {
		it.file.Trashed = true
	}

	return true, nil
}

func (m *memProvider) sorted(match func(*storage.File) bool) []storage.File {
	var out []storage.File

	for _, it := range m.items {
		if match(&it.file) {
			out = append(out, it.file)
		}
	}

	slices.SortFunc(out, func(a, b storage.File) int { return strings.Compare(a.Name, b.Name) })

	return out
}

func (m *memProvider) page(all []storage.File, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	offset, err := storage.DecodeOffsetToken(opts.PageToken)
	if err != nil {
		return nil, err
	}

	limit := storage.ClampPageSize(opts.PageSize, 100, 100)
	offset = min(offset, len(all))
	end := min(offset+limit, len(all))

	return &storage.ListFilesResult{
		Files:         all[offset:end],
		NextPageToken: storage.NextOffsetToken(offset, limit, int64(len(all))),
	}, nil
}

func (m *memProvider) ListChildren(_ context.Context, parentID string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.page(m.sorted(func(f *storage.File) bool {
		return f.ParentID == parentID && (opts.IncludeTrashed || !f.Trashed)
	}), opts)
}

func (m *memProvider) Download(_ context.Context, id string, _ storage.DownloadOptions) (*storage.DownloadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || it.file.Trashed {
		return nil, nil
	}

	if it.file.IsFolder() {
		return nil, storage.InvalidArgumentf("%s is a folder", id)
	}

	return &storage.DownloadResult{
		Data:     it.data,
		Filename: it.file.Name,
		MimeType: it.file.MimeType,
		Size:     int64(len(it.data)),
	}, nil
}

func (m *memProvider) Copy(_ context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[sourceID]
	if !ok {
		return nil, nil
	}

	name := it.file.Name
	if newName != "" {
		name = newName
	}

	return m.add(name, targetParentID, it.data, it.file.IsFolder()), nil
}

func (m *memProvider) Move(ctx context.Context, sourceID, targetParentID, newName string) (*storage.File, error) {
	return m.Update(ctx, sourceID, storage.FileUpdate{Name: newName, ParentID: targetParentID})
}

func (m *memProvider) DriveInfo(context.Context) (*storage.DriveInfo, error) {
	return m.info, nil
}

func (m *memProvider) ShareableLink(_ context.Context, id string, perm storage.LinkPermission) (string, error) {
	return m.links[id+":"+string(perm)], nil
}

func (m *memProvider) Search(_ context.Context, query string, opts storage.ListFilesOptions) (*storage.ListFilesResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := strings.ToLower(query)

	return m.page(m.sorted(func(f *storage.File) bool {
		return strings.Contains(strings.ToLower(f.Name), q) && (opts.IncludeTrashed || !f.Trashed)
	}), opts)
}

func (m *memProvider) AccessToken() string { return m.token }

func (m *memProvider) SetAccessToken(token string) error {
	m.token = token
	return nil
}
