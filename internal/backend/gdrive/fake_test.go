package gdrive

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/drive/v3"

	"github.com/tonimelisma/cloudvfs/internal/storage"
)

const fakeRootID = "0AROOT"

// fakeDrive is an in-memory Drive v3 API served over httptest.
type fakeDrive struct {
	mu          sync.Mutex
	files       map[string]*drive.File
	content     map[string][]byte
	sessions    map[string]*drive.File
	permissions map[string][]string
	nextID      int
	multipart   int
	resumable   int
	tokens      []string
	srv         *httptest.Server
}

func newFakeDrive(t *testing.T) *fakeDrive {
	t.Helper()

	fd := &fakeDrive{
		files: map[string]*drive.File{
			fakeRootID: {Id: fakeRootID, Name: "My Drive", MimeType: storage.FolderMimeType},
		},
		content:     map[string][]byte{},
		sessions:    map[string]*drive.File{},
		permissions: map[string][]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files/{id}", fd.get)
	mux.HandleFunc("GET /drive/v3/files", fd.list)
	mux.HandleFunc("POST /drive/v3/files", fd.create)
	mux.HandleFunc("PATCH /drive/v3/files/{id}", fd.update)
	mux.HandleFunc("DELETE /drive/v3/files/{id}", fd.remove)
	mux.HandleFunc("POST /drive/v3/files/{id}/copy", fd.copy)
	mux.HandleFunc("GET /drive/v3/files/{id}/export", fd.export)
	mux.HandleFunc("POST /drive/v3/files/{id}/permissions", fd.share)
	mux.HandleFunc("GET /drive/v3/about", fd.about)
	mux.HandleFunc("POST /upload/drive/v3/files", fd.upload)
	mux.HandleFunc("PUT /upload/session/{sid}", fd.finishSession)

	fd.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fd.mu.Lock()
		fd.tokens = append(fd.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		fd.mu.Unlock()

		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fd.srv.Close)

	return fd
}

func apiError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"errors":[{"reason":"fake","message":%q}]}}`, code, msg, msg)
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}

func (fd *fakeDrive) resolve(id string) string {
	if id == "root" {
		return fakeRootID
	}

	return id
}

// put stores df under a fresh id. Callers hold mu.
func (fd *fakeDrive) put(df *drive.File, data []byte) *drive.File {
	fd.nextID++
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC).Format(time.RFC3339)

	df.Id = "F" + strconv.Itoa(fd.nextID)
	df.CreatedTime = now
	df.ModifiedTime = now
	df.WebViewLink = "https://drive.google.com/file/d/" + df.Id + "/view"

	for i, p := range df.Parents {
		df.Parents[i] = fd.resolve(p)
	}

	if len(df.Parents) == 0 {
		df.Parents = []string{fakeRootID}
	}

	if df.MimeType != storage.FolderMimeType && !strings.HasPrefix(df.MimeType, nativePrefix) {
		df.Size = int64(len(data))
		fd.content[df.Id] = data
	}

	fd.files[df.Id] = df

	return df
}

func (fd *fakeDrive) lookup(w http.ResponseWriter, r *http.Request) *drive.File {
	df, ok := fd.files[fd.resolve(r.PathValue("id"))]
	if !ok {
		apiError(w, http.StatusNotFound, "File not found")
		return nil
	}

	return df
}

func (fd *fakeDrive) get(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	df := fd.lookup(w, r)
	if df == nil {
		return
	}

	if r.URL.Query().Get("alt") == "media" {
		if strings.HasPrefix(df.MimeType, nativePrefix) {
			apiError(w, http.StatusForbidden, "Only files with binary content can be downloaded")
			return
		}

		_, _ = w.Write(fd.content[df.Id]) //nolint:errcheck // test server

		return
	}

	reply(w, selectFields(df, r.URL.Query().Get("fields")))
}

// selectFields keeps only the top-level keys named in a flat fields
// selector, the way Drive trims partial responses.
func selectFields(df *drive.File, sel string) any {
	if sel == "" || strings.Contains(sel, "(") {
		return df
	}

	raw, err := json.Marshal(df)
	if err != nil {
		return df
	}

	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return df
	}

	out := make(map[string]any)

	for _, name := range strings.Split(sel, ",") {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}

	return out
}

func (fd *fakeDrive) create(w http.ResponseWriter, r *http.Request) {
	var df drive.File
	if err := json.NewDecoder(r.Body).Decode(&df); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	reply(w, fd.put(&df, nil))
}

func (fd *fakeDrive) update(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	df := fd.lookup(w, r)
	if df == nil {
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	if name, ok := raw["name"].(string); ok {
		df.Name = name
	}

	if desc, ok := raw["description"].(string); ok {
		df.Description = desc
	}

	if trashed, ok := raw["trashed"].(bool); ok {
		df.Trashed = trashed
	}

	q := r.URL.Query()
	if add := q.Get("addParents"); add != "" {
		if _, ok := fd.files[fd.resolve(add)]; !ok {
			apiError(w, http.StatusNotFound, "File not found: "+add)
			return
		}

		var kept []string

		for _, p := range df.Parents {
			if !strings.Contains(","+q.Get("removeParents")+",", ","+p+",") {
				kept = append(kept, p)
			}
		}

		df.Parents = append(kept, fd.resolve(add))
	}

	reply(w, df)
}

func (fd *fakeDrive) remove(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	df := fd.lookup(w, r)
	if df == nil {
		return
	}

	delete(fd.files, df.Id)
	delete(fd.content, df.Id)
	w.WriteHeader(http.StatusNoContent)
}

func (fd *fakeDrive) copy(w http.ResponseWriter, r *http.Request) {
	var req drive.File
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	src := fd.lookup(w, r)
	if src == nil {
		return
	}

	if src.MimeType == storage.FolderMimeType {
		apiError(w, http.StatusForbidden, "This file cannot be copied by the user.")
		return
	}

	name := req.Name
	if name == "" {
		name = "Copy of " + src.Name
	}

	reply(w, fd.put(&drive.File{
		Name:        name,
		MimeType:    src.MimeType,
		Parents:     req.Parents,
		Description: src.Description,
	}, fd.content[src.Id]))
}

func (fd *fakeDrive) export(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	df := fd.lookup(w, r)
	if df == nil {
		return
	}

	if !strings.HasPrefix(df.MimeType, nativePrefix) {
		apiError(w, http.StatusBadRequest, "Export only supports Docs Editors files.")
		return
	}

	fmt.Fprintf(w, "exported %s as %s", df.Name, r.URL.Query().Get("mimeType"))
}

func (fd *fakeDrive) share(w http.ResponseWriter, r *http.Request) {
	var perm drive.Permission
	if err := json.NewDecoder(r.Body).Decode(&perm); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	df := fd.lookup(w, r)
	if df == nil {
		return
	}

	if df.Description == "no-public-sharing" {
		apiError(w, http.StatusForbidden, "Sharing with anyone is disabled by the domain")
		return
	}

	fd.permissions[df.Id] = append(fd.permissions[df.Id], perm.Type+":"+perm.Role)
	reply(w, &drive.Permission{Id: "anyoneWithLink", Type: perm.Type, Role: perm.Role})
}

func (fd *fakeDrive) about(w http.ResponseWriter, _ *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	var used, trash int64

	for _, df := range fd.files {
		used += df.Size

		if df.Trashed {
			trash += df.Size
		}
	}

	reply(w, &drive.About{StorageQuota: &drive.AboutStorageQuota{
		Limit: 15 << 30, Usage: used, UsageInDriveTrash: trash,
	}})
}

// matches evaluates the subset of the Drive query language the adapter
// emits: clauses joined by " and ".
func (fd *fakeDrive) matches(df *drive.File, q string) bool {
	if df.Id == fakeRootID {
		return false
	}

	for _, clause := range strings.Split(q, " and ") {
		clause = strings.TrimSpace(clause)

		switch {
		case clause == "trashed = false":
			if df.Trashed {
				return false
			}
		case strings.HasSuffix(clause, " in parents"):
			parent := fd.resolve(unquote(strings.TrimSuffix(clause, " in parents")))
			if len(df.Parents) == 0 || df.Parents[0] != parent {
				return false
			}
		case strings.HasPrefix(clause, "name contains "):
			needle := unquote(strings.TrimPrefix(clause, "name contains "))
			if !strings.Contains(strings.ToLower(df.Name), strings.ToLower(needle)) {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func unquote(s string) string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "'"), "'")

	return strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(s)
}

func (fd *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	q := r.URL.Query()

	var hits []*drive.File

	for _, df := range fd.files {
		if fd.matches(df, q.Get("q")) {
			hits = append(hits, df)
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		fi, fj := hits[i].MimeType == storage.FolderMimeType, hits[j].MimeType == storage.FolderMimeType
		if fi != fj {
			return fi
		}

		return hits[i].Name < hits[j].Name
	})

	offset, _ := strconv.Atoi(q.Get("pageToken"))
	size, _ := strconv.Atoi(q.Get("pageSize"))

	if size == 0 {
		size = 100
	}

	res := &drive.FileList{Files: []*drive.File{}}
	for i := offset; i < len(hits) && i < offset+size; i++ {
		res.Files = append(res.Files, hits[i])
	}

	if offset+size < len(hits) {
		res.NextPageToken = strconv.Itoa(offset + size)
	}

	reply(w, res)
}

func (fd *fakeDrive) upload(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("uploadType") {
	case "multipart":
		fd.multipartUpload(w, r)
	case "resumable":
		var df drive.File
		if err := json.NewDecoder(r.Body).Decode(&df); err != nil {
			apiError(w, http.StatusBadRequest, err.Error())
			return
		}

		if r.Header.Get("X-Upload-Content-Length") == "" {
			apiError(w, http.StatusBadRequest, "missing upload length")
			return
		}

		fd.mu.Lock()
		fd.resumable++
		sid := "s" + strconv.Itoa(fd.resumable)
		fd.sessions[sid] = &df
		fd.mu.Unlock()

		w.Header().Set("Location", fd.srv.URL+"/upload/session/"+sid)
		w.WriteHeader(http.StatusOK)
	default:
		apiError(w, http.StatusBadRequest, "unsupported uploadType")
	}
}

func (fd *fakeDrive) multipartUpload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	var df drive.File
	if err := json.NewDecoder(metaPart).Decode(&df); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	mediaPart, err := mr.NextPart()
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(mediaPart)
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	fd.multipart++
	reply(w, fd.put(&df, data))
}

func (fd *fakeDrive) finishSession(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	df, ok := fd.sessions[r.PathValue("sid")]
	if !ok {
		apiError(w, http.StatusNotFound, "session expired")
		return
	}

	delete(fd.sessions, r.PathValue("sid"))
	reply(w, fd.put(df, data))
}

// seed inserts a file directly. Callers must not hold mu.
func (fd *fakeDrive) seed(df *drive.File, data []byte) *drive.File {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	return fd.put(df, data)
}
