package box

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeNode struct {
	item
	content []byte
}

// fakeBox is an in-memory Box API served over httptest.
type fakeBox struct {
	mu       sync.Mutex
	nodes    map[string]*fakeNode
	nextID   int
	tokens   []string
	requests []string
	failNext map[string]int // pattern -> status
	srv      *httptest.Server
}

func newFakeBox(t *testing.T) *fakeBox {
	t.Helper()

	fb := &fakeBox{
		nodes:    map[string]*fakeNode{},
		nextID:   100,
		failNext: map[string]int{},
	}
	fb.nodes["0"] = &fakeNode{item: item{Type: "folder", ID: "0", Name: "All Files", ItemStatus: "active"}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/{id}", fb.getItem("file"))
	mux.HandleFunc("GET /folders/{id}", fb.getItem("folder"))
	mux.HandleFunc("PUT /files/{id}", fb.putItem("file"))
	mux.HandleFunc("PUT /folders/{id}", fb.putItem("folder"))
	mux.HandleFunc("DELETE /files/{id}", fb.deleteItem("file"))
	mux.HandleFunc("DELETE /folders/{id}", fb.deleteItem("folder"))
	mux.HandleFunc("DELETE /files/{id}/trash", fb.purge("file"))
	mux.HandleFunc("DELETE /folders/{id}/trash", fb.purge("folder"))
	mux.HandleFunc("GET /folders/{id}/items", fb.listItems)
	mux.HandleFunc("GET /folders/trash/items", fb.trashItems)
	mux.HandleFunc("POST /folders", fb.createFolder)
	mux.HandleFunc("POST /files/{id}/copy", fb.copyItem("file"))
	mux.HandleFunc("POST /folders/{id}/copy", fb.copyItem("folder"))
	mux.HandleFunc("GET /files/{id}/content", fb.content)
	mux.HandleFunc("GET /dl/{id}", fb.blob)
	mux.HandleFunc("GET /users/me", fb.me)
	mux.HandleFunc("GET /search", fb.search)
	mux.HandleFunc("POST /upload/files/content", fb.upload)

	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.tokens = append(fb.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		fb.requests = append(fb.requests, r.Method+" "+r.URL.Path)
		status, fail := fb.failNext[r.Method+" "+r.URL.Path]
		if fail {
			delete(fb.failNext, r.Method+" "+r.URL.Path)
		}
		fb.mu.Unlock()

		if fail {
			writeError(w, status, "injected")
			return
		}

		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(fb.srv.Close)

	return fb
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"type":"error","status":%d,"code":%q,"message":"fake error","request_id":"req-1"}`, status, code)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}

func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}

func (fb *fakeBox) add(typ, parent, name string, content []byte) *fakeNode {
	fb.nextID++
	id := strconv.Itoa(fb.nextID)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	n := &fakeNode{
		item: item{
			Type: typ, ID: id, Name: name, Size: int64(len(content)),
			CreatedAt: now, ModifiedAt: now, ItemStatus: "active",
			Parent: &itemRef{ID: parent}, ETag: "0",
		},
		content: content,
	}
	fb.nodes[id] = n

	return n
}

// find returns an active or trashed node of typ.
func (fb *fakeBox) find(typ, id string) *fakeNode {
	n, ok := fb.nodes[id]
	if !ok || n.Type != typ {
		return nil
	}

	return n
}

func (fb *fakeBox) children(parent string, active bool) []*fakeNode {
	var out []*fakeNode

	for _, n := range fb.nodes {
		if n.Parent != nil && n.Parent.ID == parent && (n.ItemStatus == "active") == active {
			out = append(out, n)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (fb *fakeBox) getItem(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		n := fb.find(typ, r.PathValue("id"))
		if n == nil || n.ItemStatus != "active" {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		writeJSON(w, selectFields(n.item, r.URL.Query().Get("fields")))
	}
}

// selectFields keeps only the keys named in the fields parameter, the way
// Box trims its responses.
func selectFields(it item, fields string) any {
	if fields == "" {
		return it
	}

	raw, err := json.Marshal(it)
	if err != nil {
		return it
	}

	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return it
	}

	out := make(map[string]any)

	for _, name := range strings.Split(fields, ",") {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}

	return out
}

func (fb *fakeBox) putItem(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		n := fb.find(typ, r.PathValue("id"))
		if n == nil || n.ItemStatus != "active" {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		var body struct {
			Name        *string  `json:"name"`
			Description *string  `json:"description"`
			Parent      *itemRef `json:"parent"`
			SharedLink  *struct {
				Access      string          `json:"access"`
				Permissions map[string]bool `json:"permissions"`
			} `json:"shared_link"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request")
			return
		}

		if body.Name != nil {
			n.Name = *body.Name
		}

		if body.Description != nil {
			n.Description = *body.Description
		}

		if body.Parent != nil {
			if fb.find("folder", body.Parent.ID) == nil {
				writeError(w, http.StatusNotFound, "not_found")
				return
			}

			n.Parent = &itemRef{ID: body.Parent.ID}
		}

		if body.SharedLink != nil {
			if body.SharedLink.Permissions["can_edit"] && typ != "file" {
				writeError(w, http.StatusBadRequest, "bad_request")
				return
			}

			mode := "view"
			if body.SharedLink.Permissions["can_edit"] {
				mode = "edit"
			}

			n.SharedLink = &sharedLink{
				URL:         "https://app.box.com/s/" + n.ID + "-" + mode,
				DownloadURL: "https://app.box.com/shared/static/" + n.ID,
			}
		}

		writeJSON(w, n.item)
	}
}

func (fb *fakeBox) setStatus(id, status string) {
	fb.nodes[id].ItemStatus = status

	for _, c := range fb.nodes {
		if c.Parent != nil && c.Parent.ID == id {
			fb.setStatus(c.ID, status)
		}
	}
}

func (fb *fakeBox) deleteItem(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		n := fb.find(typ, r.PathValue("id"))
		if n == nil || n.ItemStatus != "active" {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		if typ == "folder" && r.URL.Query().Get("recursive") != "true" && len(fb.children(n.ID, true)) > 0 {
			writeError(w, http.StatusBadRequest, "folder_not_empty")
			return
		}

		fb.setStatus(n.ID, "trashed")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (fb *fakeBox) purge(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		n := fb.find(typ, r.PathValue("id"))
		if n == nil || n.ItemStatus != "trashed" {
			writeError(w, http.StatusNotFound, "not_trashed")
			return
		}

		fb.setStatus(n.ID, "deleted")
		w.WriteHeader(http.StatusNoContent)
	}
}

func pageOf(nodes []*fakeNode, q map[string][]string) collection {
	offset, _ := strconv.Atoi(first(q["offset"]))
	limit, _ := strconv.Atoi(first(q["limit"]))

	if limit == 0 {
		limit = 100
	}

	col := collection{TotalCount: int64(len(nodes)), Entries: []item{}}
	for i := offset; i < len(nodes) && i < offset+limit; i++ {
		col.Entries = append(col.Entries, nodes[i].item)
	}

	return col
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}

	return v[0]
}

func (fb *fakeBox) listItems(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.find("folder", r.PathValue("id")) == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	nodes := fb.children(r.PathValue("id"), true)
	if r.URL.Query().Get("direction") == "DESC" {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name > nodes[j].Name })
	}

	writeJSON(w, pageOf(nodes, r.URL.Query()))
}

func (fb *fakeBox) trashItems(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var trashed []*fakeNode

	for _, n := range fb.nodes {
		if n.ItemStatus == "trashed" && (n.Parent == nil || fb.nodes[n.Parent.ID].ItemStatus != "trashed") {
			trashed = append(trashed, n)
		}
	}

	writeJSON(w, pageOf(trashed, r.URL.Query()))
}

func (fb *fakeBox) createFolder(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var body struct {
		Name   string  `json:"name"`
		Parent itemRef `json:"parent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	if fb.find("folder", body.Parent.ID) == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	for _, c := range fb.children(body.Parent.ID, true) {
		if c.Name == body.Name {
			writeError(w, http.StatusConflict, "item_name_in_use")
			return
		}
	}

	writeCreated(w, fb.add("folder", body.Parent.ID, body.Name, nil).item)
}

func (fb *fakeBox) clone(n *fakeNode, parent, name string) *fakeNode {
	c := fb.add(n.Type, parent, name, n.content)
	c.Description = n.Description

	for _, child := range fb.children(n.ID, true) {
		fb.clone(child, c.ID, child.Name)
	}

	return c
}

func (fb *fakeBox) copyItem(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		n := fb.find(typ, r.PathValue("id"))
		if n == nil || n.ItemStatus != "active" {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		var body struct {
			Name   string  `json:"name"`
			Parent itemRef `json:"parent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request")
			return
		}

		if fb.find("folder", body.Parent.ID) == nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		name := body.Name
		if name == "" {
			name = n.Name
		}

		writeCreated(w, fb.clone(n, body.Parent.ID, name).item)
	}
}

func (fb *fakeBox) content(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	n := fb.find("file", r.PathValue("id"))
	fb.mu.Unlock()

	if n == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	http.Redirect(w, r, "/dl/"+n.ID, http.StatusFound)
}

func (fb *fakeBox) blob(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	n := fb.find("file", r.PathValue("id"))
	if n == nil {
		http.NotFound(w, r)
		return
	}

	_, _ = w.Write(n.content) //nolint:errcheck // test server
}

func (fb *fakeBox) me(w http.ResponseWriter, _ *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var used int64

	for _, n := range fb.nodes {
		if n.ItemStatus == "active" {
			used += n.Size
		}
	}

	writeJSON(w, userInfo{SpaceAmount: 10 << 30, SpaceUsed: used})
}

func (fb *fakeBox) search(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	query := strings.ToLower(r.URL.Query().Get("query"))
	all := r.URL.Query().Get("trash_content") == "all_items"

	var hits []*fakeNode

	for _, n := range fb.nodes {
		if n.ID == "0" || n.ItemStatus == "deleted" || (!all && n.ItemStatus != "active") {
			continue
		}

		if strings.Contains(strings.ToLower(n.Name), query) {
			hits = append(hits, n)
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Name < hits[j].Name })

	writeJSON(w, pageOf(hits, r.URL.Query()))
}

func (fb *fakeBox) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	var attrs struct {
		Name   string  `json:"name"`
		Parent itemRef `json:"parent"`
	}
	if err := json.Unmarshal([]byte(r.FormValue("attributes")), &attrs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.find("folder", attrs.Parent.ID) == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	writeCreated(w, collection{TotalCount: 1, Entries: []item{fb.add("file", attrs.Parent.ID, attrs.Name, data).item}})
}
