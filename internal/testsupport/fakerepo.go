package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// SearchFunc serves one page of search results for the fake repository.
// It receives the raw q and fq parameters plus the paging window and
// returns the total hit count and the page's documents.
type SearchFunc func(q, fq string, start, rows int) (int, []map[string]any)

// FakeRepo is an in-memory stand-in for the repository HTTP API. Tests
// register documents and payloads by pid, then point a bdr.Client at URL().
// Every handler counts hits so tests can assert on request traffic.
type FakeRepo struct {
	t      testing.TB
	server *httptest.Server

	mu          sync.Mutex
	items       map[string]string
	collections map[string]string
	texts       map[string]string
	forced      map[string]int
	requests    map[string]int
	searchDocs  []map[string]any
	searchFn    SearchFunc
}

// NewFakeRepo starts the fake API server and registers its shutdown with t.
func NewFakeRepo(t testing.TB) *FakeRepo {
	t.Helper()
	repo := &FakeRepo{
		t:           t,
		items:       make(map[string]string),
		collections: make(map[string]string),
		texts:       make(map[string]string),
		forced:      make(map[string]int),
		requests:    make(map[string]int),
	}
	repo.server = httptest.NewServer(http.HandlerFunc(repo.handle))
	t.Cleanup(repo.server.Close)
	return repo
}

// URL returns the base URL tests should hand to bdr.Config.
func (f *FakeRepo) URL() string {
	return f.server.URL
}

// AddItem registers the raw JSON served for /api/items/<pid>/.
func (f *FakeRepo) AddItem(pid, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[pid] = doc
}

// AddCollection registers the raw JSON served for /api/collections/<pid>/.
func (f *FakeRepo) AddCollection(pid, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[pid] = doc
}

// AddText registers the payload served for /storage/<pid>/EXTRACTED_TEXT/.
func (f *FakeRepo) AddText(pid, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[pid] = text
}

// ForceStatus makes the given request path answer with an HTTP status
// instead of its registered content.
func (f *FakeRepo) ForceStatus(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced[path] = status
}

// ClearStatus removes a forced status so the path serves its registered
// content again.
func (f *FakeRepo) ClearStatus(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.forced, path)
}

// SetSearchDocs configures the documents the default search handler pages
// through. The handler ignores q/fq; register whatever the query under test
// should match.
func (f *FakeRepo) SetSearchDocs(docs ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchDocs = docs
}

// SetSearchFunc replaces the default search handler.
func (f *FakeRepo) SetSearchFunc(fn SearchFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchFn = fn
}

// Requests returns how many times the exact path was served.
func (f *FakeRepo) Requests(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

// RequestsWithPrefix returns how many served requests had the path prefix.
func (f *FakeRepo) RequestsWithPrefix(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int
	for path, count := range f.requests {
		if strings.HasPrefix(path, prefix) {
			total += count
		}
	}
	return total
}

// ItemPath returns the request path for an item document.
func ItemPath(pid string) string {
	return "/api/items/" + pid + "/"
}

// CollectionPath returns the request path for a collection document.
func CollectionPath(pid string) string {
	return "/api/collections/" + pid + "/"
}

// TextPath returns the request path for an extracted-text payload.
func TextPath(pid string) string {
	return "/storage/" + pid + "/EXTRACTED_TEXT/"
}

func (f *FakeRepo) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests[r.URL.Path]++
	forced, hasForced := f.forced[r.URL.Path]
	f.mu.Unlock()

	if hasForced {
		w.WriteHeader(forced)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/api/search/":
		f.handleSearch(w, r)
	case strings.HasPrefix(path, "/api/items/"):
		doc, ok := f.lookup(f.items, path, "/api/items/")
		f.serveRegistered(w, doc, ok)
	case strings.HasPrefix(path, "/api/collections/"):
		doc, ok := f.lookup(f.collections, path, "/api/collections/")
		f.serveRegistered(w, doc, ok)
	case strings.HasPrefix(path, "/storage/"):
		pid := strings.TrimSuffix(strings.TrimPrefix(path, "/storage/"), "/EXTRACTED_TEXT/")
		f.mu.Lock()
		text, ok := f.texts[pid]
		f.mu.Unlock()
		f.serveRegistered(w, text, ok)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeRepo) lookup(docs map[string]string, path, prefix string) (string, bool) {
	pid := strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := docs[pid]
	return doc, ok
}

func (f *FakeRepo) serveRegistered(w http.ResponseWriter, doc string, ok bool) {
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fmt.Fprint(w, doc)
}

func (f *FakeRepo) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, _ := strconv.Atoi(query.Get("start"))
	rows, _ := strconv.Atoi(query.Get("rows"))
	if rows <= 0 {
		rows = 500
	}

	f.mu.Lock()
	fn := f.searchFn
	docs := f.searchDocs
	f.mu.Unlock()

	var numFound int
	var page []map[string]any
	if fn != nil {
		numFound, page = fn(query.Get("q"), query.Get("fq"), start, rows)
	} else {
		numFound = len(docs)
		for i := start; i < len(docs) && i < start+rows; i++ {
			page = append(page, docs[i])
		}
	}

	payload := map[string]any{
		"response": map[string]any{
			"numFound": numFound,
			"docs":     page,
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		f.t.Errorf("fakerepo: encode search response: %v", err)
	}
}
