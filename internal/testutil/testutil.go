// Package testutil provides shared test helpers: a fake timeline API, on-disk
// exports and temporary index databases.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/starford/lifeline/internal/index"
	"github.com/starford/lifeline/internal/models"
)

// Collaborator is an in-process stand-in for the timeline REST API.
type Collaborator struct {
	*httptest.Server

	mu             sync.Mutex
	timelines      []models.Timeline
	collaborations []models.Timeline
	items          map[string][]models.Item
	fail           map[string]int
	token          string

	// Requests counts every request served.
	Requests atomic.Int32
}

// NewCollaborator starts a fake API serving /api/timelines,
// /api/timelines/collaborations and /api/timelines/{id}/items. It is closed
// when the test ends.
func NewCollaborator(t *testing.T) *Collaborator {
	t.Helper()
	c := &Collaborator{
		items: make(map[string][]models.Item),
		fail:  make(map[string]int),
	}
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Close)
	return c
}

// BaseURL returns the API root to configure an HTTP source with.
func (c *Collaborator) BaseURL() string { return c.URL + "/api" }

// RequireToken makes every request without "Bearer token" answer 401.
func (c *Collaborator) RequireToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// AddTimeline registers an owned timeline with its items.
func (c *Collaborator) AddTimeline(tl models.Timeline, items ...models.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timelines = append(c.timelines, tl)
	c.items[tl.Key()] = items
}

// AddCollaboration registers a timeline shared with the user.
func (c *Collaborator) AddCollaboration(tl models.Timeline, items ...models.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collaborations = append(c.collaborations, tl)
	if _, ok := c.items[tl.Key()]; !ok {
		c.items[tl.Key()] = items
	}
}

// SetItems replaces the items of a timeline.
func (c *Collaborator) SetItems(timelineID string, items ...models.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[timelineID] = items
}

// Fail makes requests to path (relative to the API root) answer code.
// A zero code clears the failure.
func (c *Collaborator) Fail(path string, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if code == 0 {
		delete(c.fail, path)
		return
	}
	c.fail[path] = code
}

func (c *Collaborator) serve(w http.ResponseWriter, r *http.Request) {
	c.Requests.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && r.Header.Get("Authorization") != "Bearer "+c.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api")
	if code, ok := c.fail[path]; ok {
		http.Error(w, http.StatusText(code), code)
		return
	}

	var body any
	switch {
	case path == "/timelines":
		body = nonNil(c.timelines)
	case path == "/timelines/collaborations":
		body = nonNil(c.collaborations)
	case strings.HasPrefix(path, "/timelines/") && strings.HasSuffix(path, "/items"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/timelines/"), "/items")
		items, ok := c.items[id]
		if !ok {
			http.Error(w, "timeline not found", http.StatusNotFound)
			return
		}
		if items == nil {
			items = []models.Item{}
		}
		body = items
	default:
		http.NotFound(w, r)
		return
	}

	data, err := sonic.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func nonNil(tls []models.Timeline) []models.Timeline {
	if tls == nil {
		return []models.Timeline{}
	}
	return tls
}

// TestExport writes files (slash-separated relative path → content) into a
// fresh temporary directory and returns it.
func TestExport(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		WriteFile(t, dir, rel, content)
	}
	return dir
}

// WriteFile writes content to rel under dir, creating parents.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestDB creates a temporary SQLite index that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lifeline-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
