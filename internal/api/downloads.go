package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Roelanb/churnboard/internal/actions"
)

// downloadStore holds exported files until they are fetched once or expire.
type downloadStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]storedDownload
	now   func() time.Time
}

type storedDownload struct {
	file    actions.Download
	expires time.Time
}

func newDownloadStore(ttl time.Duration) *downloadStore {
	return &downloadStore{ttl: ttl, items: map[string]storedDownload{}, now: time.Now}
}

func (d *downloadStore) setTTL(ttl time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ttl = ttl
}

func (d *downloadStore) put(f actions.Download) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune()
	id := uuid.NewString()
	d.items[id] = storedDownload{file: f, expires: d.now().Add(d.ttl)}
	return id
}

// take returns the file and forgets it.
func (d *downloadStore) take(id string) (actions.Download, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune()
	it, ok := d.items[id]
	if !ok {
		return actions.Download{}, false
	}
	delete(d.items, id)
	return it.file, true
}

func (d *downloadStore) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune()
	return len(d.items)
}

func (d *downloadStore) prune() {
	now := d.now()
	for id, it := range d.items {
		if now.After(it.expires) {
			delete(d.items, id)
		}
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		http.NotFound(w, r)
		return
	}
	f, ok := s.downloads.take(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}
