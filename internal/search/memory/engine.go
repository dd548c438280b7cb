package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/search"
)

// Engine is an in-memory implementation of search.Engine for development and
// tests. Thread-safe via sync.RWMutex.
type Engine struct {
	mu   sync.RWMutex
	docs map[string]search.Document
}

var _ search.Engine = (*Engine)(nil)

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{
		docs: make(map[string]search.Document),
	}
}

// Index adds or replaces a document.
func (e *Engine) Index(_ context.Context, doc *search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs[doc.ObjectID] = *doc
	return nil
}

// Delete removes a document. Missing ids are ignored.
func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.docs, id)
	return nil
}

// BulkIndex adds or replaces multiple documents.
func (e *Engine) BulkIndex(_ context.Context, docs []search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range docs {
		e.docs[d.ObjectID] = d
	}
	return nil
}

// PurgeStale removes documents whose SyncedAt is before cutoff or unset.
func (e *Engine) PurgeStale(_ context.Context, cutoff time.Time) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for id, d := range e.docs {
		if d.SyncedAt.Before(cutoff) {
			delete(e.docs, id)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (e *Engine) Ping(context.Context) error {
	return nil
}

// Get returns the document stored under id.
func (e *Engine) Get(id string) (search.Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.docs[id]
	return d, ok
}

// Len returns the number of stored documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.docs)
}

// IDs returns every stored id in ascending order.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.docs))
	for id := range e.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
