// Package search maintains the read-only search projection of the catalog.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/domain"
)

// Engine stores documents in a search backend. Index and Delete are
// idempotent: the document id is the product id, and deleting a missing
// document succeeds.
type Engine interface {
	// Index adds or replaces a single document.
	Index(ctx context.Context, doc *Document) error

	// Delete removes a document by id.
	Delete(ctx context.Context, id string) error

	// BulkIndex adds or replaces many documents in one round trip.
	BulkIndex(ctx context.Context, docs []Document) error

	// PurgeStale removes every document written before cutoff, including
	// documents that carry no write time, and returns how many went.
	PurgeStale(ctx context.Context, cutoff time.Time) (int, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Indexer is what the catalog calls to keep the index in step with the
// store.
type Indexer interface {
	Upsert(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id string) error
}

// BulkIndexer is an Indexer that can also rebuild the whole index: load
// many products at once, then drop whatever the rebuild did not write.
type BulkIndexer interface {
	Indexer
	BulkUpsert(ctx context.Context, products []domain.Product) error
	PurgeStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Adapter projects products onto documents for an Engine. Every document
// it writes is stamped with the write time.
type Adapter struct {
	engine Engine
	now    func() time.Time
}

var _ BulkIndexer = (*Adapter)(nil)

// NewAdapter returns an Adapter writing to engine.
func NewAdapter(engine Engine) *Adapter {
	return &Adapter{engine: engine, now: time.Now}
}

// Upsert indexes the projection of p under p.ID.
func (a *Adapter) Upsert(ctx context.Context, p *domain.Product) error {
	doc := NewDocument(p)
	doc.SyncedAt = a.now().UTC()
	if err := a.engine.Index(ctx, &doc); err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes the document for id.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	if err := a.engine.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}

// BulkUpsert indexes every product in one batch.
func (a *Adapter) BulkUpsert(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	now := a.now().UTC()
	docs := make([]Document, len(products))
	for i := range products {
		docs[i] = NewDocument(&products[i])
		docs[i].SyncedAt = now
	}
	if err := a.engine.BulkIndex(ctx, docs); err != nil {
		return fmt.Errorf("bulk upsert %d products: %w", len(products), err)
	}
	return nil
}

// PurgeStale removes documents not written since cutoff.
func (a *Adapter) PurgeStale(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := a.engine.PurgeStale(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("purge documents older than %s: %w", cutoff.UTC().Format(time.RFC3339), err)
	}
	return n, nil
}

// Ping checks the underlying engine.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.engine.Ping(ctx)
}
