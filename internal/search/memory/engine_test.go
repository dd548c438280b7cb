package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/search"
)

func newTestProduct(id string, score float64) domain.Product {
	now := time.Now().UTC()
	return domain.Product{
		ID:              id,
		Slug:            "slug-" + id,
		Title:           "Eco Soap",
		Tags:            []string{"bio"},
		Prices:          map[string]float64{"EUR": 3},
		EcoScore:        &score,
		EcoScoreBucket:  domain.BucketForScore(score),
		ConfidenceColor: domain.ConfidenceYellow,
		VerifiedStatus:  domain.StatusManualReview,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestEngine_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := New()
	idx := search.NewAdapter(eng)
	p := newTestProduct("p-1", 0.85)

	require.NoError(t, idx.Upsert(ctx, &p))
	once, _ := eng.Get("p-1")

	require.NoError(t, idx.Upsert(ctx, &p))
	twice, _ := eng.Get("p-1")

	assert.Equal(t, 1, eng.Len())
	assert.False(t, twice.SyncedAt.Before(once.SyncedAt))
	once.SyncedAt, twice.SyncedAt = time.Time{}, time.Time{}
	assert.Equal(t, once, twice)
}

func TestEngine_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	eng := New()
	idx := search.NewAdapter(eng)

	p := newTestProduct("p-1", 0.85)
	require.NoError(t, idx.Upsert(ctx, &p))
	p = newTestProduct("p-1", 0.95)
	require.NoError(t, idx.Upsert(ctx, &p))

	doc, ok := eng.Get("p-1")
	require.True(t, ok)
	assert.Equal(t, "> 0.9", doc.EcoScoreBucket)
}

func TestEngine_DeleteMissingSucceeds(t *testing.T) {
	eng := New()
	require.NoError(t, eng.Delete(context.Background(), "missing"))
	assert.Equal(t, 0, eng.Len())
}

func TestEngine_DeleteRemoves(t *testing.T) {
	ctx := context.Background()
	eng := New()
	idx := search.NewAdapter(eng)
	p := newTestProduct("p-1", 0.5)

	require.NoError(t, idx.Upsert(ctx, &p))
	require.NoError(t, idx.Delete(ctx, "p-1"))
	require.NoError(t, idx.Delete(ctx, "p-1"))

	_, ok := eng.Get("p-1")
	assert.False(t, ok)
}

func TestEngine_BulkIndex(t *testing.T) {
	eng := New()
	idx := search.NewAdapter(eng)

	products := []domain.Product{newTestProduct("b", 0.1), newTestProduct("a", 0.9)}
	require.NoError(t, idx.BulkUpsert(context.Background(), products))

	assert.Equal(t, []string{"a", "b"}, eng.IDs())
	require.NoError(t, eng.Ping(context.Background()))
}

func TestEngine_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	eng := New()
	idx := search.NewAdapter(eng)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := newTestProduct(fmt.Sprintf("p-%02d", i%10), 0.5)
			_ = idx.Upsert(ctx, &p)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, eng.Len())
}

func TestEngine_PurgeStale(t *testing.T) {
	ctx := context.Background()
	eng := New()
	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, eng.Index(ctx, &search.Document{ObjectID: "never-stamped"}))
	require.NoError(t, eng.Index(ctx, &search.Document{ObjectID: "old", SyncedAt: cutoff.Add(-time.Second)}))
	require.NoError(t, eng.Index(ctx, &search.Document{ObjectID: "at-cutoff", SyncedAt: cutoff}))
	require.NoError(t, eng.Index(ctx, &search.Document{ObjectID: "fresh", SyncedAt: cutoff.Add(time.Minute)}))

	n, err := eng.PurgeStale(ctx, cutoff)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"at-cutoff", "fresh"}, eng.IDs())
}
