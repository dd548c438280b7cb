package searchsync

import (
	"context"
	"sync"
	"time"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	pkgkafka "github.com/ecojiaflow/ecolojia/pkg/kafka"
)

type call struct {
	op      Op
	id      string
	product domain.Product
}

// fakeIndexer records calls. The first failFirst calls return err; when
// block is set every call waits on it (or on ctx).
type fakeIndexer struct {
	mu        sync.Mutex
	calls     []call
	attempts  int
	failFirst int
	err       error
	block     chan struct{}
	entered   chan struct{}
}

func (f *fakeIndexer) do(ctx context.Context, c call) error {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil && (f.failFirst == 0 || f.attempts <= f.failFirst) {
		return f.err
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeIndexer) Upsert(ctx context.Context, p *domain.Product) error {
	return f.do(ctx, call{op: OpUpsert, id: p.ID, product: *p})
}

func (f *fakeIndexer) Delete(ctx context.Context, id string) error {
	return f.do(ctx, call{op: OpDelete, id: id})
}

func (f *fakeIndexer) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeIndexer) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// slowIndexer never returns before ctx ends.
type slowIndexer struct{}

func (slowIndexer) Upsert(ctx context.Context, _ *domain.Product) error {
	<-ctx.Done()
	return ctx.Err()
}

func (slowIndexer) Delete(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

type published struct {
	topic    string
	event    *pkgkafka.Event
	deadline bool
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	_, ok := ctx.Deadline()
	p.events = append(p.events, published{topic: topic, event: event, deadline: ok})
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func sampleProduct(id string) *domain.Product {
	score := 0.85
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Product{
		ID:              id,
		Slug:            "eco-soap",
		Title:           "Eco Soap",
		Description:     "Savon solide",
		Brand:           domain.DefaultBrand,
		Category:        domain.DefaultCategory,
		Tags:            []string{"soap"},
		Images:          []string{},
		ZonesDispo:      []string{"FR"},
		Prices:          map[string]float64{"EUR": 4.5},
		EcoScore:        &score,
		EcoScoreBucket:  domain.BucketMedium,
		ConfidenceColor: domain.ConfidenceYellow,
		VerifiedStatus:  domain.StatusManualReview,
		EnrichedAt:      now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
