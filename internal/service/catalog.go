package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/normalize"
	"github.com/ecojiaflow/ecolojia/internal/repository"
	"github.com/ecojiaflow/ecolojia/internal/search"
	"github.com/ecojiaflow/ecolojia/internal/searchsync"
	apperrors "github.com/ecojiaflow/ecolojia/pkg/errors"
	"github.com/ecojiaflow/ecolojia/pkg/slug"
)

const (
	// maxSlugAttempts is how many numbered variants of a derived slug are
	// tried before falling back to a random suffix.
	maxSlugAttempts = 50

	// DefaultReindexPageSize is the keyset page size used by Reindex.
	DefaultReindexPageSize = 500
)

// CatalogService implements the business logic for catalog writes and reads.
// The store is the system of record; the index is kept in step on a best
// effort basis through the dispatcher.
type CatalogService struct {
	repo     repository.ProductRepository
	sync     searchsync.Dispatcher
	bulk     search.BulkIndexer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	pageSize int
}

// Option configures a CatalogService.
type Option func(*CatalogService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *CatalogService) { s.now = now }
}

// WithIDGenerator overrides how ids are assigned to new products.
func WithIDGenerator(newID func() string) Option {
	return func(s *CatalogService) { s.newID = newID }
}

// WithReindexPageSize sets the page size used by Reindex.
func WithReindexPageSize(n int) Option {
	return func(s *CatalogService) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewCatalogService creates a new catalog service. bulk may be nil, in which
// case Reindex reports the index as unavailable.
func NewCatalogService(repo repository.ProductRepository, dispatcher searchsync.Dispatcher, bulk search.BulkIndexer, logger *slog.Logger, opts ...Option) *CatalogService {
	s := &CatalogService{
		repo:     repo,
		sync:     dispatcher,
		bulk:     bulk,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		pageSize: DefaultReindexPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitProduct normalizes raw, stores it and schedules the index upsert.
// The returned record reflects the store only.
func (s *CatalogService) SubmitProduct(ctx context.Context, raw normalize.RawProduct) (*domain.Product, error) {
	product := normalize.Product(raw, s.now().UTC())
	if product.ID == "" {
		product.ID = s.newID()
	}

	if !normalize.HasExplicitSlug(raw) {
		unique, err := s.uniqueSlug(ctx, product.Slug)
		if err != nil {
			return nil, err
		}
		product.Slug = unique
	}

	if err := s.repo.Create(ctx, &product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	// Failures are logged and counted by the dispatcher.
	_ = s.sync.Upsert(ctx, &product)

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("slug", product.Slug),
	)

	return &product, nil
}

// uniqueSlug returns base, or the first free of base-2 … base-50, or base
// with a random suffix.
func (s *CatalogService) uniqueSlug(ctx context.Context, base string) (string, error) {
	for n := 1; n <= maxSlugAttempts; n++ {
		candidate := slug.WithSuffix(base, n)
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// UpdateProduct applies the fields present in raw to an existing product.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, raw normalize.RawProduct) (*domain.Product, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}

	patch := normalize.Patch(raw, s.now().UTC())

	product, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	_ = s.sync.Upsert(ctx, product)

	s.logger.InfoContext(ctx, "product updated",
		slog.String("product_id", product.ID),
	)

	return product, nil
}

// RemoveProduct deletes a product from the store, then from the index.
func (s *CatalogService) RemoveProduct(ctx context.Context, id string) (*domain.Deletion, error) {
	product, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}

	_ = s.sync.Delete(ctx, product.ID)

	s.logger.InfoContext(ctx, "product deleted",
		slog.String("product_id", product.ID),
		slog.String("slug", product.Slug),
	)

	deletion := domain.NewDeletion(product)
	return &deletion, nil
}

// ListProducts returns one page of products, newest first, and the total.
func (s *CatalogService) ListProducts(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// GetProduct looks a product up by id or slug. A key that parses as a UUID
// is tried as an id first; anything else as a slug first.
func (s *CatalogService) GetProduct(ctx context.Context, key string) (*domain.Product, error) {
	lookups := []func(context.Context, string) (*domain.Product, error){s.repo.GetBySlug, s.repo.GetByID}
	if _, err := uuid.Parse(key); err == nil {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	for _, lookup := range lookups {
		product, err := lookup(ctx, key)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get product: %w", err)
		}
	}
	return nil, apperrors.NotFound("product", key)
}

// Reindex pushes every stored product to the index, one keyset page at a
// time, then purges documents the run did not write. It repairs drift left
// by failed syncs in both directions.
func (s *CatalogService) Reindex(ctx context.Context) (*domain.ReindexResult, error) {
	if s.bulk == nil {
		return nil, apperrors.Unavailable("search index not configured", nil)
	}

	start := time.Now()
	result := &domain.ReindexResult{}
	after := ""

	for {
		page, err := s.repo.ListAfter(ctx, after, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("reindex: list products after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}

		if err := s.bulk.BulkUpsert(ctx, page); err != nil {
			s.logger.ErrorContext(ctx, "reindex page failed",
				slog.Int("page", result.Pages+1),
				slog.Int("indexed", result.Indexed),
				slog.String("error", err.Error()),
			)
			return nil, apperrors.Unavailable("search index unavailable", fmt.Errorf("reindex page %d: %w", result.Pages+1, err))
		}

		result.Indexed += len(page)
		result.Pages++
		after = page[len(page)-1].ID

		if len(page) < s.pageSize {
			break
		}
	}

	// Every document the run wrote is stamped at or after start, so what is
	// older belongs to products no longer in the store.
	purged, err := s.bulk.PurgeStale(ctx, start)
	if err != nil {
		s.logger.ErrorContext(ctx, "reindex purge failed",
			slog.Int("indexed", result.Indexed),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Unavailable("search index unavailable", fmt.Errorf("reindex purge: %w", err))
	}
	result.Purged = purged

	s.logger.InfoContext(ctx, "reindex completed",
		slog.Int("indexed", result.Indexed),
		slog.Int("pages", result.Pages),
		slog.Int("purged", result.Purged),
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}
