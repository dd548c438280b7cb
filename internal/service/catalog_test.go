package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/normalize"
	"github.com/ecojiaflow/ecolojia/internal/repository"
	"github.com/ecojiaflow/ecolojia/internal/search"
	"github.com/ecojiaflow/ecolojia/internal/search/memory"
	"github.com/ecojiaflow/ecolojia/internal/searchsync"
	apperrors "github.com/ecojiaflow/ecolojia/pkg/errors"
	"github.com/ecojiaflow/ecolojia/pkg/logger"
)

// --- Mock Repository ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

func (m *mockProductRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]domain.Product, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

// --- Test Helpers ---

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const testID = "4f9c2a57-3d1e-4c8b-9a6f-2b7e5d0c1a34"

type harness struct {
	repo   *mockProductRepository
	engine *memory.Engine
	svc    *CatalogService
}

func newHarness(opts ...Option) *harness {
	repo := new(mockProductRepository)
	engine := memory.New()
	adapter := search.NewAdapter(engine)
	dispatcher := searchsync.NewInline(adapter, time.Second, logger.Discard())

	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return testID }),
	}, opts...)

	return &harness{
		repo:   repo,
		engine: engine,
		svc:    NewCatalogService(repo, dispatcher, adapter, logger.Discard(), opts...),
	}
}

// failingIndexer rejects every call.
type failingIndexer struct{}

func (failingIndexer) Upsert(context.Context, *domain.Product) error { return errors.New("index down") }
func (failingIndexer) Delete(context.Context, string) error          { return errors.New("index down") }
func (failingIndexer) BulkUpsert(context.Context, []domain.Product) error {
	return errors.New("index down")
}
func (failingIndexer) PurgeStale(context.Context, time.Time) (int, error) {
	return 0, errors.New("index down")
}

// purgeFailingIndexer writes through but cannot purge.
type purgeFailingIndexer struct {
	*search.Adapter
}

func (purgeFailingIndexer) PurgeStale(context.Context, time.Time) (int, error) {
	return 0, errors.New("delete_by_query rejected")
}

// syncFailures sums sync_failures_total over every label set.
func syncFailures(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != "sync_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func float64Ptr(f float64) *float64 {
	return &f
}

func storedProduct(id, slugValue string, score float64) *domain.Product {
	return &domain.Product{
		ID:              id,
		Slug:            slugValue,
		Title:           "Eco Soap",
		Description:     domain.DefaultDescription,
		Brand:           domain.DefaultBrand,
		Category:        domain.DefaultCategory,
		Tags:            []string{},
		Images:          []string{},
		ZonesDispo:      []string{},
		Prices:          domain.DefaultPrices(),
		EcoScore:        float64Ptr(score),
		EcoScoreBucket:  domain.BucketForScore(score),
		ConfidenceColor: domain.ConfidenceYellow,
		VerifiedStatus:  domain.StatusManualReview,
		EnrichedAt:      fixedNow,
		CreatedAt:       fixedNow,
		UpdatedAt:       fixedNow,
	}
}

// --- SubmitProduct ---

func TestSubmitProduct_EcoSoapScenario(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("SlugExists", ctx, "eco-soap").Return(false, nil)
	h.repo.On("Create", ctx, mock.AnythingOfType("*domain.Product")).Return(nil)

	raw := normalize.RawProduct{
		"title":            "Eco Soap",
		"eco_score":        0.85,
		"confidence_color": "purple",
	}

	product, err := h.svc.SubmitProduct(ctx, raw)
	require.NoError(t, err)

	assert.Equal(t, testID, product.ID)
	assert.Equal(t, "eco-soap", product.Slug)
	assert.Equal(t, domain.BucketMedium, product.EcoScoreBucket)
	assert.Equal(t, domain.ConfidenceYellow, product.ConfidenceColor)
	assert.Equal(t, domain.StatusManualReview, product.VerifiedStatus)
	assert.Equal(t, domain.DefaultDescription, product.Description)
	assert.Equal(t, fixedNow, product.CreatedAt)

	doc, ok := h.engine.Get(testID)
	require.True(t, ok)
	assert.Equal(t, "eco-soap", doc.Slug)
	assert.Equal(t, "0.8–0.9", doc.EcoScoreBucket)

	h.repo.AssertExpectations(t)
}

func TestSubmitProduct_StoredRecordMatchesNormalizedInput(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var stored *domain.Product
	h.repo.On("SlugExists", ctx, "savon-a-l-olive").Return(false, nil)
	h.repo.On("Create", ctx, mock.AnythingOfType("*domain.Product")).
		Run(func(args mock.Arguments) {
			p := *args.Get(1).(*domain.Product)
			stored = &p
		}).
		Return(nil)

	raw := normalize.RawProduct{
		"title":       "Savon à l'Olive",
		"tags":        "not-an-array",
		"zones_dispo": []any{"FR", "BE"},
		"eco_score":   "0.9",
		"prices":      map[string]any{"eur": 4.5},
	}

	created, err := h.svc.SubmitProduct(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, stored)

	h.repo.On("GetByID", ctx, testID).Return(stored, nil)
	got, err := h.svc.GetProduct(ctx, testID)
	require.NoError(t, err)

	want := normalize.Product(raw, fixedNow)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, want.Slug, got.Slug)
	assert.Equal(t, want.EcoScoreBucket, got.EcoScoreBucket)
	assert.Nil(t, got.EcoScore)
	assert.Equal(t, want.ConfidenceColor, got.ConfidenceColor)
	assert.Equal(t, want.VerifiedStatus, got.VerifiedStatus)
	assert.Equal(t, []string{}, got.Tags)
	assert.Equal(t, []string{"FR", "BE"}, got.ZonesDispo)
	assert.Equal(t, map[string]float64{"EUR": 4.5}, got.Prices)
}

func TestSubmitProduct_KeepsSuppliedID(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("SlugExists", ctx, "eco-soap").Return(false, nil)
	h.repo.On("Create", ctx, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ID == "legacy-42"
	})).Return(nil)

	product, err := h.svc.SubmitProduct(ctx, normalize.RawProduct{"id": "legacy-42", "title": "Eco Soap"})
	require.NoError(t, err)
	assert.Equal(t, "legacy-42", product.ID)
}

func TestSubmitProduct_ReplacesUnroutableID(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("SlugExists", ctx, "eco-soap").Return(false, nil)
	h.repo.On("Create", ctx, mock.MatchedBy(func(p *domain.Product) bool {
		return p.ID == testID
	})).Return(nil)

	product, err := h.svc.SubmitProduct(ctx, normalize.RawProduct{"id": "shop/42", "title": "Eco Soap"})
	require.NoError(t, err)
	assert.Equal(t, testID, product.ID)
	_, indexed := h.engine.Get(testID)
	assert.True(t, indexed)
}

func TestSubmitProduct_DisambiguatesDerivedSlug(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("SlugExists", ctx, "eco-soap").Return(true, nil)
	h.repo.On("SlugExists", ctx, "eco-soap-2").Return(true, nil)
	h.repo.On("SlugExists", ctx, "eco-soap-3").Return(false, nil)
	h.repo.On("Create", ctx, mock.MatchedBy(func(p *domain.Product) bool {
		return p.Slug == "eco-soap-3"
	})).Return(nil)

	product, err := h.svc.SubmitProduct(ctx, normalize.RawProduct{"title": "Eco Soap"})
	require.NoError(t, err)
	assert.Equal(t, "eco-soap-3", product.Slug)
	h.repo.AssertExpectations(t)
}

func TestSubmitProduct_RandomSuffixAfterAttemptsExhausted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("SlugExists", ctx, mock.AnythingOfType("string")).Return(true, nil)
	h.repo.On("Create", ctx, mock.AnythingOfType("*domain.Product")).Return(nil)

	product, err := h.svc.SubmitProduct(ctx, normalize.RawProduct{"title": "Eco Soap"})
	require.NoError(t, err)

	assert.Regexp(t, `^eco-soap-[0-9a-f]{8}$`, product.Slug)
	h.repo.AssertNumberOfCalls(t, "SlugExists", maxSlugAttempts)
}

func TestSubmitProduct_PlaceholderSlugIsDisambiguated(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("SlugExists", ctx, domain.DefaultSlug).Return(true, nil)
	h.repo.On("SlugExists", ctx, domain.DefaultSlug+"-2").Return(false, nil)
	h.repo.On("Create", ctx, mock.AnythingOfType("*domain.Product")).Return(nil)

	product, err := h.svc.SubmitProduct(ctx, normalize.RawProduct{})
	require.NoError(t, err)
	assert.Equal(t, "produit-sans-slug-2", product.Slug)
	assert.Equal(t, domain.DefaultTitle, product.Title)
}

func TestSubmitProduct_ExplicitSlugConflict(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("Create", ctx, mock.AnythingOfType("*domain.Product")).
		Return(apperrors.AlreadyExists("product", "slug", "eco-soap"))

	product, err := h.svc.SubmitProduct(ctx, normalize.RawProduct{"title": "Eco Soap", "slug": "eco-soap"})

	assert.Nil(t, product)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
	assert.Equal(t, 0, h.engine.Len())
	h.repo.AssertNotCalled(t, "SlugExists", mock.Anything, mock.Anything)
}

func TestSubmitProduct_SlugLookupErrorSurfaces(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("SlugExists", ctx, "eco-soap").Return(false, errors.New("connection refused"))

	_, err := h.svc.SubmitProduct(ctx, normalize.RawProduct{"title": "Eco Soap"})
	require.Error(t, err)
	h.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSubmitProduct_StoreFailureLeavesIndexUntouched(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("SlugExists", ctx, "eco-soap").Return(false, nil)
	h.repo.On("Create", ctx, mock.AnythingOfType("*domain.Product")).Return(errors.New("disk full"))

	_, err := h.svc.SubmitProduct(ctx, normalize.RawProduct{"title": "Eco Soap"})
	require.Error(t, err)
	assert.Equal(t, 0, h.engine.Len())
}

func TestSubmitProduct_IndexFailureIsSwallowed(t *testing.T) {
	repo := new(mockProductRepository)
	dispatcher := searchsync.NewInline(failingIndexer{}, time.Second, logger.Discard())
	svc := NewCatalogService(repo, dispatcher, failingIndexer{}, logger.Discard(),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return testID }),
	)
	ctx := context.Background()

	repo.On("SlugExists", ctx, "eco-soap").Return(false, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Product")).Return(nil)

	before := syncFailures(t)
	product, err := svc.SubmitProduct(ctx, normalize.RawProduct{"title": "Eco Soap", "eco_score": 0.85})

	require.NoError(t, err)
	assert.Equal(t, testID, product.ID)
	assert.Equal(t, domain.BucketMedium, product.EcoScoreBucket)
	assert.Greater(t, syncFailures(t), before)
}

// --- UpdateProduct ---

func TestUpdateProduct_RecomputesBucket(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	existing := storedProduct(testID, "eco-soap", 0.85)
	updated := storedProduct(testID, "eco-soap", 0.95)

	h.repo.On("GetByID", ctx, testID).Return(existing, nil)
	h.repo.On("Update", ctx, testID, mock.MatchedBy(func(p domain.ProductPatch) bool {
		return p.EcoScore.Set && p.EcoScore.Value != nil && *p.EcoScore.Value == 0.95 && !p.Title.Set
	})).Return(updated, nil)

	product, err := h.svc.UpdateProduct(ctx, testID, normalize.RawProduct{"eco_score": 0.95})
	require.NoError(t, err)

	assert.Equal(t, domain.BucketHigh, product.EcoScoreBucket)
	assert.Equal(t, "Eco Soap", product.Title)

	doc, ok := h.engine.Get(testID)
	require.True(t, ok)
	assert.Equal(t, "> 0.9", doc.EcoScoreBucket)
	h.repo.AssertExpectations(t)
}

func TestUpdateProduct_NotFound(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("GetByID", ctx, "missing").Return(nil, apperrors.NotFound("product", "missing"))

	product, err := h.svc.UpdateProduct(ctx, "missing", normalize.RawProduct{"title": "x"})

	assert.Nil(t, product)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 0, h.engine.Len())
	h.repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateProduct_StoreErrorSurfaces(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("GetByID", ctx, testID).Return(storedProduct(testID, "eco-soap", 0.85), nil)
	h.repo.On("Update", ctx, testID, mock.Anything).Return(nil, apperrors.AlreadyExists("product", "slug", "taken"))

	_, err := h.svc.UpdateProduct(ctx, testID, normalize.RawProduct{"slug": "taken"})
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	assert.Equal(t, 0, h.engine.Len())
}

// --- RemoveProduct ---

func TestRemoveProduct_Success(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	product := storedProduct(testID, "eco-soap", 0.85)
	doc := search.NewDocument(product)
	require.NoError(t, h.engine.Index(ctx, &doc))

	h.repo.On("Delete", ctx, testID).Return(product, nil)

	deletion, err := h.svc.RemoveProduct(ctx, testID)
	require.NoError(t, err)

	assert.Equal(t, domain.Deletion{ID: testID, Slug: "eco-soap", Status: "deleted"}, *deletion)
	assert.Equal(t, 0, h.engine.Len())
}

func TestRemoveProduct_NotFoundLeavesIndexAlone(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	other := search.NewDocument(storedProduct("other", "other", 0.5))
	require.NoError(t, h.engine.Index(ctx, &other))
	h.repo.On("Delete", ctx, "nope").Return(nil, apperrors.NotFound("product", "nope"))

	deletion, err := h.svc.RemoveProduct(ctx, "nope")

	assert.Nil(t, deletion)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 1, h.engine.Len())
}

// --- Reads ---

func TestListProducts(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	category := "soin"
	filter := repository.ProductFilter{Category: &category, Page: 2, PerPage: 10}

	h.repo.On("List", ctx, filter).Return([]domain.Product{*storedProduct("a", "a", 0.5)}, 11, nil)

	products, total, err := h.svc.ListProducts(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, 11, total)
}

func TestListProducts_Error(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("List", ctx, mock.Anything).Return(nil, 0, errors.New("timeout"))

	_, _, err := h.svc.ListProducts(ctx, repository.ProductFilter{})
	assert.Error(t, err)
}

func TestGetProduct_UUIDTriesIDFirst(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("GetByID", ctx, testID).Return(storedProduct(testID, "eco-soap", 0.85), nil)

	product, err := h.svc.GetProduct(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, testID, product.ID)
	h.repo.AssertNotCalled(t, "GetBySlug", mock.Anything, mock.Anything)
}

func TestGetProduct_UUIDFallsBackToSlug(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("GetByID", ctx, testID).Return(nil, apperrors.NotFound("product", testID))
	h.repo.On("GetBySlug", ctx, testID).Return(storedProduct("other", testID, 0.85), nil)

	product, err := h.svc.GetProduct(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, "other", product.ID)
}

func TestGetProduct_SlugFirstThenID(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("GetBySlug", ctx, "legacy-42").Return(nil, apperrors.NotFound("product", "legacy-42"))
	h.repo.On("GetByID", ctx, "legacy-42").Return(storedProduct("legacy-42", "eco-soap", 0.85), nil)

	product, err := h.svc.GetProduct(ctx, "legacy-42")
	require.NoError(t, err)
	assert.Equal(t, "legacy-42", product.ID)

	calls := h.repo.Calls
	require.Len(t, calls, 2)
	assert.Equal(t, "GetBySlug", calls[0].Method)
	assert.Equal(t, "GetByID", calls[1].Method)
}

func TestGetProduct_NotFound(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("GetBySlug", ctx, "ghost").Return(nil, apperrors.NotFound("product", "ghost"))
	h.repo.On("GetByID", ctx, "ghost").Return(nil, apperrors.NotFound("product", "ghost"))

	_, err := h.svc.GetProduct(ctx, "ghost")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 404, apperrors.HTTPStatus(err))
}

func TestGetProduct_StoreErrorStopsLookup(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("GetBySlug", ctx, "eco-soap").Return(nil, errors.New("connection reset"))

	_, err := h.svc.GetProduct(ctx, "eco-soap")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
	h.repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

// --- Reindex ---

func products(ids ...string) []domain.Product {
	out := make([]domain.Product, len(ids))
	for i, id := range ids {
		out[i] = *storedProduct(id, "slug-"+id, 0.85)
	}
	return out
}

func TestReindex_PagesThroughStore(t *testing.T) {
	h := newHarness(WithReindexPageSize(2))
	ctx := context.Background()

	h.repo.On("ListAfter", ctx, "", 2).Return(products("a", "b"), nil)
	h.repo.On("ListAfter", ctx, "b", 2).Return(products("c", "d"), nil)
	h.repo.On("ListAfter", ctx, "d", 2).Return(products("e"), nil)

	result, err := h.svc.Reindex(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.ReindexResult{Indexed: 5, Pages: 3}, *result)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, h.engine.IDs())
	h.repo.AssertExpectations(t)
}

func TestReindex_PurgesDocumentsMissingFromStore(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	ghost := search.NewDocument(storedProduct("ghost", "ghost", 0.4))
	require.NoError(t, h.engine.Index(ctx, &ghost))
	stale := search.NewDocument(storedProduct("a", "old-slug", 0.2))
	stale.SyncedAt = time.Now().Add(-time.Hour)
	require.NoError(t, h.engine.Index(ctx, &stale))

	h.repo.On("ListAfter", ctx, "", DefaultReindexPageSize).Return(products("a"), nil)

	result, err := h.svc.Reindex(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.ReindexResult{Indexed: 1, Pages: 1, Purged: 1}, *result)
	assert.Equal(t, []string{"a"}, h.engine.IDs())
	doc, _ := h.engine.Get("a")
	assert.Equal(t, "slug-a", doc.Slug)
}

func TestReindex_PurgeFailureIsUnavailable(t *testing.T) {
	repo := new(mockProductRepository)
	engine := memory.New()
	bulk := purgeFailingIndexer{search.NewAdapter(engine)}
	svc := NewCatalogService(repo, searchsync.NewInline(bulk, time.Second, logger.Discard()), bulk, logger.Discard())
	ctx := context.Background()

	repo.On("ListAfter", ctx, "", DefaultReindexPageSize).Return(products("a"), nil)

	_, err := svc.Reindex(ctx)
	require.Error(t, err)
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
	assert.Equal(t, []string{"a"}, engine.IDs())
}

func TestReindex_ExactMultipleOfPageSize(t *testing.T) {
	h := newHarness(WithReindexPageSize(2))
	ctx := context.Background()

	h.repo.On("ListAfter", ctx, "", 2).Return(products("a", "b"), nil)
	h.repo.On("ListAfter", ctx, "b", 2).Return([]domain.Product{}, nil)

	result, err := h.svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ReindexResult{Indexed: 2, Pages: 1}, *result)
}

func TestReindex_EmptyStore(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("ListAfter", ctx, "", DefaultReindexPageSize).Return([]domain.Product{}, nil)

	result, err := h.svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ReindexResult{}, *result)
}

func TestReindex_IndexFailureIsUnavailable(t *testing.T) {
	repo := new(mockProductRepository)
	dispatcher := searchsync.NewInline(failingIndexer{}, time.Second, logger.Discard())
	svc := NewCatalogService(repo, dispatcher, failingIndexer{}, logger.Discard())
	ctx := context.Background()

	repo.On("ListAfter", ctx, "", DefaultReindexPageSize).Return(products("a"), nil)

	_, err := svc.Reindex(ctx)
	require.Error(t, err)
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
}

func TestReindex_StoreFailureSurfaces(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.repo.On("ListAfter", ctx, "", DefaultReindexPageSize).Return(nil, errors.New("connection reset"))

	_, err := h.svc.Reindex(ctx)
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
}

func TestReindex_WithoutIndex(t *testing.T) {
	repo := new(mockProductRepository)
	svc := NewCatalogService(repo, searchsync.NewInline(failingIndexer{}, time.Second, logger.Discard()), nil, logger.Discard())

	_, err := svc.Reindex(context.Background())
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
	repo.AssertNotCalled(t, "ListAfter", mock.Anything, mock.Anything, mock.Anything)
}
