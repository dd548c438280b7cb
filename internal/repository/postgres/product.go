package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/repository"
	"github.com/ecojiaflow/ecolojia/pkg/database"
	apperrors "github.com/ecojiaflow/ecolojia/pkg/errors"
)

const table = "products"

const productColumns = `id, slug, title, description, brand, category, tags, images, zones_dispo,
		prices, affiliate_url, eco_score, eco_score_bucket, ai_confidence, confidence_pct,
		confidence_color, verified_status, resume_fr, resume_en, enriched_at, created_at, updated_at`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts a new product. UpdatedAt is set to the commit time.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	pricesJSON, err := json.Marshal(p.Prices)
	if err != nil {
		return fmt.Errorf("marshal prices: %w", err)
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	ctx, end := database.TraceQuery(ctx, "CreateProduct", table, query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		p.ID,
		p.Slug,
		p.Title,
		p.Description,
		p.Brand,
		p.Category,
		p.Tags,
		p.Images,
		p.ZonesDispo,
		pricesJSON,
		p.AffiliateURL,
		p.EcoScore,
		nullableBucket(p.EcoScoreBucket),
		p.AIConfidence,
		p.ConfidencePct,
		string(p.ConfidenceColor),
		string(p.VerifiedStatus),
		p.ResumeFR,
		p.ResumeEN,
		p.EnrichedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return conflictOr(err, p, "insert product")
	}

	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return r.queryOne(ctx, "GetProductByID", query, id)
}

// GetBySlug retrieves a product by its slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = $1`
	return r.queryOne(ctx, "GetProductBySlug", query, slug)
}

// List returns products matching the given filter with the total count,
// ordered by created_at descending.
func (r *ProductRepository) List(ctx context.Context, filter repository.ProductFilter) (_ []domain.Product, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, *filter.Category)
		argIndex++
	}

	if filter.Brand != nil {
		conditions = append(conditions, fmt.Sprintf("brand = $%d", argIndex))
		args = append(args, *filter.Brand)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s,
			   count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`,
		productColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "ListProducts", table, query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products   = []domain.Product{}
		totalCount int
	)

	for rows.Next() {
		p, err := scanProduct(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, totalCount, nil
}

// Update applies the set fields of patch in a single statement. Changing
// eco_score rewrites eco_score_bucket in the same statement.
func (r *ProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (_ *domain.Product, err error) {
	set := newSetBuilder()

	addIf(set, "slug", patch.Slug, nil)
	addIf(set, "title", patch.Title, nil)
	addIf(set, "description", patch.Description, nil)
	addIf(set, "brand", patch.Brand, nil)
	addIf(set, "category", patch.Category, nil)
	addIf(set, "tags", patch.Tags, nil)
	addIf(set, "images", patch.Images, nil)
	addIf(set, "zones_dispo", patch.ZonesDispo, nil)
	if patch.Prices.Set {
		pricesJSON, err := json.Marshal(patch.Prices.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal prices: %w", err)
		}
		set.add("prices", pricesJSON)
	}
	addIf(set, "affiliate_url", patch.AffiliateURL, nil)
	if patch.EcoScore.Set {
		set.add("eco_score", patch.EcoScore.Value)
		set.add("eco_score_bucket", nullableBucket(domain.BucketOf(patch.EcoScore.Value)))
	}
	addIf(set, "ai_confidence", patch.AIConfidence, nil)
	addIf(set, "confidence_pct", patch.ConfidencePct, nil)
	addIf(set, "confidence_color", patch.ConfidenceColor, func(c domain.ConfidenceColor) any { return string(c) })
	addIf(set, "verified_status", patch.VerifiedStatus, func(s domain.VerifiedStatus) any { return string(s) })
	addIf(set, "resume_fr", patch.ResumeFR, nil)
	addIf(set, "resume_en", patch.ResumeEN, nil)
	addIf(set, "enriched_at", patch.EnrichedAt, nil)
	set.add("updated_at", time.Now().UTC())

	args := append(set.args, id)
	query := fmt.Sprintf(`
		UPDATE products
		SET %s
		WHERE id = $%d
		RETURNING %s`,
		strings.Join(set.clauses, ", "), len(args), productColumns,
	)

	ctx, end := database.TraceQuery(ctx, "UpdateProduct", table, query)
	defer func() { end(traceable(err)) }()

	p, err := scanProduct(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		slug := ""
		if patch.Slug.Set {
			slug = patch.Slug.Value
		}
		return nil, conflictOr(err, &domain.Product{ID: id, Slug: slug}, "update product")
	}

	return p, nil
}

// Delete removes a product and returns the deleted row.
func (r *ProductRepository) Delete(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `DELETE FROM products WHERE id = $1 RETURNING ` + productColumns

	ctx, end := database.TraceQuery(ctx, "DeleteProduct", table, query)
	defer func() { end(traceable(err)) }()

	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("delete product: %w", err)
	}

	return p, nil
}

// SlugExists reports whether a product already uses slug.
func (r *ProductRepository) SlugExists(ctx context.Context, slug string) (_ bool, err error) {
	query := `SELECT EXISTS(SELECT 1 FROM products WHERE slug = $1)`

	ctx, end := database.TraceQuery(ctx, "ProductSlugExists", table, query)
	defer func() { end(err) }()

	var exists bool
	if err = r.db.QueryRow(ctx, query, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// ListAfter pages through every product by primary key.
func (r *ProductRepository) ListAfter(ctx context.Context, afterID string, limit int) (_ []domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id > $1 ORDER BY id LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "ListProductsAfter", table, query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list products after %q: %w", afterID, err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func (r *ProductRepository) queryOne(ctx context.Context, op, query, key string) (_ *domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, op, table, query)
	defer func() { end(traceable(err)) }()

	p, err := scanProduct(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", key)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanProduct reads one row in productColumns order. extra receives any
// trailing columns, such as a window count.
func scanProduct(row rowScanner, extra ...any) (*domain.Product, error) {
	var (
		p          domain.Product
		pricesJSON []byte
		bucket     *string
	)

	dest := []any{
		&p.ID,
		&p.Slug,
		&p.Title,
		&p.Description,
		&p.Brand,
		&p.Category,
		&p.Tags,
		&p.Images,
		&p.ZonesDispo,
		&pricesJSON,
		&p.AffiliateURL,
		&p.EcoScore,
		&bucket,
		&p.AIConfidence,
		&p.ConfidencePct,
		&p.ConfidenceColor,
		&p.VerifiedStatus,
		&p.ResumeFR,
		&p.ResumeEN,
		&p.EnrichedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	}

	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}

	if len(pricesJSON) > 0 {
		if err := json.Unmarshal(pricesJSON, &p.Prices); err != nil {
			return nil, fmt.Errorf("unmarshal prices: %w", err)
		}
	}
	if len(p.Prices) == 0 {
		p.Prices = domain.DefaultPrices()
	}
	if bucket != nil {
		p.EcoScoreBucket, _ = domain.ParseEcoScoreBucket(*bucket)
	}
	for _, list := range []*[]string{&p.Tags, &p.Images, &p.ZonesDispo} {
		if *list == nil {
			*list = []string{}
		}
	}

	return &p, nil
}

func nullableBucket(b domain.EcoScoreBucket) *string {
	if b == "" {
		return nil
	}
	s := string(b)
	return &s
}

// conflictOr maps a unique violation to ErrAlreadyExists, naming the
// offending field, and wraps anything else with op.
func conflictOr(err error, p *domain.Product, op string) error {
	if !isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "products_pkey" {
		return apperrors.AlreadyExists("product", "id", p.ID)
	}
	return apperrors.AlreadyExists("product", "slug", p.Slug)
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}

// traceable hides not-found outcomes from span status.
func traceable(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

type setBuilder struct {
	clauses []string
	args    []any
}

func newSetBuilder() *setBuilder {
	return &setBuilder{}
}

func (b *setBuilder) add(column string, value any) {
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

// addIf adds column when o is set, passing the value through conv if given.
func addIf[T any](b *setBuilder, column string, o domain.Optional[T], conv func(T) any) {
	if !o.Set {
		return
	}
	if conv != nil {
		b.add(column, conv(o.Value))
		return
	}
	b.add(column, o.Value)
}
