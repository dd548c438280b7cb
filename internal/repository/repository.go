package repository

import (
	"context"

	"github.com/ecojiaflow/ecolojia/internal/domain"
)

// ProductFilter defines filter criteria for listing products.
type ProductFilter struct {
	Category *string
	Brand    *string
	Page     int
	PerPage  int
}

// ProductRepository defines the interface for product persistence operations.
// Every write is committed before the method returns.
type ProductRepository interface {
	// Create inserts a new product. A duplicate id or slug yields
	// apperrors.ErrAlreadyExists.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetBySlug retrieves a product by its URL-friendly slug.
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)

	// List returns one page of products, newest first, with the total count.
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)

	// Update applies the supplied fields of patch and returns the stored row.
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)

	// Delete removes a product and returns the row as it was.
	Delete(ctx context.Context, id string) (*domain.Product, error)

	// SlugExists reports whether any product uses slug.
	SlugExists(ctx context.Context, slug string) (bool, error)

	// ListAfter returns up to limit products with id greater than afterID,
	// ordered by id. An empty afterID starts from the beginning.
	ListAfter(ctx context.Context, afterID string, limit int) ([]domain.Product, error)
}
