package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecojiaflow/ecolojia/internal/normalize"
	"github.com/ecojiaflow/ecolojia/internal/repository"
	"github.com/ecojiaflow/ecolojia/internal/service"
	apperrors "github.com/ecojiaflow/ecolojia/pkg/errors"
	"github.com/ecojiaflow/ecolojia/pkg/httputil"
	"github.com/ecojiaflow/ecolojia/pkg/pagination"
	"github.com/ecojiaflow/ecolojia/pkg/validator"
)

const maxBodyBytes = 1 << 20

// ProductHandler handles HTTP requests for product endpoints.
type ProductHandler struct {
	service *service.CatalogService
	strict  bool
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler. In strict mode a
// missing or blank title or description is rejected instead of replaced by
// a placeholder.
func NewProductHandler(svc *service.CatalogService, strict bool, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		strict:  strict,
		logger:  logger,
	}
}

// --- Request DTOs ---

// strictCreateRequest holds the fields strict mode requires on create.
type strictCreateRequest struct {
	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
}

// strictUpdateRequest rejects blanking a required field on update.
type strictUpdateRequest struct {
	Title       *string `json:"title" validate:"omitnil,notblank"`
	Description *string `json:"description" validate:"omitnil,notblank"`
}

// --- Handlers ---

// ListProducts handles GET /api/v1/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.ProductFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if v := r.URL.Query().Get("category"); v != "" {
		filter.Category = &v
	}
	if v := r.URL.Query().Get("brand"); v != "" {
		filter.Brand = &v
	}

	products, total, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, pagination.NewResult(products, total, params))
}

// GetProduct handles GET /api/v1/products/{idOrSlug}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "idOrSlug")
	if key == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("product id or slug is required"), h.logger)
		return
	}

	product, err := h.service.GetProduct(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, product)
}

// CreateProduct handles POST /api/v1/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeRaw(w, r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if h.strict {
		req := strictCreateRequest{Title: stringField(raw, normalize.FieldTitle), Description: stringField(raw, normalize.FieldDescription)}
		if err := validator.Validate(req); err != nil {
			httputil.WriteValidationError(w, r, err)
			return
		}
	}

	product, err := h.service.SubmitProduct(r.Context(), raw)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, product)
}

// UpdateProduct handles PUT /api/v1/products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	raw, err := decodeRaw(w, r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if h.strict {
		req := strictUpdateRequest{Title: optionalStringField(raw, normalize.FieldTitle), Description: optionalStringField(raw, normalize.FieldDescription)}
		if err := validator.Validate(req); err != nil {
			httputil.WriteValidationError(w, r, err)
			return
		}
	}

	product, err := h.service.UpdateProduct(r.Context(), id, raw)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/v1/products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	deletion, err := h.service.RemoveProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, deletion)
}

// decodeRaw reads the body as a JSON object. Numbers are kept as
// json.Number so large integers survive. An empty body is an empty object.
func decodeRaw(w http.ResponseWriter, r *http.Request) (normalize.RawProduct, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw normalize.RawProduct
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return normalize.RawProduct{}, nil
		}
		return nil, apperrors.InvalidInput("invalid request body: " + err.Error())
	}
	if raw == nil {
		raw = normalize.RawProduct{}
	}
	return raw, nil
}

func stringField(raw normalize.RawProduct, key string) string {
	s, _ := raw[key].(string)
	return s
}

// optionalStringField returns nil when key is absent. A present value that
// is not a string reads as blank.
func optionalStringField(raw normalize.RawProduct, key string) *string {
	if _, ok := raw[key]; !ok {
		return nil
	}
	s := stringField(raw, key)
	return &s
}
