package http

import (
	"log/slog"
	"net/http"

	"github.com/ecojiaflow/ecolojia/internal/service"
	"github.com/ecojiaflow/ecolojia/pkg/httputil"
)

// AdminHandler serves maintenance endpoints.
type AdminHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(svc *service.CatalogService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, logger: logger}
}

// Reindex handles POST /api/v1/admin/reindex
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Reindex(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}
