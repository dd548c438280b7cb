package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecojiaflow/ecolojia/internal/service"
	"github.com/ecojiaflow/ecolojia/pkg/health"
	"github.com/ecojiaflow/ecolojia/pkg/middleware"
)

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	ServiceName      string
	StrictValidation bool
	// RequestTimeout bounds product routes; AdminTimeout bounds admin
	// routes, which walk the whole catalog.
	RequestTimeout time.Duration
	AdminTimeout   time.Duration
	AdminCIDRs     []string
	PprofCIDRs       []string
	CORS             middleware.CORSConfig
}

// NewRouter creates a chi router with all catalog routes registered.
func NewRouter(
	catalog *service.CatalogService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.AdminTimeout <= 0 {
		cfg.AdminTimeout = 10 * time.Minute
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	productHandler := NewProductHandler(catalog, cfg.StrictValidation, logger)
	adminHandler := NewAdminHandler(catalog, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/products", func(r chi.Router) {
			r.Use(chimw.Timeout(cfg.RequestTimeout))
			r.Get("/", productHandler.ListProducts)
			r.Post("/", productHandler.CreateProduct)
			r.Get("/{idOrSlug}", productHandler.GetProduct)
			r.Put("/{id}", productHandler.UpdateProduct)
			r.Delete("/{id}", productHandler.DeleteProduct)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.IPAllowlist(cfg.AdminCIDRs, logger))
			r.Use(chimw.Timeout(cfg.AdminTimeout))
			r.Post("/reindex", adminHandler.Reindex)
		})
	})

	return r
}
