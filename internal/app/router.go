package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/jobwork"
	"github.com/boxflow-erp/boxflow-erp/internal/masterdata/materials"
	"github.com/boxflow-erp/boxflow-erp/internal/masterdata/suppliers"
	"github.com/boxflow-erp/boxflow-erp/internal/observability"
	"github.com/boxflow-erp/boxflow-erp/internal/purchasing"
	"github.com/boxflow-erp/boxflow-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SuppliersHandler  *suppliers.Handler
	MaterialsHandler  *materials.Handler
	PurchasingHandler *purchasing.Handler
	InventoryHandler  *inventory.Handler
	JobworkHandler    *jobwork.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Boxflow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.SuppliersHandler != nil {
		r.Route("/masterdata/suppliers", params.SuppliersHandler.MountRoutes)
	}
	if params.MaterialsHandler != nil {
		r.Route("/masterdata/materials", params.MaterialsHandler.MountRoutes)
	}
	if params.PurchasingHandler != nil {
		r.Route("/purchasing", params.PurchasingHandler.MountRoutes)
	}
	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.JobworkHandler != nil {
		r.Route("/jobwork", params.JobworkHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
