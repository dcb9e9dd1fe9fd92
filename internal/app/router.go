package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/observability"
	pipelinehttp "github.com/odyssey-erp/replenishment/internal/pipeline/http"
	"github.com/odyssey-erp/replenishment/internal/platform/httpx"
	"github.com/odyssey-erp/replenishment/internal/shared"
	"github.com/odyssey-erp/replenishment/jobs"
)

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *zap.Logger
	Config          *Config
	PipelineHandler *pipelinehttp.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
	HealthChecks    map[string]HealthCheck
}

// NewRouter constructs the chi.Router with replenishment defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthz(params.HealthChecks))

	rateLimit := 0
	if params.Config != nil {
		rateLimit = params.Config.RateLimitPerMinute
	}
	if params.PipelineHandler != nil {
		params.PipelineHandler.MountRoutes(r, rateLimit)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.RespondError(w, fmt.Errorf("%w: route %s", shared.ErrNotFound, req.URL.Path))
	})

	return r
}

type healthView struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := healthView{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			view.Checks = make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(ctx); err != nil {
					view.Checks[name] = err.Error()
					view.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				view.Checks[name] = "ok"
			}
		}
		httpx.JSON(w, status, view)
	}
}
