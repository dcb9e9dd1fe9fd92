// Package pipelinehttp exposes the replenishment stages over HTTP.
package pipelinehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/odyssey-erp/replenishment/internal/pipeline"
	"github.com/odyssey-erp/replenishment/internal/platform/httpx"
)

const (
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "authorization, x-client-info, apikey, content-type"
)

var stageRoutes = map[string]pipeline.Stage{
	"/replenishment/movements":              pipeline.StageMovements,
	"/replenishment/demand":                 pipeline.StageDemand,
	"/replenishment/in-transit":             pipeline.StageInTransit,
	"/replenishment/procurement/quantities": pipeline.StageQuantities,
	"/replenishment/procurement/schedule":   pipeline.StageSchedule,
	"/replenishment/pipeline":               pipeline.StagePipeline,
}

// MountRoutes registers the replenishment endpoints onto the router.
// requestsPerMinute throttles stage triggers per client IP; zero disables it.
func (h *Handler) MountRoutes(r chi.Router, requestsPerMinute int) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		if requestsPerMinute > 0 {
			gr.Use(httprate.Limit(requestsPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					httpx.JSON(w, http.StatusTooManyRequests, errorBody{
						TraceID: uuid.NewString(),
						Error:   http.StatusText(http.StatusTooManyRequests),
					})
				}),
			))
		}
		for path, stage := range stageRoutes {
			gr.HandleFunc(path, cors(h.handleStage(stage)))
		}
	})
	r.Get("/replenishment/periods", h.handlePeriods)
	r.Get("/replenishment/runs/{stage}", h.handleLastRun)
}

// cors answers preflight requests and rejects methods other than GET and POST.
func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", allowMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet, http.MethodPost:
			next(w, r)
		default:
			w.Header().Set("Allow", allowMethods)
			httpx.JSON(w, http.StatusMethodNotAllowed, errorBody{
				TraceID: uuid.NewString(),
				Error:   "method not allowed",
			})
		}
	}
}
