package pipelinehttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/demand"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/pipeline"
	"github.com/odyssey-erp/replenishment/internal/platform/httpx"
	"github.com/odyssey-erp/replenishment/internal/runlog"
)

// Runner executes stages and exposes their last reports.
type Runner interface {
	Run(ctx context.Context, stage pipeline.Stage, opts pipeline.Options) (pipeline.Outcome, error)
	LastReport(ctx context.Context, stage pipeline.Stage) (runlog.Report, error)
}

// Handler serves the replenishment trigger surface.
type Handler struct {
	logger        *zap.Logger
	runner        Runner
	resolver      *periods.Resolver
	horizonMonths int
	now           func() time.Time
}

// NewHandler constructs the pipeline HTTP handler.
func NewHandler(logger *zap.Logger, runner Runner, resolver *periods.Resolver, horizonMonths int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:        logger,
		runner:        runner,
		resolver:      resolver,
		horizonMonths: horizonMonths,
		now:           time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type errorBody struct {
	OK      bool   `json:"ok"`
	TraceID string `json:"traceId"`
	Error   string `json:"error"`
}

func (h *Handler) handleStage(stage pipeline.Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := pipeline.Options{}
		switch stage {
		case pipeline.StageMovements:
			opts.StartDate = r.URL.Query().Get("start_date")
			opts.EndDate = r.URL.Query().Get("end_date")
		case pipeline.StageDemand:
			if r.Method == http.MethodPost {
				var override *demand.ManualOverride
				if err := httpx.DecodeJSON(r, &override); err != nil {
					h.respondError(w, uuid.NewString(), err)
					return
				}
				opts.Manual = override
			}
		}
		outcome, err := h.runner.Run(r.Context(), stage, opts)
		if err != nil {
			h.logger.Warn("stage request failed",
				zap.String("stage", string(stage)),
				zap.String("trace_id", outcome.TraceID),
				zap.Error(err),
			)
		}
		httpx.JSON(w, httpx.StatusFor(err), outcome)
	}
}

type periodsView struct {
	OK       bool             `json:"ok"`
	TraceID  string           `json:"traceId"`
	Timezone string           `json:"timezone"`
	Today    string           `json:"today"`
	Periods  periods.Pair     `json:"periods"`
	Horizon  []periods.Window `json:"horizon"`
}

func (h *Handler) handlePeriods(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	httpx.JSON(w, http.StatusOK, periodsView{
		OK:       true,
		TraceID:  uuid.NewString(),
		Timezone: h.resolver.Location().String(),
		Today:    h.resolver.Today(now).Format(periods.DateLayout),
		Periods:  h.resolver.Resolve(now),
		Horizon:  h.resolver.Horizon(now, h.horizonMonths),
	})
}

type reportView struct {
	OK      bool          `json:"ok"`
	TraceID string        `json:"traceId"`
	Report  runlog.Report `json:"report"`
}

func (h *Handler) handleLastRun(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.NewString()
	stage, err := pipeline.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		h.respondError(w, traceID, err)
		return
	}
	report, err := h.runner.LastReport(r.Context(), stage)
	if err != nil {
		h.respondError(w, traceID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reportView{OK: true, TraceID: traceID, Report: report})
}

func (h *Handler) respondError(w http.ResponseWriter, traceID string, err error) {
	status := httpx.StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("trace_id", traceID), zap.Error(err))
	}
	httpx.JSON(w, status, errorBody{TraceID: traceID, Error: msg})
}
