package pipelinehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/demand"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/pipeline"
	"github.com/odyssey-erp/replenishment/internal/runlog"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

type stubRunner struct {
	stage   pipeline.Stage
	opts    pipeline.Options
	outcome pipeline.Outcome
	err     error
	report  runlog.Report
	lastErr error
}

func (s *stubRunner) Run(_ context.Context, stage pipeline.Stage, opts pipeline.Options) (pipeline.Outcome, error) {
	s.stage = stage
	s.opts = opts
	out := s.outcome
	out.Stage = stage
	if out.TraceID == "" {
		out.TraceID = "trace-1"
	}
	if s.err != nil {
		out.Error = s.err.Error()
	} else {
		out.OK = true
	}
	return out, s.err
}

func (s *stubRunner) LastReport(_ context.Context, stage pipeline.Stage) (runlog.Report, error) {
	if s.lastErr != nil {
		return runlog.Report{}, s.lastErr
	}
	r := s.report
	r.Stage = string(stage)
	return r, nil
}

func newRouter(t *testing.T, runner *stubRunner) http.Handler {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	h := NewHandler(nil, runner, periods.NewResolver(loc, periods.NewLabeler("es")), 2)
	h.WithNow(func() time.Time { return time.Date(2026, time.October, 15, 12, 0, 0, 0, loc) })
	r := chi.NewRouter()
	h.MountRoutes(r, 0)
	return r
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestOptionsReturnsCORS(t *testing.T) {
	router := newRouter(t, &stubRunner{})
	req := httptest.NewRequest(http.MethodOptions, "/replenishment/demand", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "apikey")
}

func TestDisallowedMethodReturnsJSON405(t *testing.T) {
	runner := &stubRunner{}
	router := newRouter(t, runner)
	req := httptest.NewRequest(http.MethodDelete, "/replenishment/pipeline", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["ok"])
	require.NotEmpty(t, body["traceId"])
	require.Empty(t, runner.stage)
}

func TestMovementsForwardsDateRange(t *testing.T) {
	runner := &stubRunner{}
	router := newRouter(t, runner)
	req := httptest.NewRequest(http.MethodGet, "/replenishment/movements?start_date=2026-09-01&end_date=2026-09-10", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, pipeline.StageMovements, runner.stage)
	require.Equal(t, "2026-09-01", runner.opts.StartDate)
	require.Equal(t, "2026-09-10", runner.opts.EndDate)
	body := decode(t, rec)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "trace-1", body["traceId"])
}

func TestDemandPostDecodesManualOverride(t *testing.T) {
	runner := &stubRunner{outcome: pipeline.Outcome{Result: demand.Result{VariantsUpdated: 3}}}
	router := newRouter(t, runner)
	req := httptest.NewRequest(http.MethodPost, "/replenishment/demand", strings.NewReader(`{"periodA":[{"sku":"A-1","qtyOut":4}]}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, runner.opts.Manual)
	require.Equal(t, []demand.ManualLine{{SKU: "A-1", QtyOut: 4}}, runner.opts.Manual.PeriodA)
	require.Nil(t, runner.opts.Manual.PeriodB)
	require.EqualValues(t, 3, decode(t, rec)["variantsUpdated"])
}

func TestDemandWithoutBodyHasNoOverride(t *testing.T) {
	runner := &stubRunner{}
	router := newRouter(t, runner)
	req := httptest.NewRequest(http.MethodPost, "/replenishment/demand", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, runner.opts.Manual)
}

func TestDemandMalformedBodyIs400(t *testing.T) {
	runner := &stubRunner{}
	router := newRouter(t, runner)
	req := httptest.NewRequest(http.MethodPost, "/replenishment/demand", strings.NewReader(`{"periodA":`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, runner.stage)
}

func TestStageErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: shared.NewUpstreamError("list purchase orders", 500, nil, nil), want: http.StatusBadGateway},
		{err: shared.ErrConfiguration, want: http.StatusInternalServerError},
		{err: shared.ErrValidation, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		router := newRouter(t, &stubRunner{err: tc.err})
		req := httptest.NewRequest(http.MethodPost, "/replenishment/in-transit", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, tc.want, rec.Code)
		body := decode(t, rec)
		require.Equal(t, false, body["ok"])
		require.NotEmpty(t, body["error"])
	}
}

func TestPeriodsPreview(t *testing.T) {
	router := newRouter(t, &stubRunner{})
	req := httptest.NewRequest(http.MethodGet, "/replenishment/periods", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body periodsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2026-10-15", body.Today)
	require.Equal(t, "movement-2026-10-a", body.Periods.A.Signature)
	require.Equal(t, "movement-2026-09-b", body.Periods.B.Signature)
	require.Len(t, body.Horizon, 4)
	require.Equal(t, "1–15 oct 2026", body.Horizon[0].Label)
}

func TestLastRun(t *testing.T) {
	runner := &stubRunner{report: runlog.Report{TraceID: "t-9", OK: true}}
	router := newRouter(t, runner)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/replenishment/runs/schedule", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body reportView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "schedule", body.Report.Stage)
	require.Equal(t, "t-9", body.Report.TraceID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/replenishment/runs/bogus", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	runner.lastErr = shared.ErrNotFound
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/replenishment/runs/demand", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
