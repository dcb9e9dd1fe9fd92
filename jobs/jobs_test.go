package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/pipeline"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

type stubRunner struct {
	stage pipeline.Stage
	opts  pipeline.Options
	err   error
}

func (s *stubRunner) Run(_ context.Context, stage pipeline.Stage, opts pipeline.Options) (pipeline.Outcome, error) {
	s.stage = stage
	s.opts = opts
	return pipeline.Outcome{Stage: stage, TraceID: "trace-1", OK: s.err == nil}, s.err
}

func TestTaskTypeRoundTrip(t *testing.T) {
	for _, stage := range pipeline.Stages() {
		got, ok := StageFromTaskType(TaskType(stage))
		require.True(t, ok)
		require.Equal(t, stage, got)
	}
	_, ok := StageFromTaskType("mail:send")
	require.False(t, ok)
}

func TestNewStageTaskRejectsUnknownStage(t *testing.T) {
	_, err := NewStageTask(StagePayload{Stage: "bogus"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestStageJobRunsStageFromTaskType(t *testing.T) {
	runner := &stubRunner{}
	job := NewStageJob(runner, nil)
	task, err := NewStageTask(StagePayload{Stage: pipeline.StageMovements, StartDate: "2026-09-01", EndDate: "2026-09-10"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, pipeline.StageMovements, runner.stage)
	require.Equal(t, "2026-09-01", runner.opts.StartDate)
	require.Equal(t, "2026-09-10", runner.opts.EndDate)
}

func TestStageJobSkipsRetryOnBadInput(t *testing.T) {
	job := NewStageJob(&stubRunner{}, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskType(pipeline.StageDemand), []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask("replenish:unknown", nil))
	require.ErrorIs(t, err, asynq.SkipRetry)

	job = NewStageJob(&stubRunner{err: shared.ErrValidation}, nil)
	err = job.Handle(context.Background(), asynq.NewTask(TaskType(pipeline.StageMovements), nil))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestStageJobPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	job := NewStageJob(&stubRunner{err: boom}, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskType(pipeline.StagePipeline), nil))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlersCoverEveryStage(t *testing.T) {
	handlers := NewStageJob(&stubRunner{}, nil).Handlers()
	require.Len(t, handlers, len(pipeline.Stages()))
}

func TestPipelineCron(t *testing.T) {
	entries, err := PipelineCron("0 6 * * *", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, TaskType(pipeline.StagePipeline), entries[0].Task.Type())

	var payload StagePayload
	require.NoError(t, json.Unmarshal(entries[0].Task.Payload(), &payload))
	require.Equal(t, pipeline.StagePipeline, payload.Stage)
	require.True(t, payload.RequestedAt.IsZero())
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3}}, nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 3, stats.Pending)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(stubInspector{err: errors.New("redis down")}, nil).MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
