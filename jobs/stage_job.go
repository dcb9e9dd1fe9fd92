package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/pipeline"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// StageRunner executes replenishment stages.
type StageRunner interface {
	Run(ctx context.Context, stage pipeline.Stage, opts pipeline.Options) (pipeline.Outcome, error)
}

// StageJob runs queued stages through the pipeline runner.
type StageJob struct {
	Runner StageRunner
	Logger *zap.Logger
}

// NewStageJob wires dependencies for the stage handler.
func NewStageJob(runner StageRunner, logger *zap.Logger) *StageJob {
	return &StageJob{Runner: runner, Logger: logger}
}

// Handle executes the stage named by the task type.
func (j *StageJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("stage job: runner not configured")
	}
	stage, ok := StageFromTaskType(task.Type())
	if !ok {
		return fmt.Errorf("stage job: unknown task %q: %w", task.Type(), asynq.SkipRetry)
	}
	var payload StagePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	logger := j.log().With(zap.String("task", task.Type()))

	outcome, err := j.Runner.Run(ctx, stage, pipeline.Options{
		StartDate: payload.StartDate,
		EndDate:   payload.EndDate,
	})
	if err != nil {
		logger.Error("stage task failed", zap.String("trace_id", outcome.TraceID), zap.Error(err))
		if errors.Is(err, shared.ErrValidation) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.Info("stage task finished",
		zap.String("trace_id", outcome.TraceID),
		zap.Bool("ok", outcome.OK),
		zap.Int("writes", outcome.Writes),
	)
	return nil
}

// Handlers registers one task handler per stage.
func (j *StageJob) Handlers() []TaskHandler {
	stages := pipeline.Stages()
	handlers := make([]TaskHandler, 0, len(stages))
	for _, stage := range stages {
		handlers = append(handlers, TaskHandler{Type: TaskType(stage), Handler: j.Handle})
	}
	return handlers
}

func (j *StageJob) log() *zap.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return zap.NewNop()
}
