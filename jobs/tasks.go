package jobs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/replenishment/internal/pipeline"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// taskPrefix namespaces replenishment task types.
	taskPrefix = "replenish:"
)

// StagePayload describes one queued stage run.
type StagePayload struct {
	Stage       pipeline.Stage `json:"stage"`
	StartDate   string         `json:"start_date,omitempty"`
	EndDate     string         `json:"end_date,omitempty"`
	RequestedAt time.Time      `json:"requested_at,omitzero"`
}

// TaskType returns the asynq task type of stage.
func TaskType(stage pipeline.Stage) string {
	return taskPrefix + string(stage)
}

// StageFromTaskType reverses TaskType.
func StageFromTaskType(taskType string) (pipeline.Stage, bool) {
	if !strings.HasPrefix(taskType, taskPrefix) {
		return "", false
	}
	stage, err := pipeline.ParseStage(strings.TrimPrefix(taskType, taskPrefix))
	if err != nil {
		return "", false
	}
	return stage, true
}

// NewStageTask constructs an Asynq task for stage. Stage tasks are never
// retried; the next scheduled run converges instead.
func NewStageTask(payload StagePayload) (*asynq.Task, error) {
	if _, err := pipeline.ParseStage(string(payload.Stage)); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskType(payload.Stage), body, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}
