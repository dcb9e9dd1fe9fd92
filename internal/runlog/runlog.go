// Package runlog keeps the latest run reports of each stage in Redis.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/replenishment/internal/shared"
)

const (
	keyPrefix      = "replenish:run"
	historyLimit   = 20
	publishChannel = "replenish.runs"
)

// DefaultTTL applies when the store is created without a ttl.
const DefaultTTL = 7 * 24 * time.Hour

// Report summarises one stage run.
type Report struct {
	Stage      string          `json:"stage"`
	TraceID    string          `json:"traceId"`
	OK         bool            `json:"ok"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	DurationMs int64           `json:"durationMs"`
	Writes     int             `json:"writes"`
	Skipped    int             `json:"skipped"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Store wraps Redis with TTL-bound run reports.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore instantiates the store. A nil client disables persistence.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Save records report as the latest run of its stage and prepends it to the history.
func (s *Store) Save(ctx context.Context, report Report) error {
	if s == nil || s.client == nil {
		return nil
	}
	if report.Stage == "" {
		return errors.New("runlog: stage required")
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, lastKey(report.Stage), raw, s.ttl)
		pipe.LPush(ctx, historyKey(report.Stage), raw)
		pipe.LTrim(ctx, historyKey(report.Stage), 0, historyLimit-1)
		pipe.Expire(ctx, historyKey(report.Stage), s.ttl)
		pipe.Publish(ctx, publishChannel, report.Stage+":"+report.TraceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("runlog: save %s: %w", report.Stage, err)
	}
	return nil
}

// Last returns the latest report of stage or shared.ErrNotFound.
func (s *Store) Last(ctx context.Context, stage string) (Report, error) {
	if s == nil || s.client == nil {
		return Report{}, shared.ErrNotFound
	}
	payload, err := s.client.Get(ctx, lastKey(stage)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, shared.ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("runlog: load %s: %w", stage, err)
	}
	var report Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return Report{}, fmt.Errorf("runlog: decode %s: %w", stage, err)
	}
	return report, nil
}

// History returns up to limit reports of stage, newest first.
func (s *Store) History(ctx context.Context, stage string, limit int) ([]Report, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	items, err := s.client.LRange(ctx, historyKey(stage), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("runlog: history %s: %w", stage, err)
	}
	reports := make([]Report, 0, len(items))
	for _, item := range items {
		var report Report
		if err := json.Unmarshal([]byte(item), &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func lastKey(stage string) string {
	return strings.Join([]string{keyPrefix, stage}, ":")
}

func historyKey(stage string) string {
	return strings.Join([]string{keyPrefix, stage, "history"}, ":")
}
