package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/ingest/progress"
	"github.com/redis/go-redis/v9"
)

const runStateKeyPrefix = "mosaic:import:run:"

// RunState is the externally visible snapshot of an in-flight import,
// readable by API handlers while the worker owns the run.
type RunState struct {
	Current     int            `json:"current"`
	Total       int            `json:"total"`
	Percent     float64        `json:"percent"`
	CurrentFile string         `json:"current_file,omitempty"`
	Stats       progress.Stats `json:"stats"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RedisProgressPublisher mirrors progress callbacks into a TTL'd Redis key
// keyed by import run id. Publish failures are logged and dropped: progress
// visibility must never slow the pipeline.
type RedisProgressPublisher struct {
	client *redis.Client
	runID  string
	ttl    time.Duration

	state RunState
}

func NewRedisProgressPublisher(client *redis.Client, runID string, ttl time.Duration) *RedisProgressPublisher {
	return &RedisProgressPublisher{client: client, runID: runID, ttl: ttl}
}

func (p *RedisProgressPublisher) OnProgress(current, total int, percent float64) {
	p.state.Current = current
	p.state.Total = total
	p.state.Percent = percent
	p.publish()
}

func (p *RedisProgressPublisher) OnFileChange(filename string) {
	p.state.CurrentFile = filename
	p.publish()
}

func (p *RedisProgressPublisher) OnStatsUpdate(stats progress.Stats) {
	p.state.Stats = stats
	p.publish()
}

func (p *RedisProgressPublisher) publish() {
	p.state.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(p.state)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.client.Set(ctx, runStateKeyPrefix+p.runID, payload, p.ttl).Err(); err != nil {
		logger.Log.WithError(err).WithField("run_id", p.runID).Debug("failed to publish run state")
	}
}

// FetchRunState reads the published state for a run, or nil when absent.
func FetchRunState(ctx context.Context, client *redis.Client, runID string) (*RunState, error) {
	payload, err := client.Get(ctx, runStateKeyPrefix+runID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state RunState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
