package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mosaic-archive/mosaic/pkg/common/kafka"
	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/common/models"
	"github.com/mosaic-archive/mosaic/pkg/ingest"
	"github.com/mosaic-archive/mosaic/pkg/ingest/hooks"
	"github.com/mosaic-archive/mosaic/pkg/ingest/progress"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
	"github.com/redis/go-redis/v9"
)

// Worker consumes import jobs and drives the ingestion coordinator. Failures
// are classified: fatal jobs go straight to the dead-letter topic, transient
// ones are republished with exponential backoff until the retry budget runs
// out.
type Worker struct {
	store    ingest.Store
	registry *ingest.Registry
	hooks    *hooks.Registry
	producer *kafka.Producer // import-jobs topic, used for retries
	dlq      *kafka.Producer
	redis    *redis.Client // optional; nil disables run-state publishing

	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	runStateTTL time.Duration
	coordOpts   []ingest.CoordinatorOption

	sleep func(time.Duration)
}

type WorkerOption func(*Worker)

// WithRetryPolicy overrides the retry budget and backoff bounds.
func WithRetryPolicy(maxRetries int, base, max time.Duration) WorkerOption {
	return func(w *Worker) {
		w.maxRetries = maxRetries
		w.backoffBase = base
		w.backoffMax = max
	}
}

// WithRunStatePublishing mirrors progress into Redis under the run id.
func WithRunStatePublishing(client *redis.Client, ttl time.Duration) WorkerOption {
	return func(w *Worker) {
		w.redis = client
		w.runStateTTL = ttl
	}
}

// WithCoordinatorOptions forwards options to each per-job coordinator.
func WithCoordinatorOptions(opts ...ingest.CoordinatorOption) WorkerOption {
	return func(w *Worker) { w.coordOpts = opts }
}

func NewWorker(store ingest.Store, registry *ingest.Registry, hookRegistry *hooks.Registry, producer, dlq *kafka.Producer, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:       store,
		registry:    registry,
		hooks:       hookRegistry,
		producer:    producer,
		dlq:         dlq,
		maxRetries:  3,
		backoffBase: 60 * time.Second,
		backoffMax:  10 * time.Minute,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle is the Kafka consumer entrypoint. It never returns an error for
// job-level failures (those are resolved by retry or DLQ); the returned
// error only signals an undecodable event.
func (w *Worker) Handle(ctx context.Context, event models.Event) error {
	job, err := decodeJob(event)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).Error("dropping undecodable import job")
		return err
	}

	result, err := w.process(ctx, job)
	if err != nil {
		w.resolveFailure(ctx, job, err)
		return nil
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":  result.ImportRunID,
		"status":  result.Status,
		"created": result.Created,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Info("Import job finished")
	return nil
}

func decodeJob(event models.Event) (*models.ImportJob, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	var job models.ImportJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, err
	}
	if job.ImportRunID == "" || job.Path == "" {
		return nil, fmt.Errorf("import job missing run id or path")
	}
	return &job, nil
}

func (w *Worker) process(ctx context.Context, job *models.ImportJob) (*models.ImportJobResult, error) {
	entityTypes := make([]timeline.EntityType, 0, len(job.DataTypes))
	for _, dt := range job.DataTypes {
		et, err := timeline.ParseEntityType(dt)
		if err != nil {
			return nil, err
		}
		entityTypes = append(entityTypes, et)
	}

	var callback progress.Callback = progress.NoOpCallback{}
	if w.redis != nil {
		callback = NewRedisProgressPublisher(w.redis, job.ImportRunID, w.runStateTTL)
	}

	opts := append([]ingest.CoordinatorOption{ingest.WithProgressCallback(callback)}, w.coordOpts...)
	coordinator := ingest.NewCoordinator(w.store, w.registry, w.hooks, opts...)

	result, err := coordinator.Run(ctx, job.Path, entityTypes, nil, nil)
	if err != nil {
		return nil, err
	}

	return &models.ImportJobResult{
		ImportRunID: result.ImportRun.ID.String(),
		Status:      string(result.ImportRun.Status),
		Created:     result.Stats.Created,
		Updated:     result.Stats.Updated,
		Skipped:     result.Stats.Skipped,
		Failed:      result.Stats.Failed,
	}, nil
}

func (w *Worker) resolveFailure(ctx context.Context, job *models.ImportJob, cause error) {
	log := logger.Log.WithError(cause).WithFields(map[string]interface{}{
		"run_id":  job.ImportRunID,
		"path":    job.Path,
		"attempt": job.Attempt,
	})

	class := Classify(cause)
	if class == ClassTransient && job.Attempt < w.maxRetries {
		delay := w.backoff(job.Attempt)
		log.WithField("delay", delay.String()).Warn("Transient import failure, retrying")
		w.sleep(delay)
		if _, err := w.producer.PublishEvent(ctx, EventImportJob, string(timeline.SourceGeneric),
			jobData(job.ImportRunID, job.Path, job.DataTypes, job.Attempt+1)); err != nil {
			log.WithError(err).Error("failed to republish import job")
			w.deadLetter(ctx, job, cause)
		}
		return
	}

	switch class {
	case ClassTransient:
		log.Error("Import retry budget exhausted")
	case ClassFatal:
		log.Error("Fatal import failure")
	default:
		log.Error("Unclassified import failure, not retrying")
	}

	w.markRunFailed(ctx, job.ImportRunID, cause)
	w.deadLetter(ctx, job, cause)
}

func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.backoffBase << attempt
	if delay > w.backoffMax || delay <= 0 {
		return w.backoffMax
	}
	return delay
}

func (w *Worker) markRunFailed(ctx context.Context, importRunID string, cause error) {
	runID, err := uuid.Parse(importRunID)
	if err != nil {
		return
	}
	run, err := w.store.GetImportRun(ctx, runID)
	if err != nil || run == nil || run.IsFinished() {
		return
	}

	now := nowUTC()
	run.Status = timeline.ImportFailed
	run.ErrorMessage = cause.Error()
	run.CompletedAt = &now
	if err := w.store.SaveImportRun(ctx, run); err != nil {
		logger.Log.WithError(err).WithField("run_id", importRunID).Error("failed to mark import run failed")
	}
}

func (w *Worker) deadLetter(ctx context.Context, job *models.ImportJob, cause error) {
	if w.dlq == nil {
		return
	}
	data := jobData(job.ImportRunID, job.Path, job.DataTypes, job.Attempt)
	data["error"] = cause.Error()
	if _, err := w.dlq.PublishEvent(ctx, EventImportDLQ, string(timeline.SourceGeneric), data); err != nil {
		logger.Log.WithError(err).WithField("run_id", job.ImportRunID).Error("failed to dead-letter import job")
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
