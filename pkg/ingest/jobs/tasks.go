package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mosaic-archive/mosaic/pkg/common/kafka"
	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/ingest"
	"github.com/mosaic-archive/mosaic/pkg/ingest/dedup"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// Event types on the import-jobs topic.
const (
	EventImportJob = "import-job"
	EventImportDLQ = "import-dlq"
)

// Service submits and cancels background import jobs.
type Service struct {
	store    ingest.RunStore
	producer *kafka.Producer
}

func NewService(store ingest.RunStore, producer *kafka.Producer) *Service {
	return &Service{store: store, producer: producer}
}

// Submit creates the ImportSource and ImportRun records synchronously, then
// hands the work to the background transport. Returns the queued job id and
// the import run id.
func (s *Service) Submit(ctx context.Context, path string, dataTypes []string) (jobID, importRunID string, err error) {
	for _, dt := range dataTypes {
		if _, err := timeline.ParseEntityType(dt); err != nil {
			return "", "", err
		}
	}

	source := timeline.NewImportSource(timeline.SourceGeneric, filepath.Base(path), "")
	if err := s.store.CreateImportSource(ctx, source); err != nil {
		return "", "", fmt.Errorf("creating import source: %w", err)
	}

	fileHash := ""
	if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
		if hash, hashErr := dedup.ComputeFileHash(path); hashErr == nil {
			fileHash = hash
		}
	}

	run := timeline.NewImportRun(source.ID, fileHash)
	if err := s.store.CreateImportRun(ctx, run); err != nil {
		return "", "", fmt.Errorf("creating import run: %w", err)
	}

	importRunID = run.ID.String()
	jobID, err = s.producer.PublishEvent(ctx, EventImportJob, string(timeline.SourceGeneric), jobData(importRunID, path, dataTypes, 0))
	if err != nil {
		return "", "", fmt.Errorf("queueing import job: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"job_id": jobID,
		"run_id": importRunID,
		"path":   path,
	}).Info("Import job queued")

	return jobID, importRunID, nil
}

func jobData(importRunID, path string, dataTypes []string, attempt int) map[string]interface{} {
	data := map[string]interface{}{
		"import_run_id": importRunID,
		"path":          path,
		"attempt":       attempt,
	}
	if len(dataTypes) > 0 {
		data["data_types"] = dataTypes
	}
	return data
}

// CancelResult reports the outcome of a cancellation request.
type CancelResult struct {
	Success     bool   `json:"success"`
	ImportRunID string `json:"import_run_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Cancel transitions a not-yet-finished run to CANCELLED with a completion
// timestamp. Cancelling a finished or unknown run is rejected.
func (s *Service) Cancel(ctx context.Context, importRunID string) CancelResult {
	runID, err := uuid.Parse(importRunID)
	if err != nil {
		return CancelResult{Success: false, Error: fmt.Sprintf("invalid import run id: %v", err)}
	}

	run, err := s.store.GetImportRun(ctx, runID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to load import run for cancellation")
		return CancelResult{Success: false, Error: err.Error()}
	}
	if run == nil {
		return CancelResult{Success: false, Error: "ImportRun not found"}
	}
	if run.IsFinished() {
		return CancelResult{Success: false, Error: "Import already finished"}
	}

	now := nowUTC()
	run.Status = timeline.ImportCancelled
	run.CompletedAt = &now
	if err := s.store.SaveImportRun(ctx, run); err != nil {
		logger.Log.WithError(err).Error("failed to cancel import run")
		return CancelResult{Success: false, Error: err.Error()}
	}

	return CancelResult{Success: true, ImportRunID: importRunID}
}
