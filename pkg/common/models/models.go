package models

import (
	"time"
)

// Event is the envelope for every message published to Kafka.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // import-job, import-retry, import-dlq
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// ImportJob is the payload of a background import task.
type ImportJob struct {
	ImportRunID string   `json:"import_run_id"`
	Path        string   `json:"path"`
	DataTypes   []string `json:"data_types,omitempty"`
	Attempt     int      `json:"attempt"`
}

// ImportJobResult summarises a finished import task.
type ImportJobResult struct {
	ImportRunID string `json:"import_run_id"`
	Status      string `json:"status"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
}

// SubmitImportRequest is the HTTP request to queue an import.
type SubmitImportRequest struct {
	Path      string   `json:"path"`
	DataTypes []string `json:"data_types,omitempty"`
}

// SubmitImportResponse is returned once the job is queued.
type SubmitImportResponse struct {
	JobID       string    `json:"job_id"`
	ImportRunID string    `json:"import_run_id"`
	Timestamp   time.Time `json:"timestamp"`
}
