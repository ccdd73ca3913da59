package timeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImportStatus is the lifecycle state of an import run. Transitions only
// move forward: pending -> running -> completed | failed | cancelled.
type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportRunning   ImportStatus = "running"
	ImportCompleted ImportStatus = "completed"
	ImportFailed    ImportStatus = "failed"
	ImportCancelled ImportStatus = "cancelled"
)

// ImportSource is a registered provenance record for a data origin.
type ImportSource struct {
	ID          uuid.UUID         `json:"id" gorm:"primaryKey;column:id"`
	CreatedAt   time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"column:updated_at"`
	SourceType  SourceType        `json:"source_type" gorm:"column:source_type"`
	Name        string            `json:"name" gorm:"column:name"`
	Description string            `json:"description,omitempty" gorm:"column:description"`
	Config      datatypes.JSONMap `json:"config,omitempty" gorm:"column:config"`
	IsActive    bool              `json:"is_active" gorm:"column:is_active"`
}

func (ImportSource) TableName() string { return "import_sources" }

// NewImportSource builds an active source record.
func NewImportSource(sourceType SourceType, name, description string) *ImportSource {
	now := time.Now().UTC()
	return &ImportSource{
		ID:          uuid.New(),
		CreatedAt:   now,
		UpdatedAt:   now,
		SourceType:  sourceType,
		Name:        name,
		Description: description,
		IsActive:    true,
	}
}

// ImportRun is one execution of the ingestion pipeline against a path.
// The record is owned by exactly one coordinator invocation; only the
// progress tracker mutates it while the run is live.
type ImportRun struct {
	ID           uuid.UUID    `json:"id" gorm:"primaryKey;column:id"`
	SourceID     uuid.UUID    `json:"source_id" gorm:"column:source_id;index"`
	StartedAt    time.Time    `json:"started_at" gorm:"column:started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" gorm:"column:completed_at"`
	Status       ImportStatus `json:"status" gorm:"column:status"`
	ErrorMessage string       `json:"error_message,omitempty" gorm:"column:error_message"`
	FileHash     string       `json:"file_hash,omitempty" gorm:"column:file_hash;index"`

	EntitiesFound   int `json:"entities_found" gorm:"column:entities_found"`
	EntitiesCreated int `json:"entities_created" gorm:"column:entities_created"`
	EntitiesUpdated int `json:"entities_updated" gorm:"column:entities_updated"`
	EntitiesSkipped int `json:"entities_skipped" gorm:"column:entities_skipped"`
	EntitiesFailed  int `json:"entities_failed" gorm:"column:entities_failed"`

	ProgressCurrent int    `json:"progress_current" gorm:"column:progress_current"`
	ProgressTotal   int    `json:"progress_total" gorm:"column:progress_total"`
	CurrentFile     string `json:"current_file,omitempty" gorm:"column:current_file"`
}

func (ImportRun) TableName() string { return "import_runs" }

// NewImportRun creates a pending run tied to a source.
func NewImportRun(sourceID uuid.UUID, fileHash string) *ImportRun {
	return &ImportRun{
		ID:        uuid.New(),
		SourceID:  sourceID,
		StartedAt: time.Now().UTC(),
		Status:    ImportPending,
		FileHash:  fileHash,
	}
}

// IsFinished reports whether the run reached a terminal status.
func (r *ImportRun) IsFinished() bool {
	switch r.Status {
	case ImportCompleted, ImportFailed, ImportCancelled:
		return true
	}
	return false
}

// IsRunning reports whether the run is currently executing.
func (r *ImportRun) IsRunning() bool { return r.Status == ImportRunning }

// ProgressPercent returns completion as 0-100, or 0 if the total is unknown.
func (r *ImportRun) ProgressPercent() float64 {
	if r.ProgressTotal <= 0 {
		return 0
	}
	return float64(r.ProgressCurrent) / float64(r.ProgressTotal) * 100
}
