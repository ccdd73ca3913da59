package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// EntityStore persists timeline entities and answers content-hash
// existence checks.
type EntityStore interface {
	// ExistsByContentHash reports whether an entity of the given concrete
	// type with this content hash already exists. This is an existence
	// check, not a unique constraint: two concurrent runs over the same
	// content can both pass it. The single-writer-per-run model accepts
	// that.
	ExistsByContentHash(ctx context.Context, entityType timeline.EntityType, contentHash string) (bool, error)
	// CreateEntities inserts a batch of typed entities in one transaction.
	CreateEntities(ctx context.Context, entities []timeline.Entity) error
}

// RunStore persists import provenance records.
type RunStore interface {
	CreateImportSource(ctx context.Context, source *timeline.ImportSource) error
	CreateImportRun(ctx context.Context, run *timeline.ImportRun) error
	SaveImportRun(ctx context.Context, run *timeline.ImportRun) error
	GetImportRun(ctx context.Context, id uuid.UUID) (*timeline.ImportRun, error)
	// FindCompletedRunByFileHash returns the most recent completed run with
	// this file hash, or nil.
	FindCompletedRunByFileHash(ctx context.Context, fileHash string) (*timeline.ImportRun, error)
}

// Store is the full persistence port the coordinator requires.
type Store interface {
	EntityStore
	RunStore
}
