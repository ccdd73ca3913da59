// Package ingest implements the ingestion coordination engine: source
// discovery, the ingester plugin contract, deduplication, batched
// persistence and progress tracking for import runs.
package ingest

import (
	"iter"
	"time"

	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// Filter bounds ingestion to a datetime window. Ingesters apply it while
// yielding entities.
type Filter struct {
	Since *time.Time
	Until *time.Time
}

// Includes reports whether a timestamp falls inside the filter window.
// A nil timestamp always passes, as does a nil filter.
func (f *Filter) Includes(t *time.Time) bool {
	if f == nil || t == nil {
		return true
	}
	if f.Since != nil && t.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !t.Before(*f.Until) {
		return false
	}
	return true
}

// DetectionResult describes what an ingester found in a source path.
type DetectionResult struct {
	EntityCounts map[timeline.EntityType]int
	Metadata     map[string]string
}

// TotalEntities sums counts across all entity types.
func (d *DetectionResult) TotalEntities() int {
	total := 0
	for _, c := range d.EntityCounts {
		total += c
	}
	return total
}

// IngestFunc produces a lazy, finite, restartable sequence of entities from
// a content path. Per-entity failures are yielded as errors so the caller
// can count them without aborting the stream.
type IngestFunc func(path string, filters *Filter) iter.Seq2[timeline.Entity, error]

// Ingester is the plugin contract every source adapter implements. Adapters
// expose their capabilities through Ingest; an entity type they cannot
// produce is a lookup miss, not a runtime failure.
type Ingester interface {
	// SourceType tags entities produced by this adapter.
	SourceType() timeline.SourceType
	// DetectionPatterns are case-insensitive regexps matched against a
	// path's base name to claim a source.
	DetectionPatterns() []string
	// SupportedEntityTypes lists the entity types the adapter can produce.
	SupportedEntityTypes() []timeline.EntityType
	// Instructions is user-facing markdown describing how to obtain the
	// export this adapter consumes.
	Instructions() string
	// DetectContents scans an extracted source and reports available entity
	// types with estimated counts.
	DetectContents(path string) (*DetectionResult, error)
	// Ingest resolves the producer for an entity type. The second return is
	// false when the adapter does not support that type.
	Ingest(entityType timeline.EntityType) (IngestFunc, bool)
}
