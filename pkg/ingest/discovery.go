package ingest

import (
	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/ingest/archive"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// DiscoveryResult describes what a path contains before any import commits.
// It is computed fresh per call and never persisted. Any extraction done
// during discovery is scoped to the call, so ExtractPath is informational
// only; importing later re-extracts.
type DiscoveryResult struct {
	// Ingester is the matched adapter, nil for generic sources.
	Ingester  Ingester
	IsGeneric bool

	AvailableEntities map[timeline.EntityType]int
	SourcePath        string
	ExtractPath       string
	Metadata          map[string]string
}

// TotalEntities sums counts across all entity types.
func (d *DiscoveryResult) TotalEntities() int {
	total := 0
	for _, c := range d.AvailableEntities {
		total += c
	}
	return total
}

// HasContent reports whether any ingestable content was found.
func (d *DiscoveryResult) HasContent() bool {
	return len(d.AvailableEntities) > 0
}

// Discovery probes paths against a registry without importing anything.
type Discovery struct {
	registry *Registry
}

func NewDiscovery(registry *Registry) *Discovery {
	return &Discovery{registry: registry}
}

// Discover identifies the source type of a file or directory and scans for
// available entity types. Archives are extracted into a temp directory for
// the duration of the call only.
func (d *Discovery) Discover(path string) (*DiscoveryResult, error) {
	contentPath, cleanup, err := archive.Extracted(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	logger.Log.WithField("path", path).Info("Discovering content")

	extractPath := ""
	if contentPath != path {
		extractPath = contentPath
	}

	if ing := d.registry.Detect(path); ing != nil {
		logger.Log.WithField("source_type", string(ing.SourceType())).Info("Detected source type")

		detection, err := ing.DetectContents(contentPath)
		if err != nil {
			return nil, err
		}
		return &DiscoveryResult{
			Ingester:          ing,
			IsGeneric:         false,
			AvailableEntities: detection.EntityCounts,
			SourcePath:        path,
			ExtractPath:       extractPath,
			Metadata:          detection.Metadata,
		}, nil
	}

	logger.Log.Debug("No source pattern matched, trying generic detection")

	counts, err := d.registry.DetectGeneric(contentPath)
	if err != nil {
		return nil, err
	}
	return &DiscoveryResult{
		Ingester:          nil,
		IsGeneric:         true,
		AvailableEntities: counts,
		SourcePath:        path,
		ExtractPath:       extractPath,
		Metadata:          map[string]string{},
	}, nil
}
