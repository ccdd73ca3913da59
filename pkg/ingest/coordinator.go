package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/ingest/archive"
	"github.com/mosaic-archive/mosaic/pkg/ingest/dedup"
	"github.com/mosaic-archive/mosaic/pkg/ingest/hooks"
	"github.com/mosaic-archive/mosaic/pkg/ingest/progress"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// DefaultBatchSize bounds how many entities accumulate before a
// persistence flush.
const DefaultBatchSize = 100

// Result is what one coordinator invocation returns. Run-level failures are
// recorded on the ImportRun rather than returned as errors, so callers
// inspect Status.
type Result struct {
	ImportRun *timeline.ImportRun
	Stats     progress.Stats
}

// Success reports whether the run completed normally.
func (r *Result) Success() bool {
	return r.ImportRun.Status == timeline.ImportCompleted
}

// Coordinator ties discovery, extraction, per-entity-type iteration, dedup,
// batching, persistence and progress into one run. One coordinator
// invocation owns its ImportRun exclusively.
type Coordinator struct {
	store     Store
	discovery *Discovery
	registry  *Registry
	hooks     *hooks.Registry

	batchSize  int
	flushEvery int
	callback   progress.Callback
}

// CoordinatorOption tunes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithBatchSize overrides the persistence batch threshold.
func WithBatchSize(n int) CoordinatorOption {
	return func(c *Coordinator) { c.batchSize = n }
}

// WithProgressFlushEvery overrides the progress flush threshold.
func WithProgressFlushEvery(n int) CoordinatorOption {
	return func(c *Coordinator) { c.flushEvery = n }
}

// WithProgressCallback attaches an observer for real-time progress.
func WithProgressCallback(cb progress.Callback) CoordinatorOption {
	return func(c *Coordinator) { c.callback = cb }
}

func NewCoordinator(store Store, registry *Registry, hookRegistry *hooks.Registry, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:      store,
		discovery:  NewDiscovery(registry),
		registry:   registry,
		hooks:      hookRegistry,
		batchSize:  DefaultBatchSize,
		flushEvery: progress.DefaultFlushEvery,
		callback:   progress.NoOpCallback{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the ingestion pipeline for a path. Errors returned here are
// pre-run faults (missing path, discovery failure, record creation); once
// the run record is RUNNING, failures are captured on it instead and Run
// returns a Result with Status FAILED.
func (c *Coordinator) Run(
	ctx context.Context,
	path string,
	entityTypes []timeline.EntityType,
	filters *Filter,
	importSource *timeline.ImportSource,
) (*Result, error) {
	logger.Log.WithField("path", path).Info("Starting ingestion")

	fileHash := ""
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		hash, err := dedup.ComputeFileHash(path)
		if err != nil {
			return nil, err
		}
		fileHash = hash
		logger.Log.WithField("file_hash", fileHash).Debug("source file hash")
	}

	discovery, err := c.discovery.Discover(path)
	if err != nil {
		return nil, err
	}

	if !discovery.HasContent() {
		logger.Log.WithField("path", path).Warn("no ingestable content found")
		return c.emptyResult(ctx, path, fileHash)
	}

	if importSource == nil {
		importSource, err = c.createImportSource(ctx, discovery)
		if err != nil {
			return nil, err
		}
	}

	run := timeline.NewImportRun(importSource.ID, fileHash)
	if err := c.store.CreateImportRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating import run: %w", err)
	}

	tracker := progress.NewTracker(run, c.store, c.callback, c.flushEvery)

	selected := c.selectEntityTypes(discovery, entityTypes)
	if len(selected) == 0 {
		logger.Log.Warn("no matching entity types to ingest")
		c.finalize(run, timeline.ImportCompleted, "")
		tracker.Flush(ctx)
		return &Result{ImportRun: run, Stats: tracker.Stats()}, nil
	}

	totalExpected := 0
	for _, et := range selected {
		totalExpected += discovery.AvailableEntities[et]
	}
	tracker.SetTotal(ctx, totalExpected)

	run.Status = timeline.ImportRunning
	run.EntitiesFound = totalExpected
	if err := c.store.SaveImportRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persisting running state: %w", err)
	}

	if err := c.ingestAll(ctx, discovery, path, selected, filters, tracker); err != nil {
		logger.Log.WithError(err).Error("Ingestion failed")
		c.finalize(run, timeline.ImportFailed, err.Error())
	} else {
		c.finalize(run, timeline.ImportCompleted, "")
		c.hooks.NotifyImportComplete(run)
	}

	// The persisted record must reflect the last-known counters even on
	// failure.
	tracker.Flush(ctx)

	return &Result{ImportRun: run, Stats: tracker.Stats()}, nil
}

func (c *Coordinator) finalize(run *timeline.ImportRun, status timeline.ImportStatus, errMsg string) {
	now := time.Now().UTC()
	run.Status = status
	run.ErrorMessage = errMsg
	run.CompletedAt = &now
}

// selectEntityTypes intersects the requested set (empty = everything) with
// what discovery actually found, in a stable order.
func (c *Coordinator) selectEntityTypes(discovery *DiscoveryResult, requested []timeline.EntityType) []timeline.EntityType {
	var selected []timeline.EntityType
	if len(requested) == 0 {
		for et := range discovery.AvailableEntities {
			selected = append(selected, et)
		}
	} else {
		for _, et := range requested {
			if _, ok := discovery.AvailableEntities[et]; ok {
				selected = append(selected, et)
			}
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i] < selected[j] })
	return selected
}

func (c *Coordinator) createImportSource(ctx context.Context, discovery *DiscoveryResult) (*timeline.ImportSource, error) {
	sourceType := timeline.SourceGeneric
	if discovery.Ingester != nil {
		sourceType = discovery.Ingester.SourceType()
	}

	source := timeline.NewImportSource(
		sourceType,
		filepath.Base(discovery.SourcePath),
		fmt.Sprintf("Import from %s", discovery.SourcePath),
	)
	if err := c.store.CreateImportSource(ctx, source); err != nil {
		return nil, fmt.Errorf("creating import source: %w", err)
	}
	return source, nil
}

// emptyResult records a source/run pair already marked COMPLETED for paths
// with nothing to ingest. Not an error.
func (c *Coordinator) emptyResult(ctx context.Context, path, fileHash string) (*Result, error) {
	source := timeline.NewImportSource(
		timeline.SourceGeneric,
		filepath.Base(path),
		fmt.Sprintf("Empty import from %s", path),
	)
	if err := c.store.CreateImportSource(ctx, source); err != nil {
		return nil, fmt.Errorf("creating import source: %w", err)
	}

	run := timeline.NewImportRun(source.ID, fileHash)
	c.finalize(run, timeline.ImportCompleted, "")
	if err := c.store.CreateImportRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating import run: %w", err)
	}

	return &Result{ImportRun: run}, nil
}

// ingestAll re-extracts the path (scoped to this call) and runs every
// selected entity type through the matched ingester, deduplicating and
// batching along the way.
func (c *Coordinator) ingestAll(
	ctx context.Context,
	discovery *DiscoveryResult,
	path string,
	entityTypes []timeline.EntityType,
	filters *Filter,
	tracker *progress.Tracker,
) error {
	contentPath, cleanup, err := archive.Extracted(path)
	if err != nil {
		return err
	}
	defer cleanup()

	ingester := discovery.Ingester
	if ingester == nil {
		ingester = NewGenericIngester(c.registry)
	}

	batch := make(map[timeline.EntityType][]timeline.Entity)
	batchCount := 0

	flush := func() error {
		if batchCount == 0 {
			return nil
		}
		if err := c.flushBatch(ctx, batch, tracker); err != nil {
			return err
		}
		batch = make(map[timeline.EntityType][]timeline.Entity)
		batchCount = 0
		return nil
	}

	for _, entityType := range entityTypes {
		ingestFn, ok := ingester.Ingest(entityType)
		if !ok {
			logger.Log.WithField("entity_type", string(entityType)).Debug("ingester does not support entity type")
			continue
		}

		tracker.SetCurrentFile(ctx, fmt.Sprintf("%s entities", entityType))

		for entity, err := range ingestFn(contentPath, filters) {
			if err != nil {
				logger.Log.WithError(err).Warn("failed to produce entity")
				tracker.UpdateStats(ctx, progress.Stats{Failed: 1})
				tracker.Increment(ctx, 1)
				continue
			}

			duplicate, err := c.isDuplicate(ctx, entity)
			if err != nil {
				return err
			}
			if duplicate {
				tracker.UpdateStats(ctx, progress.Stats{Skipped: 1})
				tracker.Increment(ctx, 1)
				continue
			}

			batch[entityType] = append(batch[entityType], entity)
			batchCount++

			if batchCount >= c.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}

			tracker.Increment(ctx, 1)
		}
	}

	return flush()
}

// isDuplicate checks the entity's content hash against its concrete table.
// Entities without a hash always pass through.
func (c *Coordinator) isDuplicate(ctx context.Context, entity timeline.Entity) (bool, error) {
	hash := entity.ContentHash()
	if hash == "" {
		return false, nil
	}
	return c.store.ExistsByContentHash(ctx, entity.EntityType(), hash)
}

func (c *Coordinator) flushBatch(
	ctx context.Context,
	batch map[timeline.EntityType][]timeline.Entity,
	tracker *progress.Tracker,
) error {
	var all []timeline.Entity
	for _, entities := range batch {
		all = append(all, entities...)
	}

	if err := c.store.CreateEntities(ctx, all); err != nil {
		return fmt.Errorf("persisting batch: %w", err)
	}

	for entityType, entities := range batch {
		for _, entity := range entities {
			c.hooks.NotifyEntityCreated(entityType, entity)
		}
	}
	c.hooks.NotifyBatchComplete(batch)

	tracker.UpdateStats(ctx, progress.Stats{Created: len(all)})
	return nil
}
