// Package progress tracks live counters for one import run and amortises
// their persistence against high-frequency per-entity updates.
package progress

import (
	"context"

	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// DefaultFlushEvery is how many updates accumulate between durable writes.
const DefaultFlushEvery = 100

// Stats counts entity outcomes for one run.
type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// TotalProcessed is the sum of all outcomes.
func (s Stats) TotalProcessed() int {
	return s.Created + s.Updated + s.Skipped + s.Failed
}

// Add merges a delta into the stats.
func (s *Stats) Add(delta Stats) {
	s.Created += delta.Created
	s.Updated += delta.Updated
	s.Skipped += delta.Skipped
	s.Failed += delta.Failed
}

// Callback receives real-time progress notifications, e.g. to mirror run
// state into an externally visible store.
type Callback interface {
	OnProgress(current, total int, percent float64)
	OnFileChange(filename string)
	OnStatsUpdate(stats Stats)
}

// NoOpCallback discards all notifications.
type NoOpCallback struct{}

func (NoOpCallback) OnProgress(current, total int, percent float64) {}
func (NoOpCallback) OnFileChange(filename string)                   {}
func (NoOpCallback) OnStatsUpdate(stats Stats)                      {}

// RunSaver is the persistence port the tracker flushes through.
type RunSaver interface {
	SaveImportRun(ctx context.Context, run *timeline.ImportRun) error
}

// Tracker accumulates progress for exactly one run and mirrors it onto the
// ImportRun record. Every mutating call notifies the callback immediately
// and counts toward the flush threshold; Flush must be called once more at
// run end regardless.
type Tracker struct {
	run      *timeline.ImportRun
	saver    RunSaver
	callback Callback

	flushEvery int

	current           int
	total             int
	currentFile       string
	stats             Stats
	updatesSinceFlush int
}

func NewTracker(run *timeline.ImportRun, saver RunSaver, callback Callback, flushEvery int) *Tracker {
	if callback == nil {
		callback = NoOpCallback{}
	}
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}
	return &Tracker{
		run:        run,
		saver:      saver,
		callback:   callback,
		flushEvery: flushEvery,
	}
}

// SetTotal records the expected entity count from discovery. The total is
// an estimate, not a hard cap.
func (t *Tracker) SetTotal(ctx context.Context, total int) {
	t.total = total
	t.run.ProgressTotal = total
	t.notifyProgress()
	t.maybeFlush(ctx)
}

// Increment advances the progress counter.
func (t *Tracker) Increment(ctx context.Context, count int) {
	t.current += count
	t.run.ProgressCurrent = t.current
	t.updatesSinceFlush++
	t.notifyProgress()
	t.maybeFlush(ctx)
}

// SetCurrentFile updates the file/label currently being processed.
func (t *Tracker) SetCurrentFile(ctx context.Context, filename string) {
	t.currentFile = filename
	t.run.CurrentFile = filename
	t.callback.OnFileChange(filename)
	t.maybeFlush(ctx)
}

// UpdateStats merges outcome deltas and mirrors them onto the run.
func (t *Tracker) UpdateStats(ctx context.Context, delta Stats) {
	t.stats.Add(delta)

	t.run.EntitiesCreated = t.stats.Created
	t.run.EntitiesUpdated = t.stats.Updated
	t.run.EntitiesSkipped = t.stats.Skipped
	t.run.EntitiesFailed = t.stats.Failed

	t.updatesSinceFlush++
	t.callback.OnStatsUpdate(t.stats)
	t.maybeFlush(ctx)
}

// Stats returns the accumulated counters.
func (t *Tracker) Stats() Stats { return t.stats }

// Current returns the progress counter.
func (t *Tracker) Current() int { return t.current }

// Total returns the expected total.
func (t *Tracker) Total() int { return t.total }

// Percent returns completion as 0-100, or 0 when the total is unknown.
func (t *Tracker) Percent() float64 {
	if t.total <= 0 {
		return 0
	}
	return float64(t.current) / float64(t.total) * 100
}

// Flush writes the run record durably. Failures are logged, not returned:
// progress persistence must never abort the pipeline.
func (t *Tracker) Flush(ctx context.Context) {
	if err := t.saver.SaveImportRun(ctx, t.run); err != nil {
		logger.Log.WithError(err).WithField("run_id", t.run.ID).Warn("progress flush failed")
		return
	}
	t.updatesSinceFlush = 0
	logger.Log.WithFields(map[string]interface{}{
		"current": t.current,
		"total":   t.total,
		"created": t.stats.Created,
		"skipped": t.stats.Skipped,
		"failed":  t.stats.Failed,
	}).Debug("progress flush")
}

func (t *Tracker) notifyProgress() {
	t.callback.OnProgress(t.current, t.total, t.Percent())
}

func (t *Tracker) maybeFlush(ctx context.Context) {
	if t.updatesSinceFlush >= t.flushEvery {
		t.Flush(ctx)
	}
}

// LoggingCallback logs every Nth progress update; useful for CLI output.
type LoggingCallback struct {
	LogInterval int
	count       int
}

func (c *LoggingCallback) OnProgress(current, total int, percent float64) {
	interval := c.LogInterval
	if interval <= 0 {
		interval = 100
	}
	c.count++
	if c.count%interval != 0 {
		return
	}
	if total > 0 {
		logger.Log.Infof("Progress: %d/%d (%.1f%%)", current, total, percent)
	} else {
		logger.Log.Infof("Progress: %d entities processed", current)
	}
}

func (c *LoggingCallback) OnFileChange(filename string) {
	logger.Log.WithField("file", filename).Info("Processing")
}

func (c *LoggingCallback) OnStatsUpdate(stats Stats) {}
