package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

type countingSaver struct {
	saves int
	err   error
}

func (s *countingSaver) SaveImportRun(ctx context.Context, run *timeline.ImportRun) error {
	s.saves++
	return s.err
}

type recordingCallback struct {
	progressCalls int
	lastCurrent   int
	lastPercent   float64
	files         []string
	lastStats     Stats
}

func (c *recordingCallback) OnProgress(current, total int, percent float64) {
	c.progressCalls++
	c.lastCurrent = current
	c.lastPercent = percent
}

func (c *recordingCallback) OnFileChange(filename string) {
	c.files = append(c.files, filename)
}

func (c *recordingCallback) OnStatsUpdate(stats Stats) {
	c.lastStats = stats
}

func newRun() *timeline.ImportRun {
	return timeline.NewImportRun(uuid.New(), "")
}

func TestTrackerMirrorsOntoRun(t *testing.T) {
	run := newRun()
	saver := &countingSaver{}
	callback := &recordingCallback{}
	tracker := NewTracker(run, saver, callback, 10)

	ctx := context.Background()
	tracker.SetTotal(ctx, 4)
	tracker.Increment(ctx, 1)
	tracker.Increment(ctx, 1)
	tracker.SetCurrentFile(ctx, "media entities")
	tracker.UpdateStats(ctx, Stats{Created: 2})

	if run.ProgressCurrent != 2 || run.ProgressTotal != 4 {
		t.Fatalf("run progress %d/%d", run.ProgressCurrent, run.ProgressTotal)
	}
	if run.CurrentFile != "media entities" {
		t.Fatalf("run current file %q", run.CurrentFile)
	}
	if run.EntitiesCreated != 2 {
		t.Fatalf("run created %d", run.EntitiesCreated)
	}
	if tracker.Percent() != 50 {
		t.Fatalf("percent = %f", tracker.Percent())
	}

	if callback.lastCurrent != 2 || callback.lastPercent != 50 {
		t.Fatalf("callback saw %d / %f", callback.lastCurrent, callback.lastPercent)
	}
	if len(callback.files) != 1 || callback.files[0] != "media entities" {
		t.Fatalf("callback files %v", callback.files)
	}
	if callback.lastStats.Created != 2 {
		t.Fatalf("callback stats %+v", callback.lastStats)
	}
}

func TestTrackerFlushesEveryN(t *testing.T) {
	run := newRun()
	saver := &countingSaver{}
	tracker := NewTracker(run, saver, nil, 3)

	ctx := context.Background()
	for range 7 {
		tracker.Increment(ctx, 1)
	}

	// 7 updates with a threshold of 3: flushes after the 3rd and 6th.
	if saver.saves != 2 {
		t.Fatalf("expected 2 flushes, got %d", saver.saves)
	}

	tracker.Flush(ctx)
	if saver.saves != 3 {
		t.Fatalf("expected explicit flush to persist, got %d", saver.saves)
	}
}

func TestTrackerFlushErrorsAreSwallowed(t *testing.T) {
	run := newRun()
	saver := &countingSaver{err: errors.New("db down")}
	tracker := NewTracker(run, saver, nil, 1)

	// Must not panic or propagate.
	tracker.Increment(context.Background(), 1)
	tracker.Flush(context.Background())

	if tracker.Current() != 1 {
		t.Fatalf("counter must survive flush failure, got %d", tracker.Current())
	}
}

func TestPercentWithUnknownTotal(t *testing.T) {
	tracker := NewTracker(newRun(), &countingSaver{}, nil, 10)
	tracker.Increment(context.Background(), 5)
	if tracker.Percent() != 0 {
		t.Fatalf("percent without total = %f", tracker.Percent())
	}
}

func TestStatsTotalProcessed(t *testing.T) {
	s := Stats{Created: 1, Updated: 2, Skipped: 3, Failed: 4}
	if s.TotalProcessed() != 10 {
		t.Fatalf("total = %d", s.TotalProcessed())
	}
	s.Add(Stats{Created: 1})
	if s.Created != 2 {
		t.Fatalf("created = %d", s.Created)
	}
}
