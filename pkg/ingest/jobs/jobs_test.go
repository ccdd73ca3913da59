package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mosaic-archive/mosaic/pkg/common/models"
	"github.com/mosaic-archive/mosaic/pkg/ingest"
	"github.com/mosaic-archive/mosaic/pkg/ingest/hooks"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

type memStore struct {
	sources  []*timeline.ImportSource
	runs     map[uuid.UUID]*timeline.ImportRun
	entities []timeline.Entity
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[uuid.UUID]*timeline.ImportRun)}
}

func (s *memStore) ExistsByContentHash(ctx context.Context, entityType timeline.EntityType, contentHash string) (bool, error) {
	return false, nil
}

func (s *memStore) CreateEntities(ctx context.Context, entities []timeline.Entity) error {
	s.entities = append(s.entities, entities...)
	return nil
}

func (s *memStore) CreateImportSource(ctx context.Context, source *timeline.ImportSource) error {
	s.sources = append(s.sources, source)
	return nil
}

func (s *memStore) CreateImportRun(ctx context.Context, run *timeline.ImportRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *memStore) SaveImportRun(ctx context.Context, run *timeline.ImportRun) error {
	s.runs[run.ID] = run
	return nil
}

func (s *memStore) GetImportRun(ctx context.Context, id uuid.UUID) (*timeline.ImportRun, error) {
	return s.runs[id], nil
}

func (s *memStore) FindCompletedRunByFileHash(ctx context.Context, fileHash string) (*timeline.ImportRun, error) {
	return nil, nil
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{fs.ErrNotExist, ClassFatal},
		{fs.ErrPermission, ClassFatal},
		{fmt.Errorf("opening: %w", os.ErrNotExist), ClassFatal},
		{context.DeadlineExceeded, ClassTransient},
		{syscall.EIO, ClassTransient},
		{syscall.ENOSPC, ClassTransient},
		{syscall.EROFS, ClassTransient},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, ClassTransient},
		{errors.New("something else"), ClassUnknown},
		{nil, ClassUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestWorkerBackoffCapped(t *testing.T) {
	w := NewWorker(newMemStore(), ingest.NewRegistry(), hooks.NewRegistry(), nil, nil,
		WithRetryPolicy(3, time.Minute, 10*time.Minute))

	if got := w.backoff(0); got != time.Minute {
		t.Fatalf("attempt 0 backoff = %v", got)
	}
	if got := w.backoff(1); got != 2*time.Minute {
		t.Fatalf("attempt 1 backoff = %v", got)
	}
	if got := w.backoff(3); got != 8*time.Minute {
		t.Fatalf("attempt 3 backoff = %v", got)
	}
	if got := w.backoff(10); got != 10*time.Minute {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := w.backoff(63); got != 10*time.Minute {
		t.Fatalf("overflow must clamp to cap, got %v", got)
	}
}

func TestWorkerFatalFailureMarksRunFailed(t *testing.T) {
	store := newMemStore()
	run := timeline.NewImportRun(uuid.New(), "")
	store.runs[run.ID] = run

	w := NewWorker(store, ingest.NewRegistry(), hooks.NewRegistry(), nil, nil)
	w.sleep = func(time.Duration) {}

	event := models.Event{
		ID:   "evt-1",
		Type: EventImportJob,
		Data: map[string]interface{}{
			"import_run_id": run.ID.String(),
			"path":          "/nonexistent/export.zip",
			"attempt":       0,
		},
	}

	if err := w.Handle(context.Background(), event); err != nil {
		t.Fatalf("job failures must be resolved, not returned: %v", err)
	}

	if run.Status != timeline.ImportFailed {
		t.Fatalf("expected FAILED, got %s", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Fatal("expected the failure message on the run")
	}
	if run.CompletedAt == nil {
		t.Fatal("expected a completion timestamp")
	}
}

func TestWorkerProcessRunsImport(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.md"), []byte("body"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newMemStore()
	w := NewWorker(store, ingest.NewRegistry(), hooks.NewRegistry(), nil, nil)

	result, err := w.process(context.Background(), &models.ImportJob{
		ImportRunID: uuid.NewString(),
		Path:        dir,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != string(timeline.ImportCompleted) {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Created != 1 {
		t.Fatalf("expected 1 created, got %+v", result)
	}
}

func TestWorkerRejectsUndecodableEvent(t *testing.T) {
	w := NewWorker(newMemStore(), ingest.NewRegistry(), hooks.NewRegistry(), nil, nil)

	err := w.Handle(context.Background(), models.Event{ID: "evt-2", Data: map[string]interface{}{}})
	if err == nil {
		t.Fatal("expected an error for a job without run id and path")
	}
}

func TestCancelRunningImport(t *testing.T) {
	store := newMemStore()
	run := timeline.NewImportRun(uuid.New(), "")
	run.Status = timeline.ImportRunning
	store.runs[run.ID] = run

	svc := NewService(store, nil)
	result := svc.Cancel(context.Background(), run.ID.String())

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if run.Status != timeline.ImportCancelled {
		t.Fatalf("expected CANCELLED, got %s", run.Status)
	}
	if run.CompletedAt == nil {
		t.Fatal("expected a completion timestamp")
	}
}

func TestCancelFinishedImportIsRejected(t *testing.T) {
	store := newMemStore()
	run := timeline.NewImportRun(uuid.New(), "")
	run.Status = timeline.ImportCompleted
	store.runs[run.ID] = run

	svc := NewService(store, nil)
	result := svc.Cancel(context.Background(), run.ID.String())

	if result.Success {
		t.Fatal("finished runs must not be cancellable")
	}
	if run.Status != timeline.ImportCompleted {
		t.Fatalf("status must be unchanged, got %s", run.Status)
	}
}

func TestCancelUnknownRun(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	if result := svc.Cancel(context.Background(), uuid.NewString()); result.Success {
		t.Fatal("unknown runs must not be cancellable")
	}
	if result := svc.Cancel(context.Background(), "not-a-uuid"); result.Success {
		t.Fatal("invalid ids must be rejected")
	}
}

func TestSubmitRejectsUnknownEntityTypes(t *testing.T) {
	svc := NewService(newMemStore(), nil)

	if _, _, err := svc.Submit(context.Background(), "/tmp/export.zip", []string{"not_a_type"}); err == nil {
		t.Fatal("expected validation error")
	}
}
