// Package hooks notifies optional collaborators (embedding generators,
// entity linkers, indexers) of ingestion lifecycle events without letting
// their failures reach the pipeline.
package hooks

import (
	"fmt"
	"sync"

	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/timeline"
)

// Hook observes ingestion lifecycle events. Implementations should be
// lightweight; heavy work belongs in a background job the hook queues.
type Hook interface {
	OnEntityCreated(entityType timeline.EntityType, entity timeline.Entity)
	OnBatchComplete(entities map[timeline.EntityType][]timeline.Entity)
	OnImportComplete(run *timeline.ImportRun)
}

// Registry dispatches events to hooks in registration order. Each dispatch
// isolates failures: a panicking hook is logged and the remaining hooks
// still run.
type Registry struct {
	mu    sync.RWMutex
	hooks []Hook
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a hook; adding the same instance twice is a no-op.
func (r *Registry) Register(hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.hooks {
		if existing == hook {
			return
		}
	}
	r.hooks = append(r.hooks, hook)
	logger.Log.WithField("hook", fmt.Sprintf("%T", hook)).Debug("registered ingestion hook")
}

// Unregister removes a hook.
func (r *Registry) Unregister(hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.hooks {
		if existing == hook {
			r.hooks = append(r.hooks[:i], r.hooks[i+1:]...)
			return
		}
	}
}

// All returns the registered hooks in order.
func (r *Registry) All() []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Hook, len(r.hooks))
	copy(out, r.hooks)
	return out
}

func (r *Registry) NotifyEntityCreated(entityType timeline.EntityType, entity timeline.Entity) {
	for _, hook := range r.All() {
		dispatch(hook, "OnEntityCreated", func() {
			hook.OnEntityCreated(entityType, entity)
		})
	}
}

func (r *Registry) NotifyBatchComplete(entities map[timeline.EntityType][]timeline.Entity) {
	for _, hook := range r.All() {
		dispatch(hook, "OnBatchComplete", func() {
			hook.OnBatchComplete(entities)
		})
	}
}

func (r *Registry) NotifyImportComplete(run *timeline.ImportRun) {
	for _, hook := range r.All() {
		dispatch(hook, "OnImportComplete", func() {
			hook.OnImportComplete(run)
		})
	}
}

func dispatch(hook Hook, event string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.WithFields(map[string]interface{}{
				"hook":  fmt.Sprintf("%T", hook),
				"event": event,
				"panic": rec,
			}).Warn("ingestion hook failed")
		}
	}()
	fn()
}

// LoggingHook logs ingestion events; useful in development.
type LoggingHook struct{}

func (LoggingHook) OnEntityCreated(entityType timeline.EntityType, entity timeline.Entity) {
	logger.Log.WithFields(map[string]interface{}{
		"entity_type": string(entityType),
		"entity_id":   entity.EntityID(),
	}).Debug("entity created")
}

func (LoggingHook) OnBatchComplete(entities map[timeline.EntityType][]timeline.Entity) {
	counts := make(map[string]int, len(entities))
	for et, list := range entities {
		counts[string(et)] = len(list)
	}
	logger.Log.WithField("counts", counts).Info("batch complete")
}

func (LoggingHook) OnImportComplete(run *timeline.ImportRun) {
	logger.Log.WithFields(map[string]interface{}{
		"run_id":  run.ID,
		"created": run.EntitiesCreated,
		"updated": run.EntitiesUpdated,
		"skipped": run.EntitiesSkipped,
		"failed":  run.EntitiesFailed,
	}).Info("import complete")
}
