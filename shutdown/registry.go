package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sd_backend/core"
)

// Step priorities. Lower runs first; this is the required teardown order.
const (
	PriorityHTTPServer = 10
	PriorityEventHub   = 20
	PriorityScheduler  = 30
	PriorityWriter     = 40
	PriorityDatabase   = 50
	PriorityTempFiles  = 60
	PriorityLogger     = 90
)

type shutdownEntry struct {
	name     string
	fn       core.ShutdownFunc
	priority int
	seq      int
}

// StepResult reports one executed cleanup step.
type StepResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// ShutdownRegistry holds cleanup steps and runs them once, in priority
// order. Steps with equal priority run in registration order.
type ShutdownRegistry struct {
	mu      sync.Mutex
	entries []shutdownEntry
	closed  bool
}

// NewShutdownRegistry creates an empty registry.
func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{}
}

// Register adds a step. Registration after Shutdown is ignored.
func (r *ShutdownRegistry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.entries = append(r.entries, shutdownEntry{
		name:     name,
		fn:       fn,
		priority: priority,
		seq:      len(r.entries),
	})
}

// Shutdown runs every step, even after failures, and returns one result
// per step. A second call returns nil.
func (r *ShutdownRegistry) Shutdown(ctx context.Context) []StepResult {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	results := make([]StepResult, 0, len(sorted))
	for _, entry := range sorted {
		start := time.Now()
		err := entry.fn(ctx)
		if err != nil {
			err = fmt.Errorf("%s: %w", entry.name, err)
		}
		results = append(results, StepResult{
			Name:     entry.name,
			Duration: time.Since(start),
			Err:      err,
		})
	}
	return results
}

// Names returns step names in execution order.
func (r *ShutdownRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

// Count returns the number of registered steps.
func (r *ShutdownRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *ShutdownRegistry) sortedLocked() []shutdownEntry {
	sorted := make([]shutdownEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].seq < sorted[j].seq
	})
	return sorted
}
