package registry

import (
	"sort"
	"sync"

	"github.com/ternarybob/migro/internal/interfaces"
)

// Registry tracks in-flight import jobs and their cancellation flags.
// Phase boundaries and per-unit loops poll IsCancelled, so a cancel
// takes effect at the next checkpoint rather than mid-operation.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]bool // jobID -> cancelled
}

// NewRegistry creates an empty job registry
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]bool)}
}

var _ interfaces.JobRegistry = (*Registry)(nil)

// Register adds a job to the active set with a clear cancel flag
func (r *Registry) Register(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobID] = false
}

// Cancel flags an active job for cancellation. Returns false when the
// job is not registered, so callers can distinguish "cancelling" from
// "already finished".
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; !ok {
		return false
	}
	r.jobs[jobID] = true
	return true
}

// IsCancelled reports whether a job has been flagged for cancellation
func (r *Registry) IsCancelled(jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[jobID]
}

// Release removes a job from the active set once it reaches a terminal
// state
func (r *Registry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// Active returns the IDs of all registered jobs in stable order
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
