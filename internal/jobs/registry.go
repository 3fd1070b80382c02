package jobs

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when no job exists for a given id.
var ErrJobNotFound = errors.New("job not found")

// Registry is the in-memory index of jobs by id. Jobs live for the process
// lifetime; durable per-form results go to the manifest instead.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a new queued job with a fresh id.
func (r *Registry) Create(userID, formSlug, formURL string) *Job {
	job := newJob(uuid.NewString(), userID, formSlug, formURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return job
}

// Get looks up a job by id.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Len reports how many jobs are tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
