package banner

import (
	"fmt"
	"sync"
	"time"

	"heraldbot/pkg/logx"
)

// Registry is the single source of truth for scheduled jobs during a run.
// The store holds a derived, not authoritative, copy: every mutation
// rewrites it, and a failed write leaves the in-memory state in charge
// until the next successful one.
//
// One mutex serializes the command path and the scheduler path; a delete
// racing a mid-delivery tick wins (see Advance).
type Registry struct {
	mu    sync.Mutex
	jobs  map[Key]Job
	store *Store
	log   logx.Logger

	minMinutes int
}

func NewRegistry(store *Store, minMinutes int, log logx.Logger) *Registry {
	if minMinutes < 1 {
		minMinutes = DefaultMinMinutes
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		jobs:       map[Key]Job{},
		store:      store,
		log:        log,
		minMinutes: minMinutes,
	}
}

// Load replaces the in-memory state with the persisted snapshot.
func (r *Registry) Load() {
	if r.store == nil {
		return
	}
	jobs := r.store.Load()
	r.mu.Lock()
	r.jobs = jobs
	n := len(jobs)
	r.mu.Unlock()
	if n > 0 {
		r.log.Info("banner jobs restored", logx.Int("count", n))
	}
}

// Upsert inserts or fully replaces the job at its key.
func (r *Registry) Upsert(job Job) error {
	if job.IntervalMinutes < r.minMinutes {
		return fmt.Errorf("%w: %dm < %dm", ErrIntervalTooShort, job.IntervalMinutes, r.minMinutes)
	}
	if job.NextRunAt.IsZero() {
		return fmt.Errorf("banner job %q has no next run time", job.Key())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.Key()] = job
	r.saveLocked()
	return nil
}

// Remove deletes the job at key, reporting whether anything was removed.
func (r *Registry) Remove(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[key]; !ok {
		return false
	}
	delete(r.jobs, key)
	r.saveLocked()
	return true
}

// Clear removes all jobs and returns how many were removed.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.jobs)
	r.jobs = map[Key]Job{}
	r.saveLocked()
	return n
}

// Get returns the job at key, if present.
func (r *Registry) Get(key Key) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[key]
	return job, ok
}

// Len reports the number of active jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// List returns a display snapshot ordered by ascending next-run time.
func (r *Registry) List() []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	r.mu.Unlock()
	return sortedByNextRun(out)
}

// Due returns all jobs whose next run is at or before now.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if !job.NextRunAt.After(now) {
			out = append(out, job)
		}
	}
	r.mu.Unlock()
	return sortedByNextRun(out)
}

// Advance moves the job's next run time forward, but only if the key is
// still present: a job deleted while the scheduler was mid-delivery must
// not be resurrected by the write-back.
func (r *Registry) Advance(key Key, next time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[key]
	if !ok {
		return false
	}
	job.NextRunAt = next
	r.jobs[key] = job
	r.saveLocked()
	return true
}

// Flush forces a snapshot write of the current state (used on shutdown).
func (r *Registry) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveLocked()
}

// saveLocked rewrites the snapshot. A persistence failure is logged; the
// in-memory map stays authoritative and the next mutation retries.
func (r *Registry) saveLocked() {
	if r.store == nil {
		return
	}
	snapshot := make(map[Key]Job, len(r.jobs))
	for k, v := range r.jobs {
		snapshot[k] = v
	}
	if err := r.store.Save(snapshot); err != nil {
		r.log.Warn("banner snapshot write failed", logx.Err(err))
	}
}
