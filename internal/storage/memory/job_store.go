// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sync"

	"github.com/serplens/ranktracker/internal/rank"
)

// JobStore keeps job records in a mutex-guarded map. Readers always receive
// a copy of the last committed record, so the atomic-visibility contract of
// rank.JobStore holds trivially.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]rank.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]rank.Job)}
}

// Create stores a new job record.
func (s *JobStore) Create(_ context.Context, job rank.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return rank.ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (rank.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return rank.Job{}, rank.ErrNotFound
	}
	return job.Clone(), nil
}

// Update applies a shallow merge of the partial fields onto the stored
// record and returns the merged job.
func (s *JobStore) Update(_ context.Context, jobID string, upd rank.JobUpdate) (rank.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return rank.Job{}, rank.ErrNotFound
	}
	merged := upd.Apply(job)
	s.jobs[jobID] = merged
	return merged.Clone(), nil
}

// List returns every stored job record.
func (s *JobStore) List(_ context.Context) ([]rank.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rank.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	return out, nil
}
