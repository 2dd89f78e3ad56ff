package jobstore

import (
	"context"
	"sync"
	"time"

	"interview-insights-go/internal/types"
)

// MemoryStore keeps jobs in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]types.Job
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]types.Job), clock: time.Now}
}

func (s *MemoryStore) Write(_ context.Context, jobID string, u types.JobUpdate) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[jobID]
	next := merge(cur, ok, jobID, u, s.clock())
	s.jobs[jobID] = next
	return next, nil
}

func (s *MemoryStore) Read(_ context.Context, jobID string) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return job, nil
}
