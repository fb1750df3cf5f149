package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var ErrInvalidTransition = errors.New("invalid job transition")

// Store persists job records. Implementations must be safe for concurrent use
// and must return copies, never their internal records.
type Store interface {
	Create(job *ServerJob) error
	Get(id string) (*ServerJob, error)
	// Update applies mutate to a copy of the job and commits it atomically.
	// Terminal jobs are rejected with ErrJobFinalized before mutate runs.
	// An error returned by mutate aborts the update and is passed through.
	Update(id string, mutate func(job *ServerJob) error) (*ServerJob, error)
	// ActiveForServer returns the oldest pending or running job for serverName.
	ActiveForServer(serverName string) (*ServerJob, bool)
	// List returns all jobs, newest first.
	List() []*ServerJob
	// Prune removes terminal jobs that completed before the cutoff.
	Prune(before time.Time) (int, error)
}

// checkTransition enforces the job state machine and the progress invariant.
func checkTransition(prev, next *ServerJob) error {
	if next.ID != prev.ID || next.Operation != prev.Operation || next.ServerName != prev.ServerName {
		return fmt.Errorf("%w: identity fields are immutable", ErrInvalidTransition)
	}

	allowed := false
	switch prev.Status {
	case StatusPending:
		allowed = next.Status == StatusPending || next.Status == StatusRunning
	case StatusRunning:
		allowed = next.Status == StatusRunning || next.Status.Terminal()
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
	}

	if next.Status == StatusCompleted && next.Progress != 100 {
		return fmt.Errorf("%w: completed job must have progress 100", ErrInvalidTransition)
	}
	if next.Status != StatusCompleted && next.Progress >= 100 {
		return fmt.Errorf("%w: progress 100 is reserved for completed jobs", ErrInvalidTransition)
	}
	if next.Progress < prev.Progress {
		return fmt.Errorf("%w: progress went backwards", ErrInvalidTransition)
	}
	if next.Status.Terminal() && next.CompletedAt == nil {
		return fmt.Errorf("%w: terminal job without completion time", ErrInvalidTransition)
	}
	if !next.Status.Terminal() && next.CompletedAt != nil {
		return fmt.Errorf("%w: completion time on active job", ErrInvalidTransition)
	}

	return nil
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*ServerJob
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*ServerJob)}
}

func (s *MemoryStore) Create(job *ServerJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(id string) (*ServerJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(id string, mutate func(job *ServerJob) error) (*ServerJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if current.Status.Terminal() {
		return current.Clone(), ErrJobFinalized
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return current.Clone(), err
	}
	if err := checkTransition(current, next); err != nil {
		return current.Clone(), err
	}

	s.jobs[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ActiveForServer(serverName string) (*ServerJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *ServerJob
	for _, job := range s.jobs {
		if job.ServerName != serverName || !job.Status.Active() {
			continue
		}
		if oldest == nil || olderThan(job, oldest) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest.Clone(), true
}

func (s *MemoryStore) List() []*ServerJob {
	s.mu.RLock()
	result := make([]*ServerJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		result = append(result, job.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return olderThan(result[j], result[i])
	})
	return result
}

func (s *MemoryStore) Prune(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(before) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func olderThan(a, b *ServerJob) bool {
	if a.StartedAt.Equal(b.StartedAt) {
		return a.ID < b.ID
	}
	return a.StartedAt.Before(b.StartedAt)
}
