package export

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps jobs in process memory. Used for tests and for
// single-node deployments that accept losing job history on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; ok {
		return fmt.Errorf("export: job %s already exists", j.ID)
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("export: job %s not found", id)
	}
	if !CanTransition(j.Status, status) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = status
	j.Error = errMsg
	j.UpdatedAt = now
	if status.Terminal() {
		j.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("export: job %s not found", id)
	}
	if progress > j.Progress {
		j.Progress = progress
		j.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) SetDownloadURL(_ context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("export: job %s not found", id)
	}
	j.DownloadURL = url
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListExpired(_ context.Context, cutoff time.Time) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []*Job
	for _, j := range s.jobs {
		if j.Status.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			cp := *j
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
