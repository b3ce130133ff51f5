package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
)

// JobStore keeps jobs in an append-only slice indexed by id and by
// lower-cased idempotency key. Both indexes change under one lock, so a
// job is never visible under one key and missing under the other.
type JobStore struct {
	mu    sync.RWMutex
	jobs  []*dispatch.Job
	byID  map[string]int
	byKey map[string]int
}

func NewJobStore() *JobStore {
	return &JobStore{
		byID:  make(map[string]int),
		byKey: make(map[string]int),
	}
}

// Add inserts job unless its id or idempotency key is already taken.
func (s *JobStore) Add(_ context.Context, job *dispatch.Job) bool {
	if job == nil {
		return false
	}
	key := idempotencyIndexKey(job.IdempotencyKey())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[job.ID()]; exists {
		return false
	}
	if key != "" {
		if _, exists := s.byKey[key]; exists {
			return false
		}
	}

	slot := len(s.jobs)
	s.jobs = append(s.jobs, job.Clone())
	s.byID[job.ID()] = slot
	if key != "" {
		s.byKey[key] = slot
	}
	return true
}

// Update replaces the stored job with the same id, or stores it when unknown.
func (s *JobStore) Update(_ context.Context, job *dispatch.Job) {
	if job == nil {
		return
	}
	key := idempotencyIndexKey(job.IdempotencyKey())

	s.mu.Lock()
	defer s.mu.Unlock()

	if slot, ok := s.byID[job.ID()]; ok {
		s.jobs[slot] = job.Clone()
		return
	}

	slot := len(s.jobs)
	s.jobs = append(s.jobs, job.Clone())
	s.byID[job.ID()] = slot
	if key != "" {
		if _, taken := s.byKey[key]; !taken {
			s.byKey[key] = slot
		}
	}
}

func (s *JobStore) Get(_ context.Context, id string) (*dispatch.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, false
	}
	return s.jobs[slot].Clone(), true
}

func (s *JobStore) GetByIdempotencyKey(_ context.Context, key string) (*dispatch.Job, bool) {
	indexKey := idempotencyIndexKey(key)
	if indexKey == "" {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.byKey[indexKey]
	if !ok {
		return nil, false
	}
	return s.jobs[slot].Clone(), true
}

func (s *JobStore) GetSnapshot(_ context.Context, id string) (dispatch.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return dispatch.Snapshot{}, false
	}
	return s.jobs[slot].Snapshot(), true
}

func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func idempotencyIndexKey(key string) string {
	return strings.ToLower(dispatch.NormalizeIdempotencyKey(key))
}
