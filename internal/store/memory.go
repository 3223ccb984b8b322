package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// MemoryStore implements Store with in-process maps. All job state is
// lost on restart; payment truth lives in the payment gateway and can
// be re-queried, so this is acceptable within the eviction windows.
type MemoryStore struct {
	mu        sync.RWMutex
	pending   map[string]*models.PendingInput
	active    map[string]struct{}
	completed map[string]*models.CompletedRecord
	refunds   map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:   make(map[string]*models.PendingInput),
		active:    make(map[string]struct{}),
		completed: make(map[string]*models.CompletedRecord),
		refunds:   make(map[string]time.Time),
	}
}

// PutPending implements Store. An existing pending input is replaced wholesale.
func (s *MemoryStore) PutPending(ctx context.Context, sessionID string, in *models.PendingInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	s.pending[sessionID] = in
	return nil
}

// GetPending implements Store. Returns nil when absent.
func (s *MemoryStore) GetPending(ctx context.Context, sessionID string) (*models.PendingInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pending[sessionID], nil
}

// DeletePending implements Store.
func (s *MemoryStore) DeletePending(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, sessionID)
	return nil
}

// TryActivate implements Store. The check and the set happen under one
// lock, so two concurrent status checks for the same never-yet-started
// session result in exactly one activation.
func (s *MemoryStore) TryActivate(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[sessionID]; ok {
		return false, nil
	}
	if _, ok := s.completed[sessionID]; ok {
		return false, nil
	}
	s.active[sessionID] = struct{}{}
	return true, nil
}

// Deactivate implements Store.
func (s *MemoryStore) Deactivate(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, sessionID)
	return nil
}

// IsActive implements Store.
func (s *MemoryStore) IsActive(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.active[sessionID]
	return ok, nil
}

// ActiveCount implements Store.
func (s *MemoryStore) ActiveCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.active), nil
}

// GetCompleted implements Store. Returns nil when absent.
func (s *MemoryStore) GetCompleted(ctx context.Context, sessionID string) (*models.CompletedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.completed[sessionID], nil
}

// DeleteCompleted implements Store.
func (s *MemoryStore) DeleteCompleted(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.completed, sessionID)
	return nil
}

// Settle implements Store. The completed write, active clear and
// pending delete happen under one lock: no reader can observe the
// session as both active and completed, or as settled with a leftover
// pending input.
func (s *MemoryStore) Settle(ctx context.Context, sessionID string, rec *models.CompletedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	s.completed[sessionID] = rec
	delete(s.active, sessionID)
	delete(s.pending, sessionID)
	return nil
}

// MarkRefunded implements Store.
func (s *MemoryStore) MarkRefunded(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refunds[sessionID]; ok {
		return false, nil
	}
	s.refunds[sessionID] = time.Now()
	return true, nil
}

// Sweep implements Store. Active sessions are never swept; a launched
// job captured its own input reference before any possible eviction.
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, in := range s.pending {
		if _, active := s.active[id]; active {
			continue
		}
		if now.Sub(in.CreatedAt) > PendingTTL {
			delete(s.pending, id)
			evicted++
		}
	}
	for id, rec := range s.completed {
		if now.Sub(rec.CompletedAt) > CompletedTTL {
			delete(s.completed, id)
			delete(s.refunds, id)
			evicted++
		}
	}

	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("Session sweep completed")
	}
	return evicted, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make(map[string]*models.PendingInput)
	s.active = make(map[string]struct{})
	s.completed = make(map[string]*models.CompletedRecord)
	s.refunds = make(map[string]time.Time)
	return nil
}
