package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/ports"
)

// attemptRecord pairs an attempt with the time it reached a terminal
// status, which drives retention during sweeps.
type attemptRecord struct {
	attempt    domain.AuthenticationAttempt
	resolvedAt time.Time
}

// AttemptStore implements ports.AttemptStore over a map guarded by a
// mutex. Transition performs the compare-and-swap under the lock, so
// concurrent responses to one attempt serialize into exactly one winner.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord
	clock    func() time.Time
}

// NewAttemptStore creates an empty AttemptStore.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]*attemptRecord),
		clock:    time.Now,
	}
}

// WithClock replaces the store's clock, used to stamp terminal
// transitions.
func (s *AttemptStore) WithClock(clock func() time.Time) *AttemptStore {
	s.clock = clock
	return s
}

var _ ports.AttemptStore = (*AttemptStore)(nil)

// Create stores a new attempt. Attempt identifiers are never reused, so a
// duplicate id fails even when the previous attempt is terminal.
func (s *AttemptStore) Create(ctx context.Context, attempt domain.AuthenticationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return ports.ErrDuplicate
	}
	s.attempts[attempt.ID] = &attemptRecord{attempt: attempt}
	return nil
}

// Get returns a copy of the attempt with the given id, or ErrNotFound.
func (s *AttemptStore) Get(ctx context.Context, id string) (domain.AuthenticationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.attempts[id]
	if !ok {
		return domain.AuthenticationAttempt{}, ports.ErrNotFound
	}
	return rec.attempt, nil
}

// Transition atomically moves the attempt from one status to another and
// returns the updated copy.
func (s *AttemptStore) Transition(ctx context.Context, id string, from, to domain.AttemptStatus) (domain.AuthenticationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.attempts[id]
	if !ok {
		return domain.AuthenticationAttempt{}, ports.ErrNotFound
	}
	if rec.attempt.Status != from {
		return domain.AuthenticationAttempt{}, ports.ErrConflict
	}
	rec.attempt.Status = to
	if to.IsTerminal() {
		rec.resolvedAt = s.clock()
	}
	return rec.attempt, nil
}

// Delete removes the attempt with the given id.
func (s *AttemptStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
	return nil
}

// Sweep expires overdue pending attempts and drops terminal attempts older
// than the retention window. Attempts expired by this pass are stamped with
// now, so they survive until a later sweep outlives retain.
func (s *AttemptStore) Sweep(ctx context.Context, now time.Time, retain time.Duration) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired, dropped := 0, 0
	for id, rec := range s.attempts {
		if rec.attempt.Status == domain.AttemptPending && rec.attempt.ExpiredAt(now) {
			rec.attempt.Status = domain.AttemptExpired
			rec.resolvedAt = now
			expired++
			continue
		}
		if rec.attempt.Status.IsTerminal() && !rec.resolvedAt.IsZero() && now.Sub(rec.resolvedAt) > retain {
			delete(s.attempts, id)
			dropped++
		}
	}
	return expired, dropped, nil
}

// Len returns how many attempts the store currently holds.
func (s *AttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}
