package ports

import (
	"context"
	"errors"
	"time"

	"github.com/sufield/fan/internal/core/domain"
)

// Store sentinel errors shared by every storage port.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a record with the same key already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict indicates a compare-and-swap lost against a concurrent
	// transition.
	ErrConflict = errors.New("state conflict")
)

// DocumentStore defines the contract for holding verified document cache
// entries. Keys are opaque to the store; the cache service owns the key
// scheme. Contention must stay scoped to individual keys so unrelated
// lookups never serialize behind each other.
//
// Implementations must be thread-safe as they may be called concurrently.
type DocumentStore interface {
	// Get returns the entry stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*domain.CacheEntry, error)

	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key string, entry *domain.CacheEntry) error

	// Delete removes the entry under key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// DeleteDomain removes every entry whose document is bound to the
	// given domain and returns how many were dropped. Used when an agent
	// document stops verifying and everything derived from it becomes
	// suspect.
	DeleteDomain(ctx context.Context, domainName string) (int, error)
}

// AttemptStore defines the contract for pending authentication attempts.
// All lifecycle movement goes through Transition so that concurrent
// responses to the same attempt serialize into exactly one winner.
//
// Implementations must be thread-safe as they may be called concurrently.
type AttemptStore interface {
	// Create stores a new attempt. An attempt with the same id, live or
	// terminal, fails with ErrDuplicate: attempt identifiers are never
	// reused.
	Create(ctx context.Context, attempt domain.AuthenticationAttempt) error

	// Get returns a copy of the attempt with the given id, or
	// ErrNotFound.
	Get(ctx context.Context, id string) (domain.AuthenticationAttempt, error)

	// Transition atomically moves the attempt from one status to another
	// and returns the updated copy. It fails with ErrNotFound when the id
	// is unknown and ErrConflict when the attempt is no longer in the
	// from status.
	Transition(ctx context.Context, id string, from, to domain.AttemptStatus) (domain.AuthenticationAttempt, error)

	// Delete removes the attempt with the given id. Deleting an absent id
	// is not an error.
	Delete(ctx context.Context, id string) error

	// Sweep expires every pending attempt whose deadline passed before
	// now and drops terminal attempts that reached their state more than
	// retain ago. It returns how many attempts it expired and how many
	// records it dropped.
	Sweep(ctx context.Context, now time.Time, retain time.Duration) (expired, dropped int, err error)
}
