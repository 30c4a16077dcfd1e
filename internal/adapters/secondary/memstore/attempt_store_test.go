package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/ports"
)

func newTestAttempt(t *testing.T, id string, issuedAt time.Time, ttl time.Duration) domain.AuthenticationAttempt {
	t.Helper()
	doc := newTestDocument(t, "did:fan:example.com:alice")
	nonce, err := domain.NewNonce(domain.DefaultNonceSize)
	require.NoError(t, err)
	attempt, err := domain.NewAuthenticationAttempt(id, doc, nonce, issuedAt, ttl)
	require.NoError(t, err)
	return attempt
}

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	attempt := newTestAttempt(t, "attempt-1", time.Now(), time.Minute)

	require.NoError(t, store.Create(ctx, attempt))
	require.ErrorIs(t, store.Create(ctx, attempt), ports.ErrDuplicate)

	got, err := store.Get(ctx, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptPending, got.Status)

	updated, err := store.Transition(ctx, "attempt-1", domain.AttemptPending, domain.AttemptSucceeded)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptSucceeded, updated.Status)

	got, err = store.Get(ctx, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptSucceeded, got.Status)

	_, err = store.Transition(ctx, "attempt-1", domain.AttemptPending, domain.AttemptSucceeded)
	require.ErrorIs(t, err, ports.ErrConflict)

	_, err = store.Transition(ctx, "missing", domain.AttemptPending, domain.AttemptSucceeded)
	require.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "attempt-1"))
	_, err = store.Get(ctx, "attempt-1")
	require.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "attempt-1"), "deleting an absent id is not an error")
}

func TestTransitionAdmitsOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	require.NoError(t, store.Create(ctx, newTestAttempt(t, "contested", time.Now(), time.Minute)))

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Transition(ctx, "contested", domain.AttemptPending, domain.AttemptSucceeded)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			default:
				require.ErrorIs(t, err, ports.ErrConflict)
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
}

func TestSweepExpiresAndDrops(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store := NewAttemptStore().WithClock(func() time.Time { return now })

	require.NoError(t, store.Create(ctx, newTestAttempt(t, "stale-terminal", base, time.Minute)))
	_, err := store.Transition(ctx, "stale-terminal", domain.AttemptPending, domain.AttemptSucceeded)
	require.NoError(t, err)

	now = base.Add(9 * time.Minute)
	require.NoError(t, store.Create(ctx, newTestAttempt(t, "fresh-terminal", base, time.Minute)))
	_, err = store.Transition(ctx, "fresh-terminal", domain.AttemptPending, domain.AttemptFailed)
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, newTestAttempt(t, "overdue-pending", base, time.Minute)))
	require.NoError(t, store.Create(ctx, newTestAttempt(t, "live-pending", base, time.Hour)))

	expired, dropped, err := store.Sweep(ctx, base.Add(10*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, expired, "only the overdue pending attempt expires")
	assert.Equal(t, 1, dropped, "only the stale terminal attempt is dropped")
	assert.Equal(t, 3, store.Len())

	got, err := store.Get(ctx, "overdue-pending")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptExpired, got.Status)

	expired, dropped, err = store.Sweep(ctx, base.Add(20*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.Equal(t, 2, dropped, "previously expired and failed attempts age out")
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, "live-pending")
	require.NoError(t, err)
}
