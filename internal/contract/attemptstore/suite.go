// Package attemptstore provides a contract test suite for AttemptStore
// implementations. The authenticator's replay guarantees rest on these
// behaviors, so every backend must pass the full suite.
package attemptstore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/ports"
)

// Factory creates a fresh, empty AttemptStore implementation for testing.
type Factory func(t *testing.T) ports.AttemptStore

// Run executes the complete contract test suite against any AttemptStore
// implementation.
func Run(t *testing.T, newImpl Factory) {
	t.Helper()
	t.Run("identifiers are never reused", func(t *testing.T) {
		testDuplicateID(t, newImpl)
	})

	t.Run("missing id returns not found", func(t *testing.T) {
		testMissingID(t, newImpl)
	})

	t.Run("transition moves the status", func(t *testing.T) {
		testTransition(t, newImpl)
	})

	t.Run("transition rejects a stale from status", func(t *testing.T) {
		testTransitionConflict(t, newImpl)
	})

	t.Run("transition admits exactly one winner", func(t *testing.T) {
		testTransitionSingleWinner(t, newImpl)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		testDeleteIdempotent(t, newImpl)
	})

	t.Run("sweep expires overdue pending attempts", func(t *testing.T) {
		testSweepExpires(t, newImpl)
	})

	t.Run("sweep drops terminal attempts after retention", func(t *testing.T) {
		testSweepDrops(t, newImpl)
	})
}

func testDuplicateID(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	attempt := newAttempt(t, "attempt-1", time.Now(), time.Minute)
	if err := store.Create(ctx, attempt); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, attempt); !errors.Is(err, ports.ErrDuplicate) {
		t.Errorf("Create with a reused id = %v, want ErrDuplicate", err)
	}

	// The id stays burned even after the attempt turns terminal.
	if _, err := store.Transition(ctx, "attempt-1", domain.AttemptPending, domain.AttemptFailed); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := store.Create(ctx, attempt); !errors.Is(err, ports.ErrDuplicate) {
		t.Errorf("Create with a terminal id = %v, want ErrDuplicate", err)
	}
}

func testMissingID(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "absent"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get on an absent id = %v, want ErrNotFound", err)
	}
	if _, err := store.Transition(ctx, "absent", domain.AttemptPending, domain.AttemptSucceeded); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Transition on an absent id = %v, want ErrNotFound", err)
	}
}

func testTransition(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	if err := store.Create(ctx, newAttempt(t, "attempt-1", time.Now(), time.Minute)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.Transition(ctx, "attempt-1", domain.AttemptPending, domain.AttemptSucceeded)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if updated.Status != domain.AttemptSucceeded {
		t.Errorf("Transition returned status %s, want succeeded", updated.Status)
	}

	got, err := store.Get(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("Get after Transition failed: %v", err)
	}
	if got.Status != domain.AttemptSucceeded {
		t.Errorf("stored status = %s, want succeeded", got.Status)
	}
}

func testTransitionConflict(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	if err := store.Create(ctx, newAttempt(t, "attempt-1", time.Now(), time.Minute)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Transition(ctx, "attempt-1", domain.AttemptPending, domain.AttemptFailed); err != nil {
		t.Fatalf("first Transition failed: %v", err)
	}

	if _, err := store.Transition(ctx, "attempt-1", domain.AttemptPending, domain.AttemptSucceeded); !errors.Is(err, ports.ErrConflict) {
		t.Errorf("Transition from a stale status = %v, want ErrConflict", err)
	}

	got, err := store.Get(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.AttemptFailed {
		t.Errorf("losing transition mutated the attempt: status = %s", got.Status)
	}
}

func testTransitionSingleWinner(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	if err := store.Create(ctx, newAttempt(t, "contested", time.Now(), time.Minute)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Transition(ctx, "contested", domain.AttemptPending, domain.AttemptSucceeded)
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ports.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected Transition error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d transitions won, want exactly 1", wins)
	}
	if conflicts != workers-1 {
		t.Errorf("%d transitions lost, want %d", conflicts, workers-1)
	}
}

func testDeleteIdempotent(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	if err := store.Create(ctx, newAttempt(t, "attempt-1", time.Now(), time.Minute)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Delete(ctx, "attempt-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "attempt-1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "attempt-1"); err != nil {
		t.Errorf("Delete of an absent id = %v, want nil", err)
	}
}

func testSweepExpires(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Create(ctx, newAttempt(t, "overdue", base, time.Minute)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, newAttempt(t, "live", base, time.Hour)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	expired, dropped, err := store.Sweep(ctx, base.Add(10*time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("Sweep expired %d attempts, want 1", expired)
	}
	if dropped != 0 {
		t.Errorf("Sweep dropped %d attempts, want 0", dropped)
	}

	got, err := store.Get(ctx, "overdue")
	if err != nil {
		t.Fatalf("expired attempt must stay readable until retention passes: %v", err)
	}
	if got.Status != domain.AttemptExpired {
		t.Errorf("overdue attempt status = %s, want expired", got.Status)
	}

	got, err = store.Get(ctx, "live")
	if err != nil || got.Status != domain.AttemptPending {
		t.Errorf("live attempt changed: status=%s err=%v", got.Status, err)
	}
}

func testSweepDrops(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Create(ctx, newAttempt(t, "short-lived", base, time.Minute)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// First sweep stamps the expiry; the record survives retention.
	if _, _, err := store.Sweep(ctx, base.Add(5*time.Minute), time.Hour); err != nil {
		t.Fatalf("first Sweep failed: %v", err)
	}
	if _, err := store.Get(ctx, "short-lived"); err != nil {
		t.Fatalf("expired attempt dropped before retention passed: %v", err)
	}

	// A sweep past the retention window drops it.
	expired, dropped, err := store.Sweep(ctx, base.Add(5*time.Minute).Add(2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if expired != 0 {
		t.Errorf("second Sweep expired %d attempts, want 0", expired)
	}
	if dropped != 1 {
		t.Errorf("second Sweep dropped %d attempts, want 1", dropped)
	}
	if _, err := store.Get(ctx, "short-lived"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get after retention drop = %v, want ErrNotFound", err)
	}
}

// newAttempt builds a pending attempt against a freshly generated subject
// document.
func newAttempt(t *testing.T, id string, issuedAt time.Time, ttl time.Duration) domain.AuthenticationAttempt {
	t.Helper()

	did, err := domain.ParseDID("did:fan:example.com:alice")
	if err != nil {
		t.Fatalf("failed to parse DID: %v", err)
	}

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	doc, err := domain.NewDIDDocument(did, []domain.VerificationMethod{{
		ID:   "#key-1",
		Type: domain.MethodTypeJSONWebKey2020,
		PublicKeyJWK: &jose.JSONWebKey{
			Key:       pub,
			KeyID:     "#key-1",
			Algorithm: string(jose.EdDSA),
			Use:       "sig",
		},
	}}, []string{"#key-1"}, nil)
	if err != nil {
		t.Fatalf("failed to build document: %v", err)
	}

	nonce, err := domain.NewNonce(domain.DefaultNonceSize)
	if err != nil {
		t.Fatalf("failed to generate nonce: %v", err)
	}

	attempt, err := domain.NewAuthenticationAttempt(id, doc, nonce, issuedAt, ttl)
	if err != nil {
		t.Fatalf("failed to build attempt: %v", err)
	}
	return attempt
}
