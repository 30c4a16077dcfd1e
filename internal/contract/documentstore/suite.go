// Package documentstore provides a contract test suite for DocumentStore
// implementations. Every store adapter must pass it, so the cache service
// can treat backends interchangeably.
package documentstore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/ports"
)

// Factory creates a fresh, empty DocumentStore implementation for testing.
type Factory func(t *testing.T) ports.DocumentStore

// Run executes the complete contract test suite against any DocumentStore
// implementation.
func Run(t *testing.T, newImpl Factory) {
	t.Helper()
	t.Run("missing key returns not found", func(t *testing.T) {
		testMissingKey(t, newImpl)
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		testPutGet(t, newImpl)
	})

	t.Run("put replaces previous entry", func(t *testing.T) {
		testPutReplaces(t, newImpl)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		testDeleteIdempotent(t, newImpl)
	})

	t.Run("delete domain scopes to the domain", func(t *testing.T) {
		testDeleteDomain(t, newImpl)
	})
}

func testMissingKey(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)

	_, err := store.Get(context.Background(), "agent:absent.example")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get on an absent key = %v, want ErrNotFound", err)
	}
}

func testPutGet(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	entry := newEntry(t, "did:fan:example.com:alice")
	if err := store.Put(ctx, "subject:alice", entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "subject:alice")
	if err != nil {
		t.Fatalf("Get after Put failed: %v", err)
	}
	assertEntriesEqual(t, entry, got)
}

func testPutReplaces(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	if err := store.Put(ctx, "subject:alice", newEntry(t, "did:fan:example.com:alice")); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	replacement := newEntry(t, "did:fan:example.com:alice")
	if err := store.Put(ctx, "subject:alice", replacement); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := store.Get(ctx, "subject:alice")
	if err != nil {
		t.Fatalf("Get after replacement failed: %v", err)
	}
	assertEntriesEqual(t, replacement, got)
}

func testDeleteIdempotent(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	if err := store.Put(ctx, "subject:alice", newEntry(t, "did:fan:example.com:alice")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(ctx, "subject:alice"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "subject:alice"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get after Delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "subject:alice"); err != nil {
		t.Errorf("Delete of an absent key = %v, want nil", err)
	}
}

func testDeleteDomain(t *testing.T, newImpl Factory) {
	t.Helper()
	store := newImpl(t)
	ctx := context.Background()

	seed := map[string]string{
		"agent:example.com":                  "did:fan:example.com",
		"subject:did:fan:example.com:alice":  "did:fan:example.com:alice",
		"subject:did:fan:unrelated.org:carl": "did:fan:unrelated.org:carl",
	}
	for key, subject := range seed {
		if err := store.Put(ctx, key, newEntry(t, subject)); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	dropped, err := store.DeleteDomain(ctx, "example.com")
	if err != nil {
		t.Fatalf("DeleteDomain failed: %v", err)
	}
	if dropped != 2 {
		t.Errorf("DeleteDomain dropped %d entries, want 2", dropped)
	}

	if _, err := store.Get(ctx, "agent:example.com"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("agent entry survived DeleteDomain: %v", err)
	}
	if _, err := store.Get(ctx, "subject:did:fan:example.com:alice"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("subject entry survived DeleteDomain: %v", err)
	}
	if _, err := store.Get(ctx, "subject:did:fan:unrelated.org:carl"); err != nil {
		t.Errorf("unrelated domain was invalidated: %v", err)
	}
}

// newEntry builds a verified cache entry for the given subject.
func newEntry(t *testing.T, subject string) *domain.CacheEntry {
	t.Helper()

	did, err := domain.ParseDID(subject)
	if err != nil {
		t.Fatalf("failed to parse DID %q: %v", subject, err)
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

	now := time.Now()
	entry, err := domain.NewCacheEntry(did, doc, "envelope", now.Add(-time.Hour), now, 10*time.Minute)
	if err != nil {
		t.Fatalf("failed to build cache entry: %v", err)
	}
	return entry
}

// assertEntriesEqual asserts the stored entry still describes the same
// document. Stores may hand back the same pointer or a copy; both satisfy
// the contract.
func assertEntriesEqual(t *testing.T, want, got *domain.CacheEntry) {
	t.Helper()
	if got == nil {
		t.Fatal("Get returned nil entry without error")
	}
	if got.DID() != want.DID() {
		t.Errorf("entry DID = %s, want %s", got.DID(), want.DID())
	}
	if got.Envelope() != want.Envelope() {
		t.Errorf("entry envelope = %q, want %q", got.Envelope(), want.Envelope())
	}
	if !got.FetchedAt().Equal(want.FetchedAt()) {
		t.Errorf("entry fetchedAt = %v, want %v", got.FetchedAt(), want.FetchedAt())
	}
	if got.Document() == nil || got.Document().Subject() != want.Document().Subject() {
		t.Error("entry document does not match the stored document")
	}
}
