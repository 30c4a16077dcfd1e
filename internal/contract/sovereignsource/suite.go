// Package sovereignsource provides a contract test suite for
// SovereignSource implementations.
package sovereignsource

import (
	"context"
	"errors"
	"testing"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/ports"
)

// Factory creates a fresh, empty SovereignSource implementation for testing.
type Factory func(t *testing.T) ports.SovereignSource

// Run executes the complete contract test suite against any SovereignSource
// implementation.
func Run(t *testing.T, newImpl Factory) {
	t.Helper()
	t.Run("unregistered identity returns not found", func(t *testing.T) {
		testUnregistered(t, newImpl)
	})

	t.Run("register then lookup round-trips", func(t *testing.T) {
		testRegisterLookup(t, newImpl)
	})

	t.Run("register replaces previous envelope", func(t *testing.T) {
		testRegisterReplaces(t, newImpl)
	})

	t.Run("registrations are keyed by identity", func(t *testing.T) {
		testKeyedByIdentity(t, newImpl)
	})
}

func testUnregistered(t *testing.T, newImpl Factory) {
	t.Helper()
	source := newImpl(t)

	if _, err := source.Lookup(context.Background(), sovereignDID(t, "nobody")); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Lookup of an unregistered identity = %v, want ErrNotFound", err)
	}
}

func testRegisterLookup(t *testing.T, newImpl Factory) {
	t.Helper()
	source := newImpl(t)
	ctx := context.Background()
	did := sovereignDID(t, "alice")

	if err := source.Register(ctx, did, "signed-envelope"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	envelope, err := source.Lookup(ctx, did)
	if err != nil {
		t.Fatalf("Lookup after Register failed: %v", err)
	}
	if envelope != "signed-envelope" {
		t.Errorf("Lookup returned %q, want the registered envelope", envelope)
	}
}

func testRegisterReplaces(t *testing.T, newImpl Factory) {
	t.Helper()
	source := newImpl(t)
	ctx := context.Background()
	did := sovereignDID(t, "alice")

	if err := source.Register(ctx, did, "first"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := source.Register(ctx, did, "rotated"); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	envelope, err := source.Lookup(ctx, did)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if envelope != "rotated" {
		t.Errorf("Lookup returned %q after re-registration, want %q", envelope, "rotated")
	}
}

func testKeyedByIdentity(t *testing.T, newImpl Factory) {
	t.Helper()
	source := newImpl(t)
	ctx := context.Background()

	if err := source.Register(ctx, sovereignDID(t, "alice"), "alice-envelope"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := source.Register(ctx, sovereignDID(t, "bob"), "bob-envelope"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	envelope, err := source.Lookup(ctx, sovereignDID(t, "bob"))
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if envelope != "bob-envelope" {
		t.Errorf("Lookup returned %q, want bob's envelope", envelope)
	}
}

func sovereignDID(t *testing.T, identifier string) domain.DID {
	t.Helper()
	address, err := domain.ParseAddress(identifier + "@" + domain.SovereignDomain)
	if err != nil {
		t.Fatalf("failed to build sovereign address: %v", err)
	}
	return address.SovereignDID()
}
