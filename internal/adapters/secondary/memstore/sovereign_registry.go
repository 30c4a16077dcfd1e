package memstore

import (
	"context"
	"sync"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/ports"
)

// SovereignRegistry implements ports.SovereignSource over a map. Sovereign
// envelopes arrive out of band, so deployments typically seed the registry
// at startup or behind an admin surface.
type SovereignRegistry struct {
	mu        sync.RWMutex
	envelopes map[string]string
}

// NewSovereignRegistry creates an empty SovereignRegistry.
func NewSovereignRegistry() *SovereignRegistry {
	return &SovereignRegistry{envelopes: make(map[string]string)}
}

var _ ports.SovereignSource = (*SovereignRegistry)(nil)

// Lookup returns the registered signed envelope for a sovereign DID, or
// ErrNotFound.
func (r *SovereignRegistry) Lookup(ctx context.Context, did domain.DID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	envelope, ok := r.envelopes[did.String()]
	if !ok {
		return "", ports.ErrNotFound
	}
	return envelope, nil
}

// Register stores the signed envelope for a sovereign DID, replacing any
// previous registration.
func (r *SovereignRegistry) Register(ctx context.Context, did domain.DID, envelope string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes[did.String()] = envelope
	return nil
}

// Len returns how many sovereign registrations the registry holds.
func (r *SovereignRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.envelopes)
}
