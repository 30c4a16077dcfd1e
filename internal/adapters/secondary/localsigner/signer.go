// Package localsigner signs published material with private JWKs held by
// this deployment, typically loaded from key files on local disk.
package localsigner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"

	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// Config holds the dependencies of a Signer.
type Config struct {
	// Gateway produces the signature envelopes.
	Gateway ports.CryptoGateway
	// Keys are the private JWKs to sign with. Every published envelope
	// carries one signature per key.
	Keys []jose.JSONWebKey
}

// Signer implements ports.Signer over a fixed private key set.
type Signer struct {
	gateway ports.CryptoGateway
	keys    []jose.JSONWebKey
}

// New creates a Signer from already loaded keys.
func New(cfg Config) (*Signer, error) {
	if cfg.Gateway == nil {
		return nil, &coreerrors.ValidationError{Field: "gateway", Value: nil, Message: "crypto gateway cannot be nil"}
	}
	if len(cfg.Keys) == 0 {
		return nil, &coreerrors.ValidationError{Field: "keys", Value: cfg.Keys, Message: "at least one signing key is required"}
	}
	for _, key := range cfg.Keys {
		if !key.Valid() {
			return nil, &coreerrors.ValidationError{Field: "keys", Value: key.KeyID, Message: "signing key is not a valid JWK"}
		}
		if key.IsPublic() {
			return nil, &coreerrors.ValidationError{Field: "keys", Value: key.KeyID, Message: "signing requires a private key"}
		}
	}
	return &Signer{gateway: cfg.Gateway, keys: cfg.Keys}, nil
}

// Load reads one private JWK per path and creates a Signer over them.
func Load(gateway ports.CryptoGateway, paths ...string) (*Signer, error) {
	keys := make([]jose.JSONWebKey, 0, len(paths))
	for _, path := range paths {
		key, err := ReadKeyFile(path)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return New(Config{Gateway: gateway, Keys: keys})
}

// ReadKeyFile parses a single JWK from a JSON file.
func ReadKeyFile(path string) (jose.JSONWebKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("failed to read signing key %s: %w", path, err)
	}
	var key jose.JSONWebKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("failed to parse signing key %s: %w", path, err)
	}
	return key, nil
}

var _ ports.Signer = (*Signer)(nil)

// Sign wraps payload in a signature envelope carrying one signature per
// configured key.
func (s *Signer) Sign(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.gateway.Sign(payload, s.keys)
}

// Keys returns the public halves of the configured keys, in order. The
// agent document a deployment publishes must list exactly these.
func (s *Signer) Keys() []jose.JSONWebKey {
	public := make([]jose.JSONWebKey, 0, len(s.keys))
	for _, key := range s.keys {
		public = append(public, key.Public())
	}
	return public
}
