package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// Nonce sizes in bytes. Challenges refuse nonces below the minimum.
const (
	MinNonceSize     = 16
	DefaultNonceSize = 32
)

// Nonce is the random challenge material of one authentication attempt.
type Nonce []byte

// NewNonce draws size bytes from the system entropy source.
func NewNonce(size int) (Nonce, error) {
	if size < MinNonceSize {
		return nil, fmt.Errorf("nonce size %d is below the %d byte minimum", size, MinNonceSize)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to draw nonce entropy: %w", err)
	}
	return Nonce(buf), nil
}

// Equal compares two nonces in constant time.
func (n Nonce) Equal(other Nonce) bool {
	if len(n) != len(other) {
		return false
	}
	return subtle.ConstantTimeCompare(n, other) == 1
}

// IsZero reports whether the nonce is empty.
func (n Nonce) IsZero() bool {
	return len(n) == 0
}
