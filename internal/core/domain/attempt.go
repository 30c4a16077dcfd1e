package domain

import (
	"fmt"
	"time"
)

// AttemptStatus is an enum for the lifecycle of an authentication attempt.
// Pending is the only non-terminal state.
type AttemptStatus int

const (
	AttemptUnknown AttemptStatus = iota
	AttemptPending
	AttemptSucceeded
	AttemptFailed
	AttemptExpired
)

var attemptStatusStrings = map[AttemptStatus]string{
	AttemptPending:   "pending",
	AttemptSucceeded: "succeeded",
	AttemptFailed:    "failed",
	AttemptExpired:   "expired",
}

// String returns the string representation.
func (s AttemptStatus) String() string {
	if str, ok := attemptStatusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// IsTerminal reports whether the status admits no further transition.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptSucceeded, AttemptFailed, AttemptExpired:
		return true
	default:
		return false
	}
}

// AuthenticationAttempt is one pending challenge toward a subject. It
// references the resolved subject document from issuance time so the
// response is checked against exactly the keys the challenge was encrypted
// to.
type AuthenticationAttempt struct {
	ID        string
	Subject   DID
	Document  *DIDDocument
	Nonce     Nonce
	Status    AttemptStatus
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewAuthenticationAttempt creates a pending attempt.
func NewAuthenticationAttempt(id string, doc *DIDDocument, nonce Nonce, issuedAt time.Time, ttl time.Duration) (AuthenticationAttempt, error) {
	if id == "" {
		return AuthenticationAttempt{}, fmt.Errorf("attempt id cannot be empty")
	}
	if doc == nil {
		return AuthenticationAttempt{}, fmt.Errorf("attempt requires a resolved subject document")
	}
	if nonce.IsZero() {
		return AuthenticationAttempt{}, fmt.Errorf("attempt requires a nonce")
	}
	if ttl <= 0 {
		return AuthenticationAttempt{}, fmt.Errorf("attempt ttl must be positive, got %v", ttl)
	}

	return AuthenticationAttempt{
		ID:        id,
		Subject:   doc.Subject(),
		Document:  doc,
		Nonce:     nonce,
		Status:    AttemptPending,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}, nil
}

// ExpiredAt reports whether the attempt's deadline has passed at now.
func (a AuthenticationAttempt) ExpiredAt(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
