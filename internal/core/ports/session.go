package ports

import (
	"context"
	"time"

	"github.com/sufield/fan/internal/core/domain"
)

// Session is a signed login token minted after a successful challenge
// response.
type Session struct {
	// Token is the serialized session credential.
	Token string
	// Subject is the authenticated DID.
	Subject domain.DID
	// ExpiresAt is when the token stops being accepted.
	ExpiresAt time.Time
}

// SessionIssuer defines the contract for turning a completed authentication
// into a session credential the surrounding application can hand out.
//
// Implementations must be thread-safe as they may be called concurrently.
type SessionIssuer interface {
	// Issue mints a session for the authenticated subject.
	Issue(ctx context.Context, subject domain.DID) (*Session, error)
}
