package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// AuthenticationResult is the outcome of a completed challenge response.
type AuthenticationResult struct {
	// Subject is the authenticated DID.
	Subject domain.DID
	// AttemptID names the attempt that was resolved.
	AttemptID string
	// Session is the minted login credential, nil when the site issues
	// none.
	Session *ports.Session
}

// WebsiteConfig carries the collaborators of a Website.
type WebsiteConfig struct {
	Resolver      *Resolver
	Authenticator *ChallengeAuthenticator

	// Sessions, when set, mints a session credential after each
	// successful authentication.
	Sessions ports.SessionIssuer

	Logger *slog.Logger
}

// Website is the relying-party face of the engine: it turns an address into
// a challenge and a challenge response into an authenticated subject.
//
// Each authentication begins with a fresh resolution of the subject's
// document, so key rotations on the subject's agent take effect on the next
// attempt. The resulting document's keys seal the challenge; the response
// is evaluated against the same document.
type Website struct {
	resolver *Resolver
	auth     *ChallengeAuthenticator
	sessions ports.SessionIssuer
	logger   *slog.Logger
}

// NewWebsite creates a Website from the given configuration.
func NewWebsite(cfg WebsiteConfig) (*Website, error) {
	if cfg.Resolver == nil {
		return nil, &coreerrors.ValidationError{Field: "Resolver", Value: nil, Message: "resolver cannot be nil"}
	}
	if cfg.Authenticator == nil {
		return nil, &coreerrors.ValidationError{Field: "Authenticator", Value: nil, Message: "authenticator cannot be nil"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Website{
		resolver: cfg.Resolver,
		auth:     cfg.Authenticator,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
	}, nil
}

// BeginAuthentication resolves the subject behind rawAddress and issues a
// challenge toward it.
func (w *Website) BeginAuthentication(ctx context.Context, rawAddress string) (*Challenge, error) {
	addr, err := domain.ParseAddress(rawAddress)
	if err != nil {
		return nil, err
	}

	doc, err := w.resolver.Resolve(ctx, addr)
	if err != nil {
		return nil, err
	}

	challenge, err := w.auth.Issue(ctx, doc)
	if err != nil {
		return nil, err
	}

	w.logger.Debug("authentication started", "address", addr.String(), "attempt", challenge.AttemptID)
	return challenge, nil
}

// CompleteAuthentication evaluates a signed challenge response. On success
// the subject is authenticated and, when the site issues sessions, a
// session credential is attached.
func (w *Website) CompleteAuthentication(ctx context.Context, envelope string) (*AuthenticationResult, error) {
	attempt, err := w.auth.Respond(ctx, envelope)
	if err != nil {
		return nil, err
	}

	result := &AuthenticationResult{
		Subject:   attempt.Subject,
		AttemptID: attempt.ID,
	}

	if w.sessions != nil {
		session, err := w.sessions.Issue(ctx, attempt.Subject)
		if err != nil {
			// The attempt is consumed either way; without the session
			// credential the caller cannot use the outcome.
			w.logger.Error("session issuance failed after successful authentication",
				"attempt", attempt.ID, "subject", attempt.Subject.String(), "error", err)
			return nil, fmt.Errorf("authentication succeeded but session issuance failed: %w", err)
		}
		result.Session = session
	}

	return result, nil
}
