package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/sufield/fan/internal/core/errors"
)

type websiteWorld struct {
	*resolverWorld
	attempts *fakeAttemptStore
	sessions *fakeSessionIssuer
	site     *Website
}

func newWebsiteWorld(t *testing.T, mutate func(*WebsiteConfig)) *websiteWorld {
	t.Helper()

	w := &websiteWorld{
		resolverWorld: newResolverWorld(t),
		attempts:      newFakeAttemptStore(),
		sessions:      &fakeSessionIssuer{},
	}
	// Subjects answer challenges with their own keys; resolutions verify
	// against the agent's.
	w.crypto.allow("#subject-key")
	w.serveBoth(w.clock.Now().Add(-time.Hour))

	auth, err := NewChallengeAuthenticator(AuthenticatorConfig{
		Crypto:   w.crypto,
		Attempts: w.attempts,
		Logger:   discardLogger(),
		Clock:    w.clock.Now,
	})
	require.NoError(t, err)

	cfg := WebsiteConfig{
		Resolver:      w.newResolver(t, nil),
		Authenticator: auth,
		Sessions:      w.sessions,
		Logger:        discardLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	site, err := NewWebsite(cfg)
	require.NoError(t, err)
	w.site = site
	return w
}

func (w *websiteWorld) answer(t *testing.T, challenge *Challenge) string {
	t.Helper()
	plain, err := w.crypto.Decrypt(challenge.Envelope, jose.JSONWebKey{})
	require.NoError(t, err)
	return string(plain)
}

func TestNewWebsite_Validation(t *testing.T) {
	w := newWebsiteWorld(t, nil)

	_, err := NewWebsite(WebsiteConfig{Authenticator: w.site.auth})
	require.Error(t, err)
	_, err = NewWebsite(WebsiteConfig{Resolver: w.site.resolver})
	require.Error(t, err)
}

func TestWebsite_AuthenticationFlow(t *testing.T) {
	w := newWebsiteWorld(t, nil)
	ctx := context.Background()

	challenge, err := w.site.BeginAuthentication(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, challenge.Subject.Equals(w.subjectDID))

	result, err := w.site.CompleteAuthentication(ctx, w.answer(t, challenge))
	require.NoError(t, err)
	assert.True(t, result.Subject.Equals(w.subjectDID))
	assert.Equal(t, challenge.AttemptID, result.AttemptID)

	require.NotNil(t, result.Session)
	assert.Equal(t, "session-for-did:fan:example.com:alice", result.Session.Token)
	assert.True(t, result.Session.Subject.Equals(w.subjectDID))
}

func TestWebsite_MalformedAddress(t *testing.T) {
	w := newWebsiteWorld(t, nil)

	_, err := w.site.BeginAuthentication(context.Background(), "not-an-address")
	require.ErrorIs(t, err, coreerrors.ErrMalformedAddress)
	assert.Zero(t, w.fetcher.callCount(), "a malformed address must not reach the network")
}

func TestWebsite_UnresolvableSubject(t *testing.T) {
	w := newWebsiteWorld(t, nil)
	w.fetcher.fail(w.agentURL, coreerrors.Newf(coreerrors.ErrFetchFailed, "connection refused"))

	_, err := w.site.BeginAuthentication(context.Background(), "alice@example.com")
	require.ErrorIs(t, err, coreerrors.ErrAgentDocumentUnreachable)
}

func TestWebsite_SovereignAddressGatedByPolicy(t *testing.T) {
	w := newWebsiteWorld(t, nil)

	_, err := w.site.BeginAuthentication(context.Background(), "alice@_sovereign_")
	require.ErrorIs(t, err, coreerrors.ErrSovereignRejected)
}

func TestWebsite_ReplayRejected(t *testing.T) {
	w := newWebsiteWorld(t, nil)
	ctx := context.Background()

	challenge, err := w.site.BeginAuthentication(ctx, "alice@example.com")
	require.NoError(t, err)
	answer := w.answer(t, challenge)

	_, err = w.site.CompleteAuthentication(ctx, answer)
	require.NoError(t, err)

	_, err = w.site.CompleteAuthentication(ctx, answer)
	require.ErrorIs(t, err, coreerrors.ErrUnknownAttempt)
}

func TestWebsite_SessionIssuanceFailure(t *testing.T) {
	w := newWebsiteWorld(t, nil)
	w.sessions.err = errors.New("token backend unavailable")
	ctx := context.Background()

	challenge, err := w.site.BeginAuthentication(ctx, "alice@example.com")
	require.NoError(t, err)
	answer := w.answer(t, challenge)

	_, err = w.site.CompleteAuthentication(ctx, answer)
	require.Error(t, err)
	assert.ErrorContains(t, err, "session issuance failed")

	// The attempt is consumed regardless; the answer cannot be replayed
	// against a recovered session backend.
	w.sessions.err = nil
	_, err = w.site.CompleteAuthentication(ctx, answer)
	require.ErrorIs(t, err, coreerrors.ErrUnknownAttempt)
}

func TestWebsite_WithoutSessionIssuer(t *testing.T) {
	w := newWebsiteWorld(t, func(cfg *WebsiteConfig) {
		cfg.Sessions = nil
	})
	ctx := context.Background()

	challenge, err := w.site.BeginAuthentication(ctx, "alice@example.com")
	require.NoError(t, err)

	result, err := w.site.CompleteAuthentication(ctx, w.answer(t, challenge))
	require.NoError(t, err)
	assert.Nil(t, result.Session)
}
