package token

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
)

func newSigningKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func mustDID(t *testing.T, raw string) domain.DID {
	t.Helper()
	did, err := domain.ParseDID(raw)
	require.NoError(t, err)
	return did
}

func TestNewIssuerValidation(t *testing.T) {
	var validationErr *coreerrors.ValidationError

	_, err := NewIssuer(IssuerConfig{Key: newSigningKey(t)})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "issuer", validationErr.Field)

	_, err = NewIssuer(IssuerConfig{Issuer: "https://site.example"})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "key", validationErr.Field)
}

func TestIssueAndVerify(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	issuer, err := NewIssuer(IssuerConfig{
		Issuer: "https://site.example",
		TTL:    30 * time.Minute,
		Key:    newSigningKey(t),
		KeyID:  "session-2025",
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	subject := mustDID(t, "did:fan:example.com:alice")
	session, err := issuer.Issue(context.Background(), subject)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(session.Token, "."))
	assert.True(t, session.Subject.Equals(subject))
	assert.True(t, session.ExpiresAt.Equal(base.Add(30*time.Minute)))

	got, err := issuer.Verify(session.Token)
	require.NoError(t, err)
	assert.True(t, got.Equals(subject))

	now = base.Add(time.Hour)
	_, err = issuer.Verify(session.Token)
	require.ErrorContains(t, err, "rejected")
}

func TestIssueMintsUniqueTokens(t *testing.T) {
	issuer, err := NewIssuer(IssuerConfig{Issuer: "https://site.example", Key: newSigningKey(t)})
	require.NoError(t, err)

	subject := mustDID(t, "did:fan:example.com:alice")
	first, err := issuer.Issue(context.Background(), subject)
	require.NoError(t, err)
	second, err := issuer.Issue(context.Background(), subject)
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	issuer, err := NewIssuer(IssuerConfig{Issuer: "https://site.example", Key: newSigningKey(t)})
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), domain.DID{})
	var validationErr *coreerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	subject := mustDID(t, "did:fan:example.com:alice")

	minting, err := NewIssuer(IssuerConfig{Issuer: "https://site.example", Key: newSigningKey(t)})
	require.NoError(t, err)
	session, err := minting.Issue(context.Background(), subject)
	require.NoError(t, err)

	otherKey, err := NewIssuer(IssuerConfig{Issuer: "https://site.example", Key: newSigningKey(t)})
	require.NoError(t, err)
	_, err = otherKey.Verify(session.Token)
	require.Error(t, err, "a different signing key must reject the token")

	_, err = minting.Verify(session.Token + "tampered")
	require.Error(t, err)
}

func TestVerifyChecksAudience(t *testing.T) {
	key := newSigningKey(t)
	subject := mustDID(t, "did:fan:example.com:alice")

	scoped, err := NewIssuer(IssuerConfig{Issuer: "https://site.example", Audience: "shop", Key: key})
	require.NoError(t, err)
	session, err := scoped.Issue(context.Background(), subject)
	require.NoError(t, err)

	_, err = scoped.Verify(session.Token)
	require.NoError(t, err)

	otherAudience, err := NewIssuer(IssuerConfig{Issuer: "https://site.example", Audience: "forum", Key: key})
	require.NoError(t, err)
	_, err = otherAudience.Verify(session.Token)
	require.Error(t, err, "tokens scoped to another audience must be rejected")
}
