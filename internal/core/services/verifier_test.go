package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
)

func newTestVerifier(t *testing.T, crypto *fakeCrypto) *TrustVerifier {
	t.Helper()
	v, err := NewTrustVerifier(crypto, discardLogger(), nil)
	require.NoError(t, err)
	return v
}

func TestNewTrustVerifier_RequiresCrypto(t *testing.T) {
	_, err := NewTrustVerifier(nil, nil, nil)
	require.Error(t, err)

	var validationErr *coreerrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestVerifyAgentDocument_AllRequiredSignaturesPresent(t *testing.T) {
	crypto := newFakeCrypto("#key-1", "#key-2")
	v := newTestVerifier(t, crypto)

	subject := mustParseDID(t, "did:fan:example.com")
	doc := buildDocument(t, subject,
		[]domain.VerificationMethod{newKeyedMethod(t, "#key-1"), newKeyedMethod(t, "#key-2")},
		[]string{"#key-1", "#key-2"}, nil)

	got, err := v.VerifyAgentDocument("example.com", envelopeFor(t, doc))
	require.NoError(t, err)
	assert.True(t, got.Subject().Equals(subject))
	assert.Len(t, got.Authentication(), 2)
}

func TestVerifyAgentDocument_OneMissingSignatureFails(t *testing.T) {
	// Only #key-1 signed; the document demands both.
	crypto := newFakeCrypto("#key-1")
	v := newTestVerifier(t, crypto)

	subject := mustParseDID(t, "did:fan:example.com")
	doc := buildDocument(t, subject,
		[]domain.VerificationMethod{newKeyedMethod(t, "#key-1"), newKeyedMethod(t, "#key-2")},
		[]string{"#key-1", "#key-2"}, nil)

	_, err := v.VerifyAgentDocument("example.com", envelopeFor(t, doc))
	require.ErrorIs(t, err, coreerrors.ErrAgentUntrusted)
	assert.ErrorIs(t, err, coreerrors.ErrSignatureInvalid)
	assert.NotErrorIs(t, err, coreerrors.ErrNoVerificationMethods)
	assert.ErrorContains(t, err, "#key-2")
}

func TestVerifyAgentDocument_DomainMismatch(t *testing.T) {
	crypto := newFakeCrypto("#key-1")
	v := newTestVerifier(t, crypto)

	doc := buildDocument(t, mustParseDID(t, "did:fan:example.com"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#key-1")},
		[]string{"#key-1"}, nil)

	_, err := v.VerifyAgentDocument("other.org", envelopeFor(t, doc))
	require.ErrorIs(t, err, coreerrors.ErrAgentUntrusted)
	assert.ErrorContains(t, err, "describes")
}

func TestVerifyAgentDocument_EmptyRequiredSet(t *testing.T) {
	crypto := newFakeCrypto("#key-1")
	v := newTestVerifier(t, crypto)

	doc := buildDocument(t, mustParseDID(t, "did:fan:example.com"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#key-1")},
		nil, nil)

	_, err := v.VerifyAgentDocument("example.com", envelopeFor(t, doc))
	require.ErrorIs(t, err, coreerrors.ErrNoVerificationMethods)
	assert.NotErrorIs(t, err, coreerrors.ErrAgentUntrusted)
}

func TestVerifyAgentDocument_DanglingMethodReference(t *testing.T) {
	crypto := newFakeCrypto("#key-1", "#ghost")
	v := newTestVerifier(t, crypto)

	doc := buildDocument(t, mustParseDID(t, "did:fan:example.com"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#key-1")},
		[]string{"#key-1", "#ghost"}, nil)

	_, err := v.VerifyAgentDocument("example.com", envelopeFor(t, doc))
	require.ErrorIs(t, err, coreerrors.ErrNoVerificationMethods)
	assert.ErrorContains(t, err, "#ghost")
}

func TestVerifyAgentDocument_UndecodableEnvelope(t *testing.T) {
	crypto := newFakeCrypto("#key-1")
	crypto.decodeErr = coreerrors.Newf(coreerrors.ErrSignatureInvalid, "not a signature envelope")
	v := newTestVerifier(t, crypto)

	_, err := v.VerifyAgentDocument("example.com", "garbage")
	require.ErrorIs(t, err, coreerrors.ErrAgentUntrusted)
	assert.ErrorIs(t, err, coreerrors.ErrSignatureInvalid)
}

func TestVerifyAgentDocument_PayloadIsNotATrustPayload(t *testing.T) {
	crypto := newFakeCrypto("#key-1")
	v := newTestVerifier(t, crypto)

	// Decodes as a signature envelope but the payload carries no document.
	_, err := v.VerifyAgentDocument("example.com", `{"hello":"world"}`)
	require.ErrorIs(t, err, coreerrors.ErrAgentUntrusted)
}

func TestVerifySubjectDocument_CheckedAgainstAgentKeys(t *testing.T) {
	// The agent signed; the subject's own key did not. That is the valid
	// arrangement: subject documents are vouched for by the agent.
	crypto := newFakeCrypto("#agent-key")
	v := newTestVerifier(t, crypto)

	agentDoc := buildDocument(t, mustParseDID(t, "did:fan:example.com"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#agent-key")},
		[]string{"#agent-key"}, nil)
	subjectDID := mustParseDID(t, "did:fan:example.com:alice")
	subjectDoc := buildDocument(t, subjectDID,
		[]domain.VerificationMethod{newKeyedMethod(t, "#subject-key")},
		[]string{"#subject-key"}, nil)

	got, err := v.VerifySubjectDocument(agentDoc, envelopeFor(t, subjectDoc))
	require.NoError(t, err)
	assert.True(t, got.Subject().Equals(subjectDID))
}

func TestVerifySubjectDocument_OwnSignatureDoesNotCount(t *testing.T) {
	// Only the subject's own key signed. Without the agent's signature the
	// document is untrusted no matter what it says about itself.
	crypto := newFakeCrypto("#subject-key")
	v := newTestVerifier(t, crypto)

	agentDoc := buildDocument(t, mustParseDID(t, "did:fan:example.com"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#agent-key")},
		[]string{"#agent-key"}, nil)
	subjectDoc := buildDocument(t, mustParseDID(t, "did:fan:example.com:alice"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#subject-key")},
		[]string{"#subject-key"}, nil)

	_, err := v.VerifySubjectDocument(agentDoc, envelopeFor(t, subjectDoc))
	require.ErrorIs(t, err, coreerrors.ErrSubjectUntrusted)
}

func TestVerifySubjectDocument_AgentWithoutSigners(t *testing.T) {
	crypto := newFakeCrypto("#agent-key")
	v := newTestVerifier(t, crypto)

	agentDoc := buildDocument(t, mustParseDID(t, "did:fan:example.com"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#agent-key")},
		nil, nil)
	subjectDoc := buildDocument(t, mustParseDID(t, "did:fan:example.com:alice"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#subject-key")},
		[]string{"#subject-key"}, nil)

	_, err := v.VerifySubjectDocument(agentDoc, envelopeFor(t, subjectDoc))
	require.ErrorIs(t, err, coreerrors.ErrNoVerificationMethods)
	assert.NotErrorIs(t, err, coreerrors.ErrSubjectUntrusted)
}

func TestVerifySubjectDocument_NilAgent(t *testing.T) {
	crypto := newFakeCrypto("#agent-key")
	v := newTestVerifier(t, crypto)

	subjectDoc := buildDocument(t, mustParseDID(t, "did:fan:example.com:alice"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#subject-key")},
		[]string{"#subject-key"}, nil)

	_, err := v.VerifySubjectDocument(nil, envelopeFor(t, subjectDoc))
	require.ErrorIs(t, err, coreerrors.ErrSubjectUntrusted)
}

func TestVerifySovereignDocument_CapabilityInvocationSigners(t *testing.T) {
	crypto := newFakeCrypto("#owner")
	v := newTestVerifier(t, crypto)

	subject := mustParseDID(t, "did:fan:_sovereign_:alice")
	doc := buildDocument(t, subject,
		[]domain.VerificationMethod{newKeyedMethod(t, "#owner")},
		nil, []string{"#owner"})

	got, err := v.VerifySovereignDocument(envelopeFor(t, doc))
	require.NoError(t, err)
	assert.True(t, got.Subject().Equals(subject))
}

func TestVerifySovereignDocument_MissingSignature(t *testing.T) {
	crypto := newFakeCrypto()
	v := newTestVerifier(t, crypto)

	doc := buildDocument(t, mustParseDID(t, "did:fan:_sovereign_:alice"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#owner")},
		nil, []string{"#owner"})

	_, err := v.VerifySovereignDocument(envelopeFor(t, doc))
	require.ErrorIs(t, err, coreerrors.ErrSignatureInvalid)
}

func TestVerifySovereignDocument_NoCapabilityInvocation(t *testing.T) {
	crypto := newFakeCrypto("#owner")
	v := newTestVerifier(t, crypto)

	doc := buildDocument(t, mustParseDID(t, "did:fan:_sovereign_:alice"),
		[]domain.VerificationMethod{newKeyedMethod(t, "#owner")},
		[]string{"#owner"}, nil)

	_, err := v.VerifySovereignDocument(envelopeFor(t, doc))
	require.ErrorIs(t, err, coreerrors.ErrNoVerificationMethods)
}
