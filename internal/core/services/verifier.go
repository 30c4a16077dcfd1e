package services

import (
	"fmt"
	"log/slog"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// TrustVerifier turns signed document envelopes into verified DIDDocuments.
//
// TRUST EVALUATION ARCHITECTURE:
// Every document enters the engine as a JWS envelope whose payload wraps the
// serialized document next to its content type. Verification decides which
// key set must have signed that exact payload:
//
// 1. AGENT DOCUMENTS:
//   - The required signer set is the embedded document's own
//     `authentication` set (self-referential trust root).
//   - The document must describe the domain it was fetched from; a document
//     claiming another domain is rejected as AgentUntrusted.
//
// 2. SUBJECT DOCUMENTS:
//   - The required signer set is the AGENT document's `authentication` set:
//     the agent vouches for every subject document it serves.
//
// 3. SOVEREIGN DOCUMENTS:
//   - The required signer set is the embedded document's own
//     `capabilityInvocation` set. No third party vouches for the binding;
//     callers apply their own acceptance policy on top.
//
// In every mode the required set reduces with logical AND: each listed
// verification method must have produced a valid signature over the payload.
// An empty or unresolvable required set fails with NoVerificationMethods,
// never vacuously succeeds. A document is only ever constructed from bytes
// that passed this evaluation.
type TrustVerifier struct {
	crypto  ports.CryptoGateway
	logger  *slog.Logger
	metrics MetricsReporter
}

// NewTrustVerifier creates a TrustVerifier on top of the given crypto
// gateway. Logger and metrics fall back to defaults when nil.
func NewTrustVerifier(crypto ports.CryptoGateway, logger *slog.Logger, metrics MetricsReporter) (*TrustVerifier, error) {
	if crypto == nil {
		return nil, &errors.ValidationError{
			Field:   "crypto",
			Value:   nil,
			Message: "crypto gateway cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &TrustVerifier{
		crypto:  crypto,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// VerifyAgentDocument verifies the self-signed trust document of the agent
// serving domainName. The envelope must carry valid signatures from every
// method in the embedded document's own authentication set, and the document
// must describe domainName. Failures carry AgentUntrusted, or
// NoVerificationMethods when the required set is empty or unresolvable.
func (v *TrustVerifier) VerifyAgentDocument(domainName string, envelope string) (*domain.DIDDocument, error) {
	msg, doc, err := v.decodeEnvelope(envelope)
	if err != nil {
		v.metrics.RecordVerification("agent", false)
		return nil, errors.New(errors.ErrAgentUntrusted, err)
	}

	if doc.Subject().Domain() != domainName {
		v.metrics.RecordVerification("agent", false)
		return nil, errors.New(errors.ErrAgentUntrusted,
			fmt.Errorf("document describes %q, fetched from %q", doc.Subject().Domain(), domainName))
	}

	if err := v.requireAllSignatures(msg, doc, doc.Authentication()); err != nil {
		v.metrics.RecordVerification("agent", false)
		return nil, v.wrapSignatureFailure(errors.ErrAgentUntrusted, err)
	}

	v.metrics.RecordVerification("agent", true)
	v.logger.Debug("agent document verified", "domain", domainName, "subject", doc.Subject().String())
	return doc, nil
}

// VerifySubjectDocument verifies a subject document against the agent that
// serves it. The envelope must carry valid signatures from every method in
// agentDoc's authentication set. Failures carry SubjectUntrusted, or
// NoVerificationMethods when the agent's required set is empty or
// unresolvable.
func (v *TrustVerifier) VerifySubjectDocument(agentDoc *domain.DIDDocument, envelope string) (*domain.DIDDocument, error) {
	if agentDoc == nil {
		v.metrics.RecordVerification("subject", false)
		return nil, errors.Newf(errors.ErrSubjectUntrusted, "no agent document to verify against")
	}

	msg, doc, err := v.decodeEnvelope(envelope)
	if err != nil {
		v.metrics.RecordVerification("subject", false)
		return nil, errors.New(errors.ErrSubjectUntrusted, err)
	}

	if err := v.requireAllSignatures(msg, agentDoc, agentDoc.Authentication()); err != nil {
		v.metrics.RecordVerification("subject", false)
		return nil, v.wrapSignatureFailure(errors.ErrSubjectUntrusted, err)
	}

	v.metrics.RecordVerification("subject", true)
	v.logger.Debug("subject document verified",
		"subject", doc.Subject().String(), "agent", agentDoc.Subject().String())
	return doc, nil
}

// VerifySovereignDocument verifies a self-certified document. The envelope
// must carry valid signatures from every method in the embedded document's
// own capabilityInvocation set. This establishes possession of the listed
// keys and nothing more.
func (v *TrustVerifier) VerifySovereignDocument(envelope string) (*domain.DIDDocument, error) {
	msg, doc, err := v.decodeEnvelope(envelope)
	if err != nil {
		v.metrics.RecordVerification("sovereign", false)
		return nil, errors.New(errors.ErrSignatureInvalid, err)
	}

	if err := v.requireAllSignatures(msg, doc, doc.CapabilityInvocation()); err != nil {
		v.metrics.RecordVerification("sovereign", false)
		return nil, err
	}

	v.metrics.RecordVerification("sovereign", true)
	v.logger.Debug("sovereign document verified", "subject", doc.Subject().String())
	return doc, nil
}

// decodeEnvelope parses a signed envelope and extracts the embedded
// document without trusting either yet.
func (v *TrustVerifier) decodeEnvelope(envelope string) (*ports.SignedMessage, *domain.DIDDocument, error) {
	msg, err := v.crypto.DecodeSigned(envelope)
	if err != nil {
		return nil, nil, err
	}

	payload, err := domain.ParseTrustPayload(msg.Payload)
	if err != nil {
		return nil, nil, err
	}

	doc, err := payload.DecodeDocument()
	if err != nil {
		return nil, nil, err
	}

	return msg, doc, nil
}

// requireAllSignatures checks that msg carries a valid signature from every
// method id in ids, resolved against keySource.
func (v *TrustVerifier) requireAllSignatures(msg *ports.SignedMessage, keySource *domain.DIDDocument, ids []string) error {
	if len(ids) == 0 {
		return errors.Newf(errors.ErrNoVerificationMethods,
			"document %s lists no required signers", keySource.Subject())
	}

	for _, id := range ids {
		method, ok := keySource.MethodByID(id)
		if !ok {
			return errors.Newf(errors.ErrNoVerificationMethods,
				"required verification method %q is not defined by %s", id, keySource.Subject())
		}
		key, err := method.Key()
		if err != nil {
			return errors.New(errors.ErrNoVerificationMethods, err)
		}
		if err := v.crypto.VerifyWithKey(msg, key); err != nil {
			return fmt.Errorf("required signature from %q is missing or invalid: %w", id, err)
		}
	}
	return nil
}

// wrapSignatureFailure wraps a failed signature evaluation in the caller's
// failure kind. NoVerificationMethods stays the primary kind so callers can
// tell a structurally unverifiable document from a bad signature.
func (v *TrustVerifier) wrapSignatureFailure(base *errors.ProtocolError, err error) error {
	if errors.KindOf(err) == errors.KindNoVerificationMethods {
		return err
	}
	return errors.New(base, err)
}
