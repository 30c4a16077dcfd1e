package ports

import (
	"context"

	"github.com/go-jose/go-jose/v4"
)

// SignedMessage is a parsed signature envelope. The payload is extracted
// without verification so callers can locate the keys it must be checked
// against; it must not be trusted until one of the gateway's Verify calls
// succeeds.
type SignedMessage struct {
	// Payload is the embedded payload, unverified.
	Payload []byte
	// Envelope is the parsed signature object handed back to the gateway
	// for verification.
	Envelope *jose.JSONWebSignature
}

// CryptoGateway defines the contract for the signing, verification,
// encryption, and decryption steps of the protocol. The engine composes
// trust decisions out of these primitives; Sign and Decrypt involve private
// key material and are only ever exercised by the roles that hold keys.
//
// Implementations must be thread-safe as they may be called concurrently.
type CryptoGateway interface {
	// DecodeSigned parses a serialized signature envelope, compact or
	// JSON, without verifying anything. Failures carry SignatureInvalid.
	DecodeSigned(raw string) (*SignedMessage, error)

	// VerifyWithKey checks that msg carries a valid signature from key.
	// Signatures using algorithms the gateway does not support count as
	// invalid. Failures carry SignatureInvalid.
	VerifyWithKey(msg *SignedMessage, key jose.JSONWebKey) error

	// VerifyAny checks msg against each candidate key and returns the
	// verified payload on the first success. Failures carry
	// SignatureInvalid.
	VerifyAny(msg *SignedMessage, keys []jose.JSONWebKey) ([]byte, error)

	// Sign produces a signature envelope over payload carrying one
	// signature per key. A single key yields the compact serialization;
	// multiple keys yield the general JSON serialization.
	Sign(payload []byte, keys []jose.JSONWebKey) (string, error)

	// Encrypt produces an encryption envelope readable by every holder of
	// the given public keys. A single recipient yields the compact
	// serialization; multiple recipients yield the general JSON
	// serialization.
	Encrypt(payload []byte, keys []jose.JSONWebKey) (string, error)

	// Decrypt opens an encryption envelope with the given private key.
	// Failures carry DecryptionFailed.
	Decrypt(envelope string, key jose.JSONWebKey) ([]byte, error)
}

// Signer produces signature envelopes with this deployment's own keys. The
// key material stays behind the port; the engine only ever sees the signed
// result.
//
// Implementations must be thread-safe as they may be called concurrently.
type Signer interface {
	// Sign wraps payload in a signature envelope carrying one signature
	// per configured key.
	Sign(ctx context.Context, payload []byte) (string, error)
}
