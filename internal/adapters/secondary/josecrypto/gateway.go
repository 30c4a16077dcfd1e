// Package josecrypto implements the crypto gateway on go-jose, using the
// library's JWS and JWE envelopes rather than hand-rolled primitives.
package josecrypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// AllowedSignatureAlgorithms is the signature algorithm set the gateway
// accepts when parsing envelopes. Envelopes carrying any signature outside
// this set fail to decode, which the protocol treats as an invalid
// signature.
var AllowedSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.EdDSA,
	jose.ES256,
	jose.ES384,
	jose.ES512,
	jose.RS256,
}

// AllowedKeyAlgorithms is the key management algorithm set accepted on
// encrypted envelopes.
var AllowedKeyAlgorithms = []jose.KeyAlgorithm{
	jose.ECDH_ES_A256KW,
	jose.RSA_OAEP_256,
}

// AllowedContentEncryption is the content encryption set accepted on
// encrypted envelopes.
var AllowedContentEncryption = []jose.ContentEncryption{
	jose.A256GCM,
}

// Gateway implements ports.CryptoGateway on go-jose v4. It holds no key
// material of its own; every call receives the keys it may use.
type Gateway struct{}

// New creates a Gateway.
func New() *Gateway {
	return &Gateway{}
}

var _ ports.CryptoGateway = (*Gateway)(nil)

// DecodeSigned parses a serialized signature envelope, compact or JSON,
// without verifying anything.
func (g *Gateway) DecodeSigned(raw string) (*ports.SignedMessage, error) {
	jws, err := jose.ParseSigned(raw, AllowedSignatureAlgorithms)
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrSignatureInvalid,
			fmt.Errorf("failed to parse signature envelope: %w", err))
	}
	return &ports.SignedMessage{
		Payload:  jws.UnsafePayloadWithoutVerification(),
		Envelope: jws,
	}, nil
}

// VerifyWithKey checks that msg carries a valid signature from key.
func (g *Gateway) VerifyWithKey(msg *ports.SignedMessage, key jose.JSONWebKey) error {
	if msg == nil || msg.Envelope == nil {
		return coreerrors.Newf(coreerrors.ErrSignatureInvalid, "no parsed envelope to verify")
	}
	if _, _, _, err := msg.Envelope.VerifyMulti(key); err != nil {
		return coreerrors.New(coreerrors.ErrSignatureInvalid,
			fmt.Errorf("signature from key %q does not verify: %w", key.KeyID, err))
	}
	return nil
}

// VerifyAny checks msg against each candidate key and returns the verified
// payload on the first success.
func (g *Gateway) VerifyAny(msg *ports.SignedMessage, keys []jose.JSONWebKey) ([]byte, error) {
	if msg == nil || msg.Envelope == nil {
		return nil, coreerrors.Newf(coreerrors.ErrSignatureInvalid, "no parsed envelope to verify")
	}
	for _, key := range keys {
		if _, _, payload, err := msg.Envelope.VerifyMulti(key); err == nil {
			return payload, nil
		}
	}
	return nil, coreerrors.Newf(coreerrors.ErrSignatureInvalid,
		"none of %d candidate keys verified the envelope", len(keys))
}

// Sign produces a signature envelope over payload carrying one signature per
// key. A single key yields the compact serialization; multiple keys yield
// the general JSON serialization.
func (g *Gateway) Sign(payload []byte, keys []jose.JSONWebKey) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("signing requires at least one key")
	}

	sigKeys := make([]jose.SigningKey, 0, len(keys))
	for _, key := range keys {
		alg, err := signatureAlgorithm(key)
		if err != nil {
			return "", err
		}
		sigKeys = append(sigKeys, jose.SigningKey{Algorithm: alg, Key: key})
	}

	if len(sigKeys) == 1 {
		signer, err := jose.NewSigner(sigKeys[0], nil)
		if err != nil {
			return "", fmt.Errorf("failed to construct signer: %w", err)
		}
		jws, err := signer.Sign(payload)
		if err != nil {
			return "", fmt.Errorf("failed to sign payload: %w", err)
		}
		return jws.CompactSerialize()
	}

	signer, err := jose.NewMultiSigner(sigKeys, nil)
	if err != nil {
		return "", fmt.Errorf("failed to construct multi-signer: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	return jws.FullSerialize(), nil
}

// Encrypt produces an encryption envelope readable by every holder of the
// given public keys. A single recipient yields the compact serialization;
// multiple recipients yield the general JSON serialization.
func (g *Gateway) Encrypt(payload []byte, keys []jose.JSONWebKey) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("encryption requires at least one recipient key")
	}

	recipients := make([]jose.Recipient, 0, len(keys))
	for _, key := range keys {
		alg, err := keyAlgorithm(key)
		if err != nil {
			return "", err
		}
		recipients = append(recipients, jose.Recipient{Algorithm: alg, Key: key})
	}

	if len(recipients) == 1 {
		enc, err := jose.NewEncrypter(jose.A256GCM, recipients[0], nil)
		if err != nil {
			return "", fmt.Errorf("failed to construct encrypter: %w", err)
		}
		jwe, err := enc.Encrypt(payload)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt payload: %w", err)
		}
		return jwe.CompactSerialize()
	}

	enc, err := jose.NewMultiEncrypter(jose.A256GCM, recipients, nil)
	if err != nil {
		return "", fmt.Errorf("failed to construct multi-encrypter: %w", err)
	}
	jwe, err := enc.Encrypt(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return jwe.FullSerialize(), nil
}

// Decrypt opens an encryption envelope with the given private key.
func (g *Gateway) Decrypt(envelope string, key jose.JSONWebKey) ([]byte, error) {
	jwe, err := jose.ParseEncrypted(envelope, AllowedKeyAlgorithms, AllowedContentEncryption)
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrDecryptionFailed,
			fmt.Errorf("failed to parse encryption envelope: %w", err))
	}
	_, _, plain, err := jwe.DecryptMulti(key)
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrDecryptionFailed,
			fmt.Errorf("failed to open encryption envelope: %w", err))
	}
	return plain, nil
}

// signatureAlgorithm picks the signature algorithm for a key, trusting an
// explicit alg and inferring from the key type otherwise.
func signatureAlgorithm(key jose.JSONWebKey) (jose.SignatureAlgorithm, error) {
	if key.Algorithm != "" {
		return jose.SignatureAlgorithm(key.Algorithm), nil
	}
	switch k := key.Key.(type) {
	case ed25519.PrivateKey, ed25519.PublicKey:
		return jose.EdDSA, nil
	case *ecdsa.PrivateKey:
		return ecdsaAlgorithm(k.Curve)
	case *ecdsa.PublicKey:
		return ecdsaAlgorithm(k.Curve)
	case *rsa.PrivateKey, *rsa.PublicKey:
		return jose.RS256, nil
	default:
		return "", fmt.Errorf("cannot infer a signature algorithm for key %q", key.KeyID)
	}
}

func ecdsaAlgorithm(curve elliptic.Curve) (jose.SignatureAlgorithm, error) {
	switch curve {
	case elliptic.P256():
		return jose.ES256, nil
	case elliptic.P384():
		return jose.ES384, nil
	case elliptic.P521():
		return jose.ES512, nil
	default:
		return "", fmt.Errorf("unsupported ECDSA curve %q", curve.Params().Name)
	}
}

// keyAlgorithm picks the key management algorithm for an encryption
// recipient. Signing-only key types cannot receive encrypted payloads.
func keyAlgorithm(key jose.JSONWebKey) (jose.KeyAlgorithm, error) {
	switch key.Key.(type) {
	case *ecdsa.PublicKey, *ecdsa.PrivateKey:
		return jose.ECDH_ES_A256KW, nil
	case *rsa.PublicKey, *rsa.PrivateKey:
		return jose.RSA_OAEP_256, nil
	default:
		return "", fmt.Errorf("key %q cannot receive encrypted payloads; an EC or RSA key is required", key.KeyID)
	}
}
