package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TrustPayload is the JWS payload wrapping a serialized DID document. The
// document bytes travel base64-encoded next to their content type so the
// signature covers the exact encoding that was signed.
type TrustPayload struct {
	Document    string `json:"document"`
	ContentType string `json:"content-type"`
}

// NewTrustPayload wraps raw document bytes for signing.
func NewTrustPayload(document []byte, contentType string) TrustPayload {
	return TrustPayload{
		Document:    base64.RawURLEncoding.EncodeToString(document),
		ContentType: contentType,
	}
}

// ParseTrustPayload decodes the JSON form of a trust payload.
func ParseTrustPayload(data []byte) (TrustPayload, error) {
	var p TrustPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return TrustPayload{}, fmt.Errorf("failed to decode trust payload: %w", err)
	}
	if p.Document == "" {
		return TrustPayload{}, fmt.Errorf("trust payload carries no document")
	}
	if p.ContentType == "" {
		return TrustPayload{}, fmt.Errorf("trust payload carries no content type")
	}
	return p, nil
}

// Encode serializes the payload for signing.
func (p TrustPayload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trust payload: %w", err)
	}
	return data, nil
}

// DocumentBytes decodes the embedded document.
func (p TrustPayload) DocumentBytes() ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(p.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded document: %w", err)
	}
	return raw, nil
}

// DecodeDocument decodes and deserializes the embedded document using the
// codec named by the payload's content type.
func (p TrustPayload) DecodeDocument() (*DIDDocument, error) {
	codec, err := CodecFor(p.ContentType)
	if err != nil {
		return nil, err
	}
	raw, err := p.DocumentBytes()
	if err != nil {
		return nil, err
	}
	return codec.Decode(raw)
}

// ChallengePayload is the body of an authentication challenge. It is
// encrypted toward the subject on issue and signed by the subject on
// response; both directions carry the same two fields.
type ChallengePayload struct {
	Data       string `json:"data"`
	Identifier string `json:"identifier"`
}

// NewChallengePayload binds a nonce to an attempt identifier.
func NewChallengePayload(attemptID string, nonce Nonce) ChallengePayload {
	return ChallengePayload{
		Data:       base64.RawURLEncoding.EncodeToString(nonce),
		Identifier: attemptID,
	}
}

// ParseChallengePayload decodes the JSON form of a challenge payload.
func ParseChallengePayload(data []byte) (ChallengePayload, error) {
	var p ChallengePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ChallengePayload{}, fmt.Errorf("failed to decode challenge payload: %w", err)
	}
	if p.Identifier == "" {
		return ChallengePayload{}, fmt.Errorf("challenge payload carries no attempt identifier")
	}
	return p, nil
}

// Encode serializes the payload for encryption or signing.
func (p ChallengePayload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode challenge payload: %w", err)
	}
	return data, nil
}

// DecodeNonce decodes the embedded nonce bytes.
func (p ChallengePayload) DecodeNonce() (Nonce, error) {
	raw, err := base64.RawURLEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode challenge data: %w", err)
	}
	return Nonce(raw), nil
}
