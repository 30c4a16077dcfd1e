package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-jose/go-jose/v4"
)

// ErrUnsupportedContentType marks content types no codec can handle, so
// transport layers can answer content negotiation failures distinctly.
var ErrUnsupportedContentType = errors.New("unsupported document content type")

// Media types of the fan document exchange.
const (
	// MIMEJose is the signed envelope wrapping a document payload.
	MIMEJose = "application/jose"
	// MIMEJSONDID is a DID document encoded as plain JSON.
	MIMEJSONDID = "application/json+did"
	// MIMEJSONLDDID is a DID document encoded as JSON-LD. It is decoded
	// exactly like plain JSON.
	MIMEJSONLDDID = "application/jsonld+did"
	// MIMECBORDID is a DID document encoded as CBOR.
	MIMECBORDID = "application/cbor+did"
)

// DocumentCodec translates between DID documents and one wire encoding.
type DocumentCodec interface {
	ContentType() string
	Decode(data []byte) (*DIDDocument, error)
	Encode(doc *DIDDocument) ([]byte, error)
}

// CodecFor returns the codec for a document content type. The jose envelope
// type is not a document encoding and is rejected here.
func CodecFor(contentType string) (DocumentCodec, error) {
	switch NormalizeContentType(contentType) {
	case MIMEJSONDID:
		return jsonCodec{contentType: MIMEJSONDID}, nil
	case MIMEJSONLDDID:
		return jsonCodec{contentType: MIMEJSONLDDID}, nil
	case MIMECBORDID:
		return cborCodec{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedContentType, contentType)
	}
}

// NormalizeContentType lowercases a media type and strips its parameters.
func NormalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// documentWire is the serialized shape shared by the JSON and CBOR codecs.
// The @context of JSON-LD documents may be a single string or a list.
type documentWire struct {
	Context              any                      `json:"@context,omitempty"`
	ID                   string                   `json:"id"`
	VerificationMethod   []verificationMethodWire `json:"verificationMethod,omitempty"`
	Authentication       []string                 `json:"authentication,omitempty"`
	CapabilityInvocation []string                 `json:"capabilityInvocation,omitempty"`
}

type verificationMethodWire struct {
	ID                 string         `json:"id"`
	Type               string         `json:"type,omitempty"`
	Controller         string         `json:"controller,omitempty"`
	PublicKeyJWK       map[string]any `json:"publicKeyJwk,omitempty"`
	PublicKeyMultibase string         `json:"publicKeyMultibase,omitempty"`
}

func (w documentWire) toDocument() (*DIDDocument, error) {
	subject, err := ParseDID(w.ID)
	if err != nil {
		return nil, fmt.Errorf("document id: %w", err)
	}

	methods := make([]VerificationMethod, 0, len(w.VerificationMethod))
	for _, mw := range w.VerificationMethod {
		m := VerificationMethod{
			ID:                 mw.ID,
			Type:               mw.Type,
			Controller:         mw.Controller,
			PublicKeyMultibase: mw.PublicKeyMultibase,
		}
		if len(mw.PublicKeyJWK) > 0 {
			jwk, err := jwkFromMap(mw.PublicKeyJWK)
			if err != nil {
				return nil, fmt.Errorf("method %q: %w", mw.ID, err)
			}
			m.PublicKeyJWK = jwk
		}
		methods = append(methods, m)
	}

	doc, err := NewDIDDocument(subject, methods, w.Authentication, w.CapabilityInvocation)
	if err != nil {
		return nil, err
	}
	doc.SetContext(coerceContext(w.Context))
	return doc, nil
}

func wireFromDocument(doc *DIDDocument) (documentWire, error) {
	w := documentWire{
		ID:                   doc.Subject().String(),
		Authentication:       doc.Authentication(),
		CapabilityInvocation: doc.CapabilityInvocation(),
	}
	if ctx := doc.Context(); len(ctx) > 0 {
		w.Context = ctx
	}

	for _, m := range doc.VerificationMethods() {
		mw := verificationMethodWire{
			ID:                 m.ID,
			Type:               m.Type,
			Controller:         m.Controller,
			PublicKeyMultibase: m.PublicKeyMultibase,
		}
		if m.PublicKeyJWK != nil {
			jm, err := jwkToMap(*m.PublicKeyJWK)
			if err != nil {
				return documentWire{}, fmt.Errorf("method %q: %w", m.ID, err)
			}
			mw.PublicKeyJWK = jm
		}
		w.VerificationMethod = append(w.VerificationMethod, mw)
	}
	return w, nil
}

// jwkFromMap bridges a decoded generic object into a jose JWK through its
// canonical JSON form.
func jwkFromMap(m map[string]any) (*jose.JSONWebKey, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("re-encoding JWK: %w", err)
	}
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("decoding JWK: %w", err)
	}
	return &jwk, nil
}

func jwkToMap(jwk jose.JSONWebKey) (map[string]any, error) {
	raw, err := jwk.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding JWK: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("re-decoding JWK: %w", err)
	}
	return m, nil
}

func coerceContext(v any) []string {
	switch ctx := v.(type) {
	case nil:
		return nil
	case string:
		return []string{ctx}
	case []string:
		return ctx
	case []any:
		out := make([]string, 0, len(ctx))
		for _, item := range ctx {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// jsonCodec decodes and encodes JSON and JSON-LD documents. Both types share
// one decoder; only the advertised content type differs.
type jsonCodec struct {
	contentType string
}

func (c jsonCodec) ContentType() string {
	return c.contentType
}

func (c jsonCodec) Decode(data []byte) (*DIDDocument, error) {
	var w documentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode JSON document: %w", err)
	}
	return w.toDocument()
}

func (c jsonCodec) Encode(doc *DIDDocument) ([]byte, error) {
	w, err := wireFromDocument(doc)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON document: %w", err)
	}
	return data, nil
}

// cborCodec encodes documents in canonical CBOR.
type cborCodec struct{}

var cborEncMode = mustCBOREncMode()

func mustCBOREncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func (cborCodec) ContentType() string {
	return MIMECBORDID
}

func (cborCodec) Decode(data []byte) (*DIDDocument, error) {
	var w documentWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR document: %w", err)
	}
	return w.toDocument()
}

func (cborCodec) Encode(doc *DIDDocument) ([]byte, error) {
	w, err := wireFromDocument(doc)
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR document: %w", err)
	}
	return data, nil
}
