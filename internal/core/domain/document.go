package domain

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/mr-tron/base58"
)

// Verification method types understood by the engine.
const (
	MethodTypeJSONWebKey2020          = "JsonWebKey2020"
	MethodTypeEd25519Verification2020 = "Ed25519VerificationKey2020"
)

// VerificationMethod is one public key entry of a DID document. Key material
// arrives either as a JWK or as a multibase-encoded Ed25519 key.
type VerificationMethod struct {
	ID                 string
	Type               string
	Controller         string
	PublicKeyJWK       *jose.JSONWebKey
	PublicKeyMultibase string
}

// Key materializes the method's public key as a JWK. The key id of the
// result is always the method id.
func (vm VerificationMethod) Key() (jose.JSONWebKey, error) {
	if vm.PublicKeyJWK != nil {
		key := *vm.PublicKeyJWK
		if key.KeyID == "" {
			key.KeyID = vm.ID
		}
		return key, nil
	}

	if vm.PublicKeyMultibase != "" {
		pub, err := decodeMultibaseEd25519(vm.PublicKeyMultibase)
		if err != nil {
			return jose.JSONWebKey{}, fmt.Errorf("method %q: %w", vm.ID, err)
		}
		return jose.JSONWebKey{
			Key:       pub,
			KeyID:     vm.ID,
			Algorithm: string(jose.EdDSA),
			Use:       "sig",
		}, nil
	}

	return jose.JSONWebKey{}, fmt.Errorf("method %q carries no key material", vm.ID)
}

// decodeMultibaseEd25519 decodes a base58btc multibase string into an
// Ed25519 public key. Both the raw 32-byte form and the multicodec-prefixed
// form are accepted.
func decodeMultibaseEd25519(value string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(value, "z") {
		return nil, fmt.Errorf("unsupported multibase prefix in %q", value)
	}
	raw, err := base58.Decode(value[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid base58 key: %w", err)
	}

	if len(raw) == ed25519.PublicKeySize+2 && raw[0] == 0xed && raw[1] == 0x01 {
		raw = raw[2:]
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeMultibaseEd25519 encodes an Ed25519 public key in the raw base58btc
// multibase form.
func EncodeMultibaseEd25519(pub ed25519.PublicKey) string {
	return "z" + base58.Encode(pub)
}

// DIDDocument is the verified identity document of one DID. The
// authentication and capabilityInvocation lists reference verification
// methods by id; references the document does not define are tolerated here
// and surface during trust evaluation.
type DIDDocument struct {
	subject              DID
	context              []string
	methods              []VerificationMethod
	authentication       []string
	capabilityInvocation []string
}

// NewDIDDocument creates a DIDDocument, applying validation.
func NewDIDDocument(subject DID, methods []VerificationMethod, authentication, capabilityInvocation []string) (*DIDDocument, error) {
	if subject.IsEmpty() {
		return nil, fmt.Errorf("document subject cannot be empty")
	}

	seen := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		if m.ID == "" {
			return nil, fmt.Errorf("verification method without id")
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("duplicate verification method id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}

	return &DIDDocument{
		subject:              subject,
		methods:              append([]VerificationMethod(nil), methods...),
		authentication:       append([]string(nil), authentication...),
		capabilityInvocation: append([]string(nil), capabilityInvocation...),
	}, nil
}

// Subject returns the DID the document describes.
func (d *DIDDocument) Subject() DID {
	return d.subject
}

// Context returns the JSON-LD context of the document, if any.
func (d *DIDDocument) Context() []string {
	return append([]string(nil), d.context...)
}

// SetContext attaches a JSON-LD context carried through serialization.
func (d *DIDDocument) SetContext(context []string) {
	d.context = append([]string(nil), context...)
}

// VerificationMethods returns the document's key entries.
func (d *DIDDocument) VerificationMethods() []VerificationMethod {
	return append([]VerificationMethod(nil), d.methods...)
}

// Authentication returns the method ids of the authentication set.
func (d *DIDDocument) Authentication() []string {
	return append([]string(nil), d.authentication...)
}

// CapabilityInvocation returns the method ids of the capabilityInvocation set.
func (d *DIDDocument) CapabilityInvocation() []string {
	return append([]string(nil), d.capabilityInvocation...)
}

// MethodByID looks up a verification method by its id.
func (d *DIDDocument) MethodByID(id string) (VerificationMethod, bool) {
	for _, m := range d.methods {
		if m.ID == id {
			return m, true
		}
	}
	return VerificationMethod{}, false
}

// AuthenticationKeys materializes every resolvable key of the authentication
// set. Dangling references and undecodable keys are skipped.
func (d *DIDDocument) AuthenticationKeys() []jose.JSONWebKey {
	return d.keysFor(d.authentication)
}

// CapabilityInvocationKeys materializes every resolvable key of the
// capabilityInvocation set.
func (d *DIDDocument) CapabilityInvocationKeys() []jose.JSONWebKey {
	return d.keysFor(d.capabilityInvocation)
}

func (d *DIDDocument) keysFor(ids []string) []jose.JSONWebKey {
	keys := make([]jose.JSONWebKey, 0, len(ids))
	for _, id := range ids {
		m, ok := d.MethodByID(id)
		if !ok {
			continue
		}
		key, err := m.Key()
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}
