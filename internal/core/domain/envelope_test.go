package domain

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestTrustPayload_RoundTrip(t *testing.T) {
	docBytes := []byte(`{"id":"did:fan:example.com:alice"}`)
	p := NewTrustPayload(docBytes, MIMEJSONDID)

	encoded, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	// The wire field names are part of the protocol.
	var wire map[string]any
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if _, ok := wire["document"]; !ok {
		t.Error(`payload lacks the "document" field`)
	}
	if ct, ok := wire["content-type"]; !ok || ct != MIMEJSONDID {
		t.Errorf(`payload "content-type" = %v, want %q`, ct, MIMEJSONDID)
	}

	parsed, err := ParseTrustPayload(encoded)
	if err != nil {
		t.Fatalf("ParseTrustPayload returned error: %v", err)
	}
	got, err := parsed.DocumentBytes()
	if err != nil {
		t.Fatalf("DocumentBytes returned error: %v", err)
	}
	if !bytes.Equal(got, docBytes) {
		t.Errorf("DocumentBytes() = %s, want %s", got, docBytes)
	}
}

func TestTrustPayload_DecodeDocument(t *testing.T) {
	doc := codecTestDocument(t)
	codec, err := CodecFor(MIMEJSONDID)
	if err != nil {
		t.Fatalf("CodecFor returned error: %v", err)
	}
	raw, err := codec.Encode(doc)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	p := NewTrustPayload(raw, MIMEJSONDID)
	back, err := p.DecodeDocument()
	if err != nil {
		t.Fatalf("DecodeDocument returned error: %v", err)
	}
	assertDocumentsEqual(t, back, doc)
}

func TestParseTrustPayload_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "]["},
		{name: "missing document", data: `{"content-type":"application/json+did"}`},
		{name: "missing content type", data: `{"document":"e30"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTrustPayload([]byte(tt.data)); err == nil {
				t.Error("ParseTrustPayload should have failed")
			}
		})
	}
}

func TestChallengePayload_RoundTrip(t *testing.T) {
	nonce, err := NewNonce(DefaultNonceSize)
	if err != nil {
		t.Fatalf("NewNonce returned error: %v", err)
	}

	p := NewChallengePayload("attempt-123", nonce)
	encoded, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if _, ok := wire["data"]; !ok {
		t.Error(`payload lacks the "data" field`)
	}
	if id, ok := wire["identifier"]; !ok || id != "attempt-123" {
		t.Errorf(`payload "identifier" = %v, want attempt-123`, id)
	}

	parsed, err := ParseChallengePayload(encoded)
	if err != nil {
		t.Fatalf("ParseChallengePayload returned error: %v", err)
	}
	got, err := parsed.DecodeNonce()
	if err != nil {
		t.Fatalf("DecodeNonce returned error: %v", err)
	}
	if !got.Equal(nonce) {
		t.Error("decoded nonce does not match the original")
	}
}

func TestParseChallengePayload_RequiresIdentifier(t *testing.T) {
	if _, err := ParseChallengePayload([]byte(`{"data":"AAAA"}`)); err == nil {
		t.Error("a challenge payload without identifier should fail")
	}
}
