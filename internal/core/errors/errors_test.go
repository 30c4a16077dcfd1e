package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProtocolError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ProtocolError
		want string
	}{
		{
			name: "simple error",
			err: &ProtocolError{
				Kind:    KindMalformedAddress,
				Message: "address is not of the form identifier@domain",
			},
			want: "MALFORMED_ADDRESS: address is not of the form identifier@domain",
		},
		{
			name: "error with wrapped error",
			err: &ProtocolError{
				Kind:    KindFetchFailed,
				Message: "document fetch failed",
				Err:     errors.New("connection refused"),
			},
			want: "FETCH_FAILED: document fetch failed: connection refused",
		},
		{
			name: "empty message",
			err: &ProtocolError{
				Kind:    KindUnknownAttempt,
				Message: "",
			},
			want: "UNKNOWN_ATTEMPT: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("ProtocolError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProtocolError_Is(t *testing.T) {
	wrapped := New(ErrAgentUntrusted, errors.New("signature check failed for key #2"))

	if !errors.Is(wrapped, ErrAgentUntrusted) {
		t.Error("wrapped error should match its sentinel by kind")
	}
	if errors.Is(wrapped, ErrSubjectUntrusted) {
		t.Error("wrapped error should not match a different kind")
	}

	// A fmt.Errorf chain on top must still match.
	chained := fmt.Errorf("resolving alice@example.com: %w", wrapped)
	if !errors.Is(chained, ErrAgentUntrusted) {
		t.Error("fmt.Errorf chain should still match the sentinel")
	}
}

func TestProtocolError_Unwrap(t *testing.T) {
	cause := errors.New("tls handshake timeout")
	err := New(ErrAgentDocumentUnreachable, cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should recognize the wrapped cause")
	}

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As should extract ProtocolError")
	}
	if pe.Kind != KindAgentDocumentUnreachable {
		t.Errorf("extracted kind = %v, want %v", pe.Kind, KindAgentDocumentUnreachable)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrMalformedPort, "port %q has a leading zero", "05309")

	if !errors.Is(err, ErrMalformedPort) {
		t.Error("Newf result should match its base by kind")
	}
	if !strings.Contains(err.Error(), `"05309"`) {
		t.Errorf("Newf message lost its formatting: %v", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "sentinel",
			err:  ErrNonceMismatch,
			want: KindNonceMismatch,
		},
		{
			name: "wrapped sentinel",
			err:  New(ErrDecryptionFailed, errors.New("bad tag")),
			want: KindDecryptionFailed,
		},
		{
			name: "fmt chain",
			err:  fmt.Errorf("responding to challenge: %w", ErrUnknownAttempt),
			want: KindUnknownAttempt,
		},
		{
			name: "plain error",
			err:  errors.New("plain"),
			want: "",
		},
		{
			name: "nil",
			err:  nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "nonce_size",
		Value:   8,
		Message: "must be at least 16 bytes",
	}

	want := "validation failed for field 'nonce_size': must be at least 16 bytes (value: 8)"
	if got := err.Error(); got != want {
		t.Errorf("ValidationError.Error() = %v, want %v", got, want)
	}
}

func TestNewConfigValidationError(t *testing.T) {
	if err := NewConfigValidationError(); err != nil {
		t.Errorf("no errors should produce nil, got %v", err)
	}

	one := NewConfigValidationError(errors.New("listen address missing"))
	if !strings.Contains(one.Error(), "listen address missing") {
		t.Errorf("single error should appear in message: %v", one)
	}

	many := NewConfigValidationError(errors.New("a"), errors.New("b"), errors.New("c"))
	if !strings.Contains(many.Error(), "3 errors") {
		t.Errorf("multi-error message should carry the count: %v", many)
	}
}

func BenchmarkProtocolError_Error(b *testing.B) {
	err := New(ErrSignatureInvalid, errors.New("wrapped"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = err.Error()
	}
}
