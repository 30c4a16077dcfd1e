// Package errors defines the failure taxonomy shared by every layer of the
// fan engine. Callers classify failures with errors.Is against the sentinel
// values below; two ProtocolErrors match when their kinds match.
package errors

import "fmt"

// Kind names one class of protocol failure.
type Kind string

// Protocol failure kinds.
const (
	KindMalformedAddress         Kind = "MALFORMED_ADDRESS"
	KindMalformedPort            Kind = "MALFORMED_PORT"
	KindUnsupportedDID           Kind = "UNSUPPORTED_DID"
	KindFetchFailed              Kind = "FETCH_FAILED"
	KindAgentDocumentUnreachable Kind = "AGENT_DOCUMENT_UNREACHABLE"
	KindAgentUntrusted           Kind = "AGENT_UNTRUSTED"
	KindSubjectUntrusted         Kind = "SUBJECT_UNTRUSTED"
	KindNoVerificationMethods    Kind = "NO_VERIFICATION_METHODS"
	KindSignatureInvalid         Kind = "SIGNATURE_INVALID"
	KindDecryptionFailed         Kind = "DECRYPTION_FAILED"
	KindUnknownAttempt           Kind = "UNKNOWN_ATTEMPT"
	KindNonceMismatch            Kind = "NONCE_MISMATCH"
	KindAttemptExpired           Kind = "ATTEMPT_EXPIRED"
	KindSovereignRejected        Kind = "SOVEREIGN_REJECTED"
)

// ProtocolError represents errors in the protocol logic.
type ProtocolError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is reports kind equality so wrapped instances still match their sentinel.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Common protocol errors.
var (
	ErrMalformedAddress = &ProtocolError{
		Kind:    KindMalformedAddress,
		Message: "address is not of the form identifier@domain",
	}

	ErrMalformedPort = &ProtocolError{
		Kind:    KindMalformedPort,
		Message: "address port is invalid",
	}

	ErrUnsupportedDID = &ProtocolError{
		Kind:    KindUnsupportedDID,
		Message: "DID is not a resolvable fan DID",
	}

	ErrFetchFailed = &ProtocolError{
		Kind:    KindFetchFailed,
		Message: "document fetch failed",
	}

	ErrAgentDocumentUnreachable = &ProtocolError{
		Kind:    KindAgentDocumentUnreachable,
		Message: "agent trust document could not be retrieved",
	}

	ErrAgentUntrusted = &ProtocolError{
		Kind:    KindAgentUntrusted,
		Message: "agent trust document failed verification",
	}

	ErrSubjectUntrusted = &ProtocolError{
		Kind:    KindSubjectUntrusted,
		Message: "subject document failed verification",
	}

	ErrNoVerificationMethods = &ProtocolError{
		Kind:    KindNoVerificationMethods,
		Message: "no usable verification methods",
	}

	ErrSignatureInvalid = &ProtocolError{
		Kind:    KindSignatureInvalid,
		Message: "signature verification failed",
	}

	ErrDecryptionFailed = &ProtocolError{
		Kind:    KindDecryptionFailed,
		Message: "payload decryption failed",
	}

	ErrUnknownAttempt = &ProtocolError{
		Kind:    KindUnknownAttempt,
		Message: "authentication attempt is unknown",
	}

	ErrNonceMismatch = &ProtocolError{
		Kind:    KindNonceMismatch,
		Message: "challenge nonce does not match",
	}

	ErrAttemptExpired = &ProtocolError{
		Kind:    KindAttemptExpired,
		Message: "authentication attempt has expired",
	}

	ErrSovereignRejected = &ProtocolError{
		Kind:    KindSovereignRejected,
		Message: "sovereign identity rejected by policy",
	}
)

// New creates a new protocol error of the same kind as base wrapping err.
func New(base *ProtocolError, err error) error {
	return &ProtocolError{
		Kind:    base.Kind,
		Message: base.Message,
		Err:     err,
	}
}

// Newf creates a new protocol error of the same kind as base with a
// call-site message.
func Newf(base *ProtocolError, format string, args ...any) error {
	return &ProtocolError{
		Kind:    base.Kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf extracts the protocol failure kind from err, unwrapping as needed.
// It returns the empty Kind when err carries no ProtocolError.
func KindOf(err error) Kind {
	for err != nil {
		if pe, ok := err.(*ProtocolError); ok {
			return pe.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
