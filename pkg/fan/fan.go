// Package fan embeds federated authentication into Go applications.
//
// The protocol lets people log in to any participating web site with an
// identifier they already own, of the form identifier@domain. No passwords
// travel and no central registry exists: the domain behind the identifier
// serves signed documents that prove which keys speak for it, and a site
// authenticates a visitor by challenging those keys directly.
//
// Two roles are covered:
//
//   - Website authenticates visitors. It resolves the document behind an
//     address, seals a challenge toward the keys listed there, and accepts
//     the signed response exactly once.
//   - Agent makes a domain's identities resolvable. It serves the domain's
//     trust document and its users' documents, signing every response with
//     the deployment's own keys.
//
// Both roles are self-contained: construct one with its options, mount its
// Handler on any HTTP server or call its methods directly. Multiple
// independent instances coexist in one process.
package fan

import (
	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
	"github.com/sufield/fan/internal/core/services"
)

// Value types of the protocol. These are the engine's own types, re-exported
// so callers never import internal packages.
type (
	// Address is a user-facing identifier of the form
	// identifier@domain[:port].
	Address = domain.Address

	// DID is a decentralized identifier of the fan method,
	// did:fan:domain[%3Fport]:identifier.
	DID = domain.DID

	// Document is a DID document that passed trust verification.
	Document = domain.DIDDocument

	// Challenge is an issued authentication challenge. Its Envelope is
	// readable only by holders of the subject's authentication keys.
	Challenge = services.Challenge

	// Result is the outcome of a completed authentication.
	Result = services.AuthenticationResult

	// Session is a login credential minted after successful
	// authentication.
	Session = ports.Session
)

// Ports a caller may implement or supply. Implementations from this module
// cover the common cases; custom ones slot in through options.
type (
	// DocumentSource supplies an agent deployment's own documents.
	DocumentSource = ports.DocumentSource

	// SovereignSource supplies registered envelopes for self-certified
	// identities.
	SovereignSource = ports.SovereignSource

	// SessionIssuer mints session credentials for authenticated subjects.
	SessionIssuer = ports.SessionIssuer

	// Fetcher retrieves remote documents.
	Fetcher = ports.Fetcher

	// FetchResult is what a Fetcher returns.
	FetchResult = ports.FetchResult

	// MetricsReporter receives engine telemetry.
	MetricsReporter = services.MetricsReporter
)

// RefreshPolicy selects when cached documents are reconfirmed against their
// origin.
type RefreshPolicy = services.RefreshPolicy

const (
	// RefreshAlways revalidates on every resolution. This is the policy a
	// Website uses, so key rotations take effect on the next attempt.
	RefreshAlways = services.RefreshAlways
	// RefreshOnModified serves fresh cache entries directly and refetches
	// only when the agent document says something changed.
	RefreshOnModified = services.RefreshOnModified
)

// SovereignGate gets the final word on a verified sovereign document.
type SovereignGate = services.SovereignGate

// ParseAddress parses identifier@domain[:port]. The domain is IDNA
// normalized; the identifier keeps its exact bytes.
func ParseAddress(raw string) (Address, error) {
	return domain.ParseAddress(raw)
}

// ParseDID parses the textual form of a fan DID.
func ParseDID(raw string) (DID, error) {
	return domain.ParseDID(raw)
}

// Errors callers branch on with errors.Is. Every failure of the engine
// wraps one of these kinds.
var (
	// ErrMalformedAddress reports an address that does not parse.
	ErrMalformedAddress = coreerrors.ErrMalformedAddress
	// ErrUnsupportedDID reports a DID of another method or shape.
	ErrUnsupportedDID = coreerrors.ErrUnsupportedDID
	// ErrFetchFailed reports a document that could not be retrieved.
	ErrFetchFailed = coreerrors.ErrFetchFailed
	// ErrAgentDocumentUnreachable reports a domain whose trust document
	// could not be retrieved.
	ErrAgentDocumentUnreachable = coreerrors.ErrAgentDocumentUnreachable
	// ErrAgentUntrusted reports an agent document that failed
	// verification.
	ErrAgentUntrusted = coreerrors.ErrAgentUntrusted
	// ErrSubjectUntrusted reports a subject document its agent did not
	// vouch for.
	ErrSubjectUntrusted = coreerrors.ErrSubjectUntrusted
	// ErrNoVerificationMethods reports a document whose required signer
	// set is empty or unresolvable.
	ErrNoVerificationMethods = coreerrors.ErrNoVerificationMethods
	// ErrSignatureInvalid reports a signature that did not verify.
	ErrSignatureInvalid = coreerrors.ErrSignatureInvalid
	// ErrUnknownAttempt reports a challenge response naming no open
	// attempt, including replays of resolved ones.
	ErrUnknownAttempt = coreerrors.ErrUnknownAttempt
	// ErrNonceMismatch reports a response carrying the wrong nonce.
	ErrNonceMismatch = coreerrors.ErrNonceMismatch
	// ErrAttemptExpired reports a response that arrived too late.
	ErrAttemptExpired = coreerrors.ErrAttemptExpired
	// ErrSovereignRejected reports a self-certified identity this site
	// does not accept.
	ErrSovereignRejected = coreerrors.ErrSovereignRejected
)
