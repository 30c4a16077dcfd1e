package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// Challenge policy defaults, all tunable through AuthenticatorConfig.
const (
	DefaultAttemptTTL        = 2 * time.Minute
	DefaultTerminalRetention = 5 * time.Minute
	DefaultSweepInterval     = 30 * time.Second
)

// Challenge is an issued authentication challenge ready to relay to the
// subject.
type Challenge struct {
	// AttemptID identifies the pending attempt.
	AttemptID string
	// Subject is the DID the challenge was issued toward.
	Subject domain.DID
	// Envelope is the encrypted challenge, readable only by holders of
	// the subject's authentication keys.
	Envelope string
	// ExpiresAt is the response deadline.
	ExpiresAt time.Time
}

// AuthenticatorConfig carries the collaborators and policy of a
// ChallengeAuthenticator.
type AuthenticatorConfig struct {
	Crypto   ports.CryptoGateway
	Attempts ports.AttemptStore

	// AttemptTTL bounds how long a challenge may be answered. Defaults to
	// DefaultAttemptTTL.
	AttemptTTL time.Duration

	// NonceSize is the nonce length in bytes. Defaults to
	// domain.DefaultNonceSize; sizes below domain.MinNonceSize fail at
	// issue time.
	NonceSize int

	// TerminalRetention keeps resolved attempt records around briefly so
	// a replayed response fails as unknown instead of being re-evaluated.
	// Defaults to DefaultTerminalRetention.
	TerminalRetention time.Duration

	// SweepInterval paces the background sweeper. Defaults to
	// DefaultSweepInterval.
	SweepInterval time.Duration

	Logger  *slog.Logger
	Metrics MetricsReporter

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// ChallengeAuthenticator runs the nonce challenge/response state machine.
//
// Each issued challenge creates one AuthenticationAttempt that moves through
// Pending into exactly one of Succeeded, Failed, or Expired. All movement
// goes through the attempt store's compare-and-set Transition, so concurrent
// responses to one attempt serialize into a single winner and every loser
// observes UnknownAttempt. Nonces and attempt ids are fresh per challenge
// and never reused.
//
// A response that fails signature verification does not consume the
// attempt: the challenge was not answered, so the real subject can still
// respond. A response carrying the wrong nonce consumes the attempt as
// Failed.
type ChallengeAuthenticator struct {
	crypto        ports.CryptoGateway
	attempts      ports.AttemptStore
	ttl           time.Duration
	nonceSize     int
	retention     time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	metrics       MetricsReporter
	clock         func() time.Time
}

// NewChallengeAuthenticator creates a ChallengeAuthenticator from the given
// configuration.
func NewChallengeAuthenticator(cfg AuthenticatorConfig) (*ChallengeAuthenticator, error) {
	if cfg.Crypto == nil {
		return nil, &coreerrors.ValidationError{Field: "Crypto", Value: nil, Message: "crypto gateway cannot be nil"}
	}
	if cfg.Attempts == nil {
		return nil, &coreerrors.ValidationError{Field: "Attempts", Value: nil, Message: "attempt store cannot be nil"}
	}
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = DefaultAttemptTTL
	}
	if cfg.NonceSize == 0 {
		cfg.NonceSize = domain.DefaultNonceSize
	}
	if cfg.TerminalRetention <= 0 {
		cfg.TerminalRetention = DefaultTerminalRetention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NoOpMetrics{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &ChallengeAuthenticator{
		crypto:        cfg.Crypto,
		attempts:      cfg.Attempts,
		ttl:           cfg.AttemptTTL,
		nonceSize:     cfg.NonceSize,
		retention:     cfg.TerminalRetention,
		sweepInterval: cfg.SweepInterval,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		clock:         cfg.Clock,
	}, nil
}

// Issue creates a pending attempt toward the subject of the given verified
// document and returns the challenge to relay. The challenge payload is
// encrypted to every authentication key the document resolves, so answering
// requires possession of at least one corresponding private key.
func (a *ChallengeAuthenticator) Issue(ctx context.Context, doc *domain.DIDDocument) (*Challenge, error) {
	if doc == nil {
		return nil, &coreerrors.ValidationError{Field: "doc", Value: nil, Message: "subject document cannot be nil"}
	}

	keys := doc.AuthenticationKeys()
	if len(keys) == 0 {
		return nil, coreerrors.Newf(coreerrors.ErrNoVerificationMethods,
			"subject document %s resolves no authentication keys", doc.Subject())
	}

	nonce, err := domain.NewNonce(a.nonceSize)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	attempt, err := domain.NewAuthenticationAttempt(id, doc, nonce, a.clock(), a.ttl)
	if err != nil {
		return nil, err
	}

	data, err := domain.NewChallengePayload(id, nonce).Encode()
	if err != nil {
		return nil, err
	}
	envelope, err := a.crypto.Encrypt(data, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt challenge for %s: %w", doc.Subject(), err)
	}

	if err := a.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to store attempt %q: %w", id, err)
	}

	a.metrics.RecordAttemptIssued()
	a.logger.Debug("issued challenge", "attempt", id, "subject", attempt.Subject.String(),
		"expires_at", attempt.ExpiresAt)

	return &Challenge{
		AttemptID: id,
		Subject:   attempt.Subject,
		Envelope:  envelope,
		ExpiresAt: attempt.ExpiresAt,
	}, nil
}

// Respond evaluates a signed challenge response and resolves the attempt it
// names. On success the attempt transitions to Succeeded exactly once and
// the resolved attempt is returned; any later response to the same attempt
// fails with UnknownAttempt.
func (a *ChallengeAuthenticator) Respond(ctx context.Context, envelope string) (domain.AuthenticationAttempt, error) {
	var none domain.AuthenticationAttempt

	msg, err := a.crypto.DecodeSigned(envelope)
	if err != nil {
		return none, err
	}
	payload, err := domain.ParseChallengePayload(msg.Payload)
	if err != nil {
		a.metrics.RecordAttemptRejected("unknown")
		return none, coreerrors.New(coreerrors.ErrUnknownAttempt, err)
	}
	id := payload.Identifier

	attempt, err := a.attempts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			a.metrics.RecordAttemptRejected("unknown")
			return none, coreerrors.Newf(coreerrors.ErrUnknownAttempt, "no attempt %q", id)
		}
		return none, fmt.Errorf("failed to load attempt %q: %w", id, err)
	}
	if attempt.Status.IsTerminal() {
		a.metrics.RecordAttemptRejected("unknown")
		return none, coreerrors.Newf(coreerrors.ErrUnknownAttempt, "attempt %q was already resolved", id)
	}

	now := a.clock()
	if attempt.ExpiredAt(now) {
		if _, terr := a.attempts.Transition(ctx, id, domain.AttemptPending, domain.AttemptExpired); terr == nil {
			a.metrics.RecordAttemptResolved("expired")
		} else {
			a.metrics.RecordAttemptRejected("unknown")
		}
		return none, coreerrors.New(coreerrors.ErrUnknownAttempt,
			coreerrors.Newf(coreerrors.ErrAttemptExpired, "attempt %q expired at %s", id, attempt.ExpiresAt.Format(time.RFC3339)))
	}

	keys := attempt.Document.AuthenticationKeys()
	if len(keys) == 0 {
		return none, coreerrors.Newf(coreerrors.ErrNoVerificationMethods,
			"subject document %s resolves no authentication keys", attempt.Subject)
	}

	verified, err := a.crypto.VerifyAny(msg, keys)
	if err != nil {
		// The challenge was not answered by a key holder; the attempt
		// stays open for a correctly signed response.
		a.metrics.RecordAttemptRejected("signature_invalid")
		return none, err
	}

	response, err := domain.ParseChallengePayload(verified)
	if err != nil {
		a.metrics.RecordAttemptRejected("unknown")
		return none, coreerrors.New(coreerrors.ErrUnknownAttempt, err)
	}

	nonce, err := response.DecodeNonce()
	if err != nil || !attempt.Nonce.Equal(nonce) {
		if _, terr := a.attempts.Transition(ctx, id, domain.AttemptPending, domain.AttemptFailed); terr != nil {
			a.metrics.RecordAttemptRejected("unknown")
			return none, coreerrors.Newf(coreerrors.ErrUnknownAttempt, "attempt %q was resolved concurrently", id)
		}
		a.metrics.RecordAttemptResolved("failed")
		a.logger.Info("authentication failed", "attempt", id, "subject", attempt.Subject.String(),
			"reason", "nonce mismatch")
		return none, coreerrors.Newf(coreerrors.ErrNonceMismatch, "challenge data for attempt %q does not match", id)
	}

	resolved, err := a.attempts.Transition(ctx, id, domain.AttemptPending, domain.AttemptSucceeded)
	if err != nil {
		a.metrics.RecordAttemptRejected("unknown")
		return none, coreerrors.Newf(coreerrors.ErrUnknownAttempt, "attempt %q was resolved concurrently", id)
	}

	a.metrics.RecordAttemptResolved("succeeded")
	a.logger.Info("authentication succeeded", "attempt", id, "subject", resolved.Subject.String())
	return resolved, nil
}

// Run sweeps expired and stale attempt records until ctx is canceled.
// Expiry is also enforced lazily on Respond, so running the sweeper is an
// optimization, not a correctness requirement.
func (a *ChallengeAuthenticator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, dropped, err := a.attempts.Sweep(ctx, a.clock(), a.retention)
			if err != nil {
				a.logger.Warn("attempt sweep failed", "error", err)
				continue
			}
			a.metrics.RecordSweep(expired, dropped)
			if expired > 0 || dropped > 0 {
				a.logger.Debug("swept attempts", "expired", expired, "dropped", dropped)
			}
		}
	}
}
