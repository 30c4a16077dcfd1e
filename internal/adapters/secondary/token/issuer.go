// Package token mints and checks signed session tokens for authenticated
// subjects, using JWTs so the surrounding application can consume them with
// ordinary middleware.
package token

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// DefaultTTL is how long issued sessions stay valid.
const DefaultTTL = time.Hour

// IssuerConfig holds the settings of an Issuer.
type IssuerConfig struct {
	// Issuer becomes the iss claim, typically the site origin.
	Issuer string
	// Audience becomes the aud claim when set.
	Audience string
	// TTL is the session lifetime. Defaults to DefaultTTL.
	TTL time.Duration
	// Key signs the tokens.
	Key ed25519.PrivateKey
	// KeyID is placed in the token header so consumers can pick the
	// right verification key across rotations.
	KeyID string
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Issuer implements ports.SessionIssuer with EdDSA-signed JWTs.
type Issuer struct {
	issuer   string
	audience string
	ttl      time.Duration
	key      ed25519.PrivateKey
	keyID    string
	clock    func() time.Time
}

// NewIssuer creates an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Issuer == "" {
		return nil, &coreerrors.ValidationError{Field: "issuer", Value: cfg.Issuer, Message: "issuer cannot be empty"}
	}
	if len(cfg.Key) != ed25519.PrivateKeySize {
		return nil, &coreerrors.ValidationError{Field: "key", Value: len(cfg.Key), Message: "an ed25519 private key is required"}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Issuer{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		key:      cfg.Key,
		keyID:    cfg.KeyID,
		clock:    cfg.Clock,
	}, nil
}

var _ ports.SessionIssuer = (*Issuer)(nil)

// Issue mints a session for the authenticated subject.
func (i *Issuer) Issue(ctx context.Context, subject domain.DID) (*ports.Session, error) {
	if subject.IsEmpty() {
		return nil, &coreerrors.ValidationError{Field: "subject", Value: subject, Message: "subject cannot be empty"}
	}

	now := i.clock()
	expiresAt := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	if i.keyID != "" {
		tok.Header["kid"] = i.keyID
	}
	signed, err := tok.SignedString(i.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &ports.Session{
		Token:     signed,
		Subject:   subject,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a token this issuer minted and returns the authenticated
// subject DID. Expired, tampered, or foreign tokens fail.
func (i *Issuer) Verify(raw string) (domain.DID, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
	}
	if i.audience != "" {
		options = append(options, jwt.WithAudience(i.audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.key.Public(), nil
	}, options...)
	if err != nil {
		return domain.DID{}, fmt.Errorf("session token rejected: %w", err)
	}

	subject, err := domain.ParseDID(claims.Subject)
	if err != nil {
		return domain.DID{}, fmt.Errorf("session token subject is not a DID: %w", err)
	}
	return subject, nil
}
