package fan

import (
	"crypto/ed25519"
	"time"

	"github.com/sufield/fan/internal/adapters/secondary/token"
)

// SessionIssuerConfig holds the settings of NewSessionIssuer.
type SessionIssuerConfig struct {
	// Issuer becomes the iss claim, typically the site origin.
	Issuer string
	// Audience becomes the aud claim when set.
	Audience string
	// TTL is the session lifetime. Defaults to one hour.
	TTL time.Duration
	// Key signs the tokens.
	Key ed25519.PrivateKey
	// KeyID is placed in the token header so consumers can pick the right
	// verification key across rotations.
	KeyID string
}

// Issuer mints EdDSA-signed session JWTs and verifies the tokens it minted.
type Issuer = token.Issuer

// NewSessionIssuer creates an Issuer for use with WithSessions. The
// returned value also verifies its own tokens, so the application can check
// the credentials it handed out.
//
//	issuer, err := fan.NewSessionIssuer(fan.SessionIssuerConfig{
//		Issuer: "https://login.example.org",
//		Key:    sessionKey,
//	})
//	site, err := fan.NewWebsite(fan.WithSessions(issuer))
func NewSessionIssuer(cfg SessionIssuerConfig) (*Issuer, error) {
	return token.NewIssuer(token.IssuerConfig{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		TTL:      cfg.TTL,
		Key:      cfg.Key,
		KeyID:    cfg.KeyID,
	})
}
