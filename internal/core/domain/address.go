// Package domain provides the value objects and entities of the fan protocol.
package domain

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	coreerrors "github.com/sufield/fan/internal/core/errors"
)

// SovereignDomain is the reserved domain token for self-certified identities
// that are not bound to any agent.
const SovereignDomain = "_sovereign_"

// Address is a value object for validated fan addresses of the form
// identifier@domain[:port]. The identifier keeps its original Unicode form;
// the domain is IDNA-normalized at construction.
type Address struct {
	identifier string
	domain     string
	port       uint16
	hasPort    bool
}

// ParseAddress creates an Address, applying validation.
// The identifier is everything before the last '@', so identifiers may
// themselves contain '@'. The domain is normalized through IDNA lookup
// mapping; the reserved sovereign token bypasses that mapping.
func ParseAddress(raw string) (Address, error) {
	at := strings.LastIndex(raw, "@")
	if at <= 0 {
		return Address{}, coreerrors.New(coreerrors.ErrMalformedAddress,
			fmt.Errorf("address %q has no identifier@domain separator", raw))
	}

	identifier := raw[:at]
	rest := raw[at+1:]
	if rest == "" {
		return Address{}, coreerrors.New(coreerrors.ErrMalformedAddress,
			fmt.Errorf("address %q has an empty domain", raw))
	}

	domainPart := rest
	portPart := ""
	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		domainPart = rest[:colon]
		portPart = rest[colon+1:]
	}

	normalized, err := normalizeDomain(domainPart)
	if err != nil {
		return Address{}, err
	}

	addr := Address{identifier: identifier, domain: normalized}
	if portPart != "" || strings.HasSuffix(rest, ":") {
		port, err := parsePort(portPart)
		if err != nil {
			return Address{}, err
		}
		addr.port = port
		addr.hasPort = true
	}

	return addr, nil
}

// normalizeDomain maps a raw domain through IDNA lookup rules, preserving the
// sovereign token verbatim.
func normalizeDomain(raw string) (string, error) {
	if raw == SovereignDomain {
		return raw, nil
	}
	if raw == "" {
		return "", coreerrors.New(coreerrors.ErrMalformedAddress,
			fmt.Errorf("domain cannot be empty"))
	}

	normalized, err := idna.Lookup.ToASCII(raw)
	if err != nil {
		return "", coreerrors.New(coreerrors.ErrMalformedAddress,
			fmt.Errorf("domain %q is not a valid IDNA domain: %w", raw, err))
	}
	return normalized, nil
}

// parsePort validates the textual port of an address. Ports must be
// non-zero-leading decimal integers in [0, 65535].
func parsePort(raw string) (uint16, error) {
	if raw == "" {
		return 0, coreerrors.New(coreerrors.ErrMalformedPort,
			fmt.Errorf("port cannot be empty"))
	}
	if len(raw) > 1 && raw[0] == '0' {
		return 0, coreerrors.New(coreerrors.ErrMalformedPort,
			fmt.Errorf("port %q has a leading zero", raw))
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, coreerrors.New(coreerrors.ErrMalformedPort,
				fmt.Errorf("port %q contains a non-decimal character", raw))
		}
	}

	port, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, coreerrors.New(coreerrors.ErrMalformedPort,
			fmt.Errorf("port %q is out of range: %w", raw, err))
	}
	return uint16(port), nil
}

// NewAddressUnsafe creates an Address without validation.
// This should only be used for testing or when validation has already been
// performed. Use ParseAddress in production code.
func NewAddressUnsafe(identifier, domain string) Address {
	return Address{identifier: identifier, domain: domain}
}

// Identifier returns the identifier part of the address.
func (a Address) Identifier() string {
	return a.identifier
}

// Domain returns the normalized domain part of the address.
func (a Address) Domain() string {
	return a.domain
}

// Port returns the explicit port of the address and whether one was present.
func (a Address) Port() (uint16, bool) {
	return a.port, a.hasPort
}

// IsSovereign reports whether the address names a self-certified identity.
func (a Address) IsSovereign() bool {
	return a.domain == SovereignDomain
}

// IsEmpty reports whether the address is the zero value.
func (a Address) IsEmpty() bool {
	return a.identifier == "" && a.domain == ""
}

// Equals compares two Addresses for equality.
func (a Address) Equals(other Address) bool {
	return a == other
}

// String reassembles the address in identifier@domain[:port] form.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(a.identifier)
	b.WriteByte('@')
	b.WriteString(a.domain)
	if a.hasPort {
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(a.port), 10))
	}
	return b.String()
}

// DID translates the address into its fan DID. The translation is total for
// any Address produced by ParseAddress.
func (a Address) DID() DID {
	return DID{
		domain:     a.domain,
		identifier: a.identifier,
		port:       a.port,
		hasPort:    a.hasPort,
	}
}

// SovereignDID translates the address into a self-certified DID, replacing
// whatever domain it carries with the sovereign token. Ports are dropped:
// a sovereign identity has no network location.
func (a Address) SovereignDID() DID {
	return DID{
		domain:     SovereignDomain,
		identifier: a.identifier,
	}
}
