package domain

import (
	"fmt"
	"strconv"
	"strings"

	coreerrors "github.com/sufield/fan/internal/core/errors"
)

// DIDMethod is the DID method name served by this engine.
const DIDMethod = "fan"

// didPrefix is the scheme+method prefix of every fan DID.
const didPrefix = "did:" + DIDMethod + ":"

// portSeparator joins domain and port inside a DID. It is the percent-encoded
// '?' so the DID stays a single method-specific-id segment.
const portSeparator = "%3F"

// DID is a value object for decentralized identifiers of the fan method:
// did:fan:domain[%3Fport]:identifier. The identifier is held in decoded form
// and percent-encoded on serialization.
type DID struct {
	domain     string
	identifier string
	port       uint16
	hasPort    bool
}

// NewDID creates a DID from its parts, applying the same domain
// normalization as ParseAddress.
func NewDID(domain, identifier string) (DID, error) {
	normalized, err := normalizeDomain(domain)
	if err != nil {
		return DID{}, err
	}
	if identifier == "" {
		return DID{}, coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("identifier cannot be empty"))
	}
	return DID{domain: normalized, identifier: identifier}, nil
}

// NewDIDWithPort creates a DID carrying an explicit port.
func NewDIDWithPort(domain, identifier string, port uint16) (DID, error) {
	did, err := NewDID(domain, identifier)
	if err != nil {
		return DID{}, err
	}
	did.port = port
	did.hasPort = true
	return did, nil
}

// NewAgentDID creates the domain-only DID an agent trust document describes
// itself with.
func NewAgentDID(domain string) (DID, error) {
	normalized, err := normalizeDomain(domain)
	if err != nil {
		return DID{}, err
	}
	return DID{domain: normalized}, nil
}

// ParseDID parses the textual form of a fan DID. A DID without an
// identifier segment is the domain-only form agent documents use. DIDs of
// any other method fail with UnsupportedDid.
func ParseDID(raw string) (DID, error) {
	if !strings.HasPrefix(raw, didPrefix) {
		return DID{}, coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("%q is not a did:%s identifier", raw, DIDMethod))
	}

	rest := raw[len(didPrefix):]
	domainPart, idPart, found := strings.Cut(rest, ":")
	if domainPart == "" || (found && idPart == "") {
		return DID{}, coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("%q does not have the domain:identifier shape", raw))
	}
	if strings.Contains(idPart, ":") {
		return DID{}, coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("%q has more than one domain separator", raw))
	}

	did := DID{}
	if sep := findPortSeparator(domainPart); sep >= 0 {
		port, err := parsePort(domainPart[sep+len(portSeparator):])
		if err != nil {
			return DID{}, err
		}
		did.port = port
		did.hasPort = true
		domainPart = domainPart[:sep]
	}

	normalized, err := normalizeDomain(domainPart)
	if err != nil {
		return DID{}, coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("DID domain is invalid: %w", err))
	}
	did.domain = normalized

	identifier, err := percentDecode(idPart)
	if err != nil {
		return DID{}, coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("DID identifier is invalid: %w", err))
	}
	did.identifier = identifier

	return did, nil
}

// findPortSeparator locates the %3F port separator, accepting either hex
// case on input.
func findPortSeparator(s string) int {
	if i := strings.Index(s, portSeparator); i >= 0 {
		return i
	}
	return strings.Index(s, strings.ToLower(portSeparator))
}

// Method returns the DID method name.
func (d DID) Method() string {
	return DIDMethod
}

// Domain returns the domain the DID is bound to.
func (d DID) Domain() string {
	return d.domain
}

// Identifier returns the decoded identifier of the DID.
func (d DID) Identifier() string {
	return d.identifier
}

// Port returns the explicit port of the DID and whether one is present.
func (d DID) Port() (uint16, bool) {
	return d.port, d.hasPort
}

// IsSovereign reports whether the DID is self-certified rather than bound to
// an agent domain.
func (d DID) IsSovereign() bool {
	return d.domain == SovereignDomain
}

// IsAgent reports whether the DID is the domain-only form naming an agent
// rather than a subject.
func (d DID) IsAgent() bool {
	return d.identifier == "" && d.domain != ""
}

// AgentDID returns the domain-only DID of the agent serving this DID's
// domain, keeping any explicit port.
func (d DID) AgentDID() DID {
	return DID{domain: d.domain, port: d.port, hasPort: d.hasPort}
}

// Host returns the domain with the explicit port attached when present.
func (d DID) Host() string {
	if d.hasPort {
		return d.domain + ":" + strconv.FormatUint(uint64(d.port), 10)
	}
	return d.domain
}

// IsEmpty reports whether the DID is the zero value.
func (d DID) IsEmpty() bool {
	return d.domain == "" && d.identifier == ""
}

// Equals compares two DIDs for equality.
func (d DID) Equals(other DID) bool {
	return d == other
}

// String serializes the DID. The identifier is percent-encoded with
// lowercase hex; ports ride behind the encoded '?' separator. Domain-only
// DIDs stop after the domain component.
func (d DID) String() string {
	var b strings.Builder
	b.WriteString(didPrefix)
	b.WriteString(d.domain)
	if d.hasPort {
		b.WriteString(portSeparator)
		b.WriteString(strconv.FormatUint(uint64(d.port), 10))
	}
	if d.identifier != "" {
		b.WriteByte(':')
		b.WriteString(percentEncode(d.identifier))
	}
	return b.String()
}

// Address translates the DID back to identifier@domain[:port] form.
func (d DID) Address() Address {
	return Address{
		identifier: d.identifier,
		domain:     d.domain,
		port:       d.port,
		hasPort:    d.hasPort,
	}
}

// LookupURL derives the HTTPS location of the subject document for this DID.
// Sovereign and domain-only DIDs have no lookup location and fail with
// UnsupportedDid.
func (d DID) LookupURL() (string, error) {
	if d.IsSovereign() {
		return "", coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("sovereign DID %s has no lookup URL", d))
	}
	if d.identifier == "" {
		return "", coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("agent DID %s has no subject lookup URL", d))
	}
	return fmt.Sprintf("https://%s/did-fan/user/%s.did", d.Host(), percentEncode(d.identifier)), nil
}

// AgentTrustURL derives the HTTPS location of the agent trust document for
// the DID's domain.
func (d DID) AgentTrustURL() (string, error) {
	if d.IsSovereign() {
		return "", coreerrors.New(coreerrors.ErrUnsupportedDID,
			fmt.Errorf("sovereign DID %s has no agent", d))
	}
	return fmt.Sprintf("https://%s/fan.did", d.Host()), nil
}

// didUnreserved reports whether b may appear literally in a DID
// method-specific identifier.
func didUnreserved(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '.' || b == '-' || b == '_':
		return true
	}
	return false
}

const lowerHex = "0123456789abcdef"

// percentEncode encodes every byte outside the DID unreserved set as %xx
// with lowercase hex digits.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if didUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(lowerHex[c>>4])
		b.WriteByte(lowerHex[c&0x0f])
	}
	return b.String()
}

// percentDecode reverses percentEncode, accepting either hex case.
func percentDecode(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated percent escape at offset %d", i)
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid percent escape %q at offset %d", s[i:i+3], i)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
