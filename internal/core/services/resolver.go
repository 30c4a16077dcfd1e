package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// RefreshPolicy selects when cached documents are reconfirmed against their
// origin.
type RefreshPolicy int

const (
	// RefreshAlways revalidates cached documents on every resolution.
	// This is the mandatory policy for the authenticating web-site role:
	// every authentication attempt gets a refresh opportunity.
	RefreshAlways RefreshPolicy = iota
	// RefreshOnModified serves fresh cache entries directly and fetches
	// only when an entry is stale or outdated by the agent document.
	RefreshOnModified
)

var refreshPolicyStrings = map[RefreshPolicy]string{
	RefreshAlways:     "always",
	RefreshOnModified: "modified",
}

// String returns the string representation.
func (p RefreshPolicy) String() string {
	if s, ok := refreshPolicyStrings[p]; ok {
		return s
	}
	return "unknown"
}

// ParseRefreshPolicy parses the configuration form of a refresh policy.
func ParseRefreshPolicy(raw string) (RefreshPolicy, error) {
	for p, s := range refreshPolicyStrings {
		if s == raw {
			return p, nil
		}
	}
	return RefreshAlways, fmt.Errorf("unknown refresh policy %q", raw)
}

// SovereignGate gets the final word on a verified sovereign document. The
// document proved possession of its own keys and nothing more, so sites
// apply their own acceptance rules on top.
type SovereignGate func(domain.DID, *domain.DIDDocument) error

// ResolverConfig carries the collaborators and policy of a Resolver.
type ResolverConfig struct {
	Fetcher  ports.Fetcher
	Verifier *TrustVerifier
	Cache    *DocumentCache

	// Sovereign supplies registered envelopes for sovereign DIDs. Leaving
	// it nil disables sovereign resolution.
	Sovereign ports.SovereignSource

	// RefreshPolicy defaults to RefreshAlways.
	RefreshPolicy RefreshPolicy

	// FallbackToCache serves the previously verified entry when a refresh
	// fails at the transport level. Off by default: a site that cannot
	// reconfirm a document fails the resolution instead of trusting old
	// bytes.
	FallbackToCache bool

	// AllowSovereign admits self-certified identities. Off by default.
	AllowSovereign bool

	// SovereignGate, when set, may reject a verified sovereign document.
	SovereignGate SovereignGate

	Logger  *slog.Logger
	Metrics MetricsReporter

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Resolver turns DIDs into verified documents.
//
// Standard resolution first establishes the agent's trust document for the
// DID's domain, then fetches and verifies the subject document against the
// agent's keys, consulting the cache per the refresh policy. Sovereign DIDs
// skip the network entirely and verify against their own keys. Concurrent
// resolutions of the same DID collapse into one fetch.
//
// The resolver performs no retries; a failed step fails the resolution and
// retry policy stays with the caller.
type Resolver struct {
	fetcher        ports.Fetcher
	verifier       *TrustVerifier
	cache          *DocumentCache
	sovereign      ports.SovereignSource
	policy         RefreshPolicy
	fallback       bool
	allowSovereign bool
	gate           SovereignGate
	logger         *slog.Logger
	metrics        MetricsReporter
	clock          func() time.Time
	group          singleflight.Group
}

// NewResolver creates a Resolver from the given configuration.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Fetcher == nil {
		return nil, &coreerrors.ValidationError{Field: "Fetcher", Value: nil, Message: "fetcher cannot be nil"}
	}
	if cfg.Verifier == nil {
		return nil, &coreerrors.ValidationError{Field: "Verifier", Value: nil, Message: "verifier cannot be nil"}
	}
	if cfg.Cache == nil {
		return nil, &coreerrors.ValidationError{Field: "Cache", Value: nil, Message: "cache cannot be nil"}
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

	return &Resolver{
		fetcher:        cfg.Fetcher,
		verifier:       cfg.Verifier,
		cache:          cfg.Cache,
		sovereign:      cfg.Sovereign,
		policy:         cfg.RefreshPolicy,
		fallback:       cfg.FallbackToCache,
		allowSovereign: cfg.AllowSovereign,
		gate:           cfg.SovereignGate,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		clock:          cfg.Clock,
	}, nil
}

// Resolve resolves an address to its verified document.
func (r *Resolver) Resolve(ctx context.Context, addr domain.Address) (*domain.DIDDocument, error) {
	return r.ResolveDID(ctx, addr.DID())
}

// ResolveDID resolves a DID to its verified document.
func (r *Resolver) ResolveDID(ctx context.Context, did domain.DID) (*domain.DIDDocument, error) {
	if did.IsEmpty() {
		return nil, coreerrors.Newf(coreerrors.ErrUnsupportedDID, "cannot resolve an empty DID")
	}

	start := r.clock()

	var (
		kind = "subject"
		doc  *domain.DIDDocument
		err  error
	)
	switch {
	case did.IsSovereign():
		kind = "sovereign"
		doc, err = r.resolveSovereign(ctx, did)
	case did.IsAgent():
		kind = "agent"
		var entry *domain.CacheEntry
		if entry, err = r.resolveAgent(ctx, did); err == nil {
			doc = entry.Document()
		}
	default:
		doc, err = r.resolveSubject(ctx, did)
	}

	r.metrics.RecordResolve(kind, err == nil, r.clock().Sub(start).Seconds())
	if err != nil {
		r.logger.Debug("resolution failed", "did", did.String(), "kind", kind, "error", err)
		return nil, err
	}
	return doc, nil
}

// resolveSubject collapses concurrent resolutions of one DID into a single
// lookup.
func (r *Resolver) resolveSubject(ctx context.Context, did domain.DID) (*domain.DIDDocument, error) {
	v, err, _ := r.group.Do(subjectKey(did), func() (any, error) {
		return r.lookupSubject(ctx, did)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.DIDDocument), nil
}

func (r *Resolver) lookupSubject(ctx context.Context, did domain.DID) (*domain.DIDDocument, error) {
	agentEntry, err := r.resolveAgent(ctx, did.AgentDID())
	if err != nil {
		return nil, err
	}

	now := r.clock()
	entry, cached := r.cache.GetSubject(ctx, did)
	if cached && r.policy == RefreshOnModified && !entry.ShouldRevalidateAt(now, agentEntry.LastModified()) {
		return entry.Document(), nil
	}

	url, err := did.LookupURL()
	if err != nil {
		return nil, err
	}

	var ims time.Time
	if cached {
		ims = entry.LastModified()
	}

	res, err := r.fetcher.Fetch(ctx, url, ims)
	if err != nil {
		r.metrics.RecordFetch("subject", "failure")
		if r.fallback && cached {
			r.logger.Warn("serving cached document after failed refresh",
				"did", did.String(), "error", err)
			return entry.Document(), nil
		}
		return nil, err
	}

	if res.NotModified {
		r.metrics.RecordFetch("subject", "not_modified")
		if !cached {
			return nil, coreerrors.Newf(coreerrors.ErrFetchFailed,
				"not-modified response for %s without a cached document", did)
		}
		entry.RefreshAt(now, res.LastModified)
		r.cacheSubject(ctx, did, entry)
		return entry.Document(), nil
	}
	r.metrics.RecordFetch("subject", "ok")

	doc, err := r.verifier.VerifySubjectDocument(agentEntry.Document(), string(res.Body))
	if err != nil {
		return nil, err
	}
	if !doc.Subject().Equals(did) {
		return nil, coreerrors.Newf(coreerrors.ErrSubjectUntrusted,
			"document subject %s does not match requested %s", doc.Subject(), did)
	}

	fresh, err := domain.NewCacheEntry(did, doc, string(res.Body), res.LastModified, now, r.cache.TTL())
	if err != nil {
		return nil, err
	}
	r.cacheSubject(ctx, did, fresh)
	return doc, nil
}

// resolveAgent returns the verified, current cache entry for an agent's
// trust document, fetching or revalidating as the policy requires.
func (r *Resolver) resolveAgent(ctx context.Context, agent domain.DID) (*domain.CacheEntry, error) {
	v, err, _ := r.group.Do(agentKey(agent), func() (any, error) {
		return r.lookupAgent(ctx, agent)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CacheEntry), nil
}

func (r *Resolver) lookupAgent(ctx context.Context, agent domain.DID) (*domain.CacheEntry, error) {
	now := r.clock()
	entry, cached := r.cache.GetAgent(ctx, agent)
	if cached && r.policy == RefreshOnModified && entry.IsFreshAt(now) {
		return entry, nil
	}

	url, err := agent.AgentTrustURL()
	if err != nil {
		return nil, err
	}

	var ims time.Time
	if cached {
		ims = entry.LastModified()
	}

	res, err := r.fetcher.Fetch(ctx, url, ims)
	if err != nil {
		r.metrics.RecordFetch("agent", "failure")
		if r.fallback && cached {
			r.logger.Warn("using cached agent document after failed refresh",
				"agent", agent.Host(), "error", err)
			return entry, nil
		}
		return nil, coreerrors.New(coreerrors.ErrAgentDocumentUnreachable, err)
	}

	if res.NotModified {
		r.metrics.RecordFetch("agent", "not_modified")
		if !cached {
			return nil, coreerrors.Newf(coreerrors.ErrAgentDocumentUnreachable,
				"not-modified response for %s without a cached document", agent.Host())
		}
		entry.RefreshAt(now, res.LastModified)
		r.cacheAgent(ctx, agent, entry)
		return entry, nil
	}
	r.metrics.RecordFetch("agent", "ok")

	doc, err := r.verifier.VerifyAgentDocument(agent.Domain(), string(res.Body))
	if err != nil {
		// The agent may have rotated keys; nothing derived from its old
		// document can be trusted until it verifies again.
		if _, derr := r.cache.InvalidateDomain(ctx, agent.Domain()); derr != nil {
			r.logger.Warn("failed to invalidate domain after agent verification failure",
				"domain", agent.Domain(), "error", derr)
		}
		return nil, err
	}

	fresh, err := domain.NewCacheEntry(agent, doc, string(res.Body), res.LastModified, now, r.cache.TTL())
	if err != nil {
		return nil, err
	}
	r.cacheAgent(ctx, agent, fresh)
	return fresh, nil
}

func (r *Resolver) resolveSovereign(ctx context.Context, did domain.DID) (*domain.DIDDocument, error) {
	if !r.allowSovereign {
		return nil, coreerrors.Newf(coreerrors.ErrSovereignRejected,
			"sovereign identities are not accepted by this site")
	}
	if r.sovereign == nil {
		return nil, coreerrors.Newf(coreerrors.ErrSovereignRejected,
			"no sovereign document source is configured")
	}

	envelope, err := r.sovereign.Lookup(ctx, did)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, coreerrors.Newf(coreerrors.ErrFetchFailed,
				"no document registered for sovereign DID %s", did)
		}
		return nil, coreerrors.New(coreerrors.ErrFetchFailed, err)
	}

	doc, err := r.verifier.VerifySovereignDocument(envelope)
	if err != nil {
		return nil, err
	}
	if !doc.Subject().Equals(did) {
		return nil, coreerrors.Newf(coreerrors.ErrSubjectUntrusted,
			"document subject %s does not match requested %s", doc.Subject(), did)
	}

	if r.gate != nil {
		if err := r.gate(did, doc); err != nil {
			return nil, coreerrors.New(coreerrors.ErrSovereignRejected, err)
		}
	}
	return doc, nil
}

// Cache writes never fail a resolution that already produced a verified
// document.
func (r *Resolver) cacheSubject(ctx context.Context, did domain.DID, entry *domain.CacheEntry) {
	if err := r.cache.PutSubject(ctx, did, entry); err != nil {
		r.logger.Warn("failed to cache subject document", "did", did.String(), "error", err)
	}
}

func (r *Resolver) cacheAgent(ctx context.Context, agent domain.DID, entry *domain.CacheEntry) {
	if err := r.cache.PutAgent(ctx, agent, entry); err != nil {
		r.logger.Warn("failed to cache agent document", "agent", agent.Host(), "error", err)
	}
}
