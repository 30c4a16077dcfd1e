package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sufield/fan/internal/core/domain"
	"github.com/sufield/fan/internal/core/ports"
)

// DefaultCacheTTL bounds how long a verified document is served without
// reconfirmation when nothing else forces a refresh.
const DefaultCacheTTL = 10 * time.Minute

// DocumentCache holds verified documents between resolutions. It owns the
// key scheme on top of the document store and the freshness stamps on the
// entries; trust decisions stay with the verifier. Absence is never an
// error here, only a reason to fetch.
type DocumentCache struct {
	store   ports.DocumentStore
	ttl     time.Duration
	logger  *slog.Logger
	metrics MetricsReporter
}

// NewDocumentCache creates a DocumentCache over the given store. A zero or
// negative ttl falls back to DefaultCacheTTL.
func NewDocumentCache(store ports.DocumentStore, ttl time.Duration, logger *slog.Logger, metrics MetricsReporter) (*DocumentCache, error) {
	if store == nil {
		return nil, errors.New("document store cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &DocumentCache{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// TTL returns the freshness window stamped onto new entries.
func (c *DocumentCache) TTL() time.Duration {
	return c.ttl
}

// GetAgent returns the cached trust document entry for an agent, or false.
func (c *DocumentCache) GetAgent(ctx context.Context, agent domain.DID) (*domain.CacheEntry, bool) {
	return c.get(ctx, agentKey(agent), "agent")
}

// PutAgent stores the verified trust document entry for an agent.
func (c *DocumentCache) PutAgent(ctx context.Context, agent domain.DID, entry *domain.CacheEntry) error {
	return c.store.Put(ctx, agentKey(agent), entry)
}

// GetSubject returns the cached document entry for a subject DID, or false.
func (c *DocumentCache) GetSubject(ctx context.Context, did domain.DID) (*domain.CacheEntry, bool) {
	return c.get(ctx, subjectKey(did), "subject")
}

// PutSubject stores the verified document entry for a subject DID.
func (c *DocumentCache) PutSubject(ctx context.Context, did domain.DID, entry *domain.CacheEntry) error {
	return c.store.Put(ctx, subjectKey(did), entry)
}

// InvalidateDomain drops the agent entry and every subject entry bound to
// the given domain. Used when the agent document stops verifying: subject
// trust derived from it is no longer sound.
func (c *DocumentCache) InvalidateDomain(ctx context.Context, domainName string) (int, error) {
	dropped, err := c.store.DeleteDomain(ctx, domainName)
	if err != nil {
		return 0, err
	}
	if dropped > 0 {
		c.logger.Info("invalidated cached documents", "domain", domainName, "count", dropped)
	}
	return dropped, nil
}

func (c *DocumentCache) get(ctx context.Context, key, kind string) (*domain.CacheEntry, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			// A failing store degrades to a miss; resolution refetches.
			c.logger.Warn("document store read failed", "key", key, "error", err)
		}
		c.metrics.RecordCacheMiss(kind)
		return nil, false
	}
	c.metrics.RecordCacheHit(kind)
	return entry, true
}

// agentKey keys agent trust documents by host so agents on distinct ports
// of one domain stay separate entries.
func agentKey(agent domain.DID) string {
	return "agent:" + agent.Host()
}

func subjectKey(did domain.DID) string {
	return "subject:" + did.String()
}
