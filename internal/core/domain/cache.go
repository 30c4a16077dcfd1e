package domain

import (
	"fmt"
	"time"
)

// CacheEntry represents one verified document held by the document cache.
// It encapsulates freshness timing concerns and provides predicate methods
// to separate revalidation policy from storage.
type CacheEntry struct {
	did          DID
	document     *DIDDocument
	envelope     string
	lastModified time.Time
	fetchedAt    time.Time
	ttl          time.Duration
}

// NewCacheEntry creates a cache entry for a verified document. The envelope
// is the signed form the document arrived in; lastModified is the timestamp
// the serving side asserted for it.
func NewCacheEntry(did DID, document *DIDDocument, envelope string, lastModified, fetchedAt time.Time, ttl time.Duration) (*CacheEntry, error) {
	if document == nil {
		return nil, fmt.Errorf("cache entry requires a document")
	}
	return &CacheEntry{
		did:          did,
		document:     document,
		envelope:     envelope,
		lastModified: lastModified,
		fetchedAt:    fetchedAt,
		ttl:          ttl,
	}, nil
}

// DID returns the identifier the entry is cached under.
func (ce *CacheEntry) DID() DID {
	return ce.did
}

// Document returns the verified document.
func (ce *CacheEntry) Document() *DIDDocument {
	return ce.document
}

// Envelope returns the signed envelope the document arrived in.
func (ce *CacheEntry) Envelope() string {
	return ce.envelope
}

// LastModified returns the server-asserted document timestamp.
func (ce *CacheEntry) LastModified() time.Time {
	return ce.lastModified
}

// FetchedAt returns when this entry was stored.
func (ce *CacheEntry) FetchedAt() time.Time {
	return ce.fetchedAt
}

// TTL returns the time-to-live of this entry.
func (ce *CacheEntry) TTL() time.Duration {
	return ce.ttl
}

// ExpiresAt returns the time the entry goes stale.
func (ce *CacheEntry) ExpiresAt() time.Time {
	return ce.fetchedAt.Add(ce.ttl)
}

// IsFresh returns true if the entry is not stale at the current time.
func (ce *CacheEntry) IsFresh() bool {
	return ce.IsFreshAt(time.Now())
}

// IsFreshAt returns true if the entry is not stale at the given time.
func (ce *CacheEntry) IsFreshAt(now time.Time) bool {
	return now.Sub(ce.fetchedAt) < ce.ttl
}

// AgeAt returns how long ago the entry was stored relative to now.
func (ce *CacheEntry) AgeAt(now time.Time) time.Duration {
	return now.Sub(ce.fetchedAt)
}

// ShouldRevalidate reports whether the entry must be refetched given the
// current timestamp of the agent trust document. A newer agent document
// means keys on the domain may have rotated; a stale entry must be
// reconfirmed regardless.
func (ce *CacheEntry) ShouldRevalidate(agentLastModified time.Time) bool {
	return ce.ShouldRevalidateAt(time.Now(), agentLastModified)
}

// ShouldRevalidateAt is ShouldRevalidate evaluated at an explicit time.
func (ce *CacheEntry) ShouldRevalidateAt(now time.Time, agentLastModified time.Time) bool {
	if !ce.IsFreshAt(now) {
		return true
	}
	return agentLastModified.After(ce.lastModified)
}

// RefreshAt updates the entry's timing after a 304 revalidation: the
// document was reconfirmed unchanged at now with the given timestamp.
func (ce *CacheEntry) RefreshAt(now time.Time, lastModified time.Time) {
	ce.fetchedAt = now
	if !lastModified.IsZero() {
		ce.lastModified = lastModified
	}
}
