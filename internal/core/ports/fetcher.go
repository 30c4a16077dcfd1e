// Package ports defines interfaces that represent the engine's ports in hexagonal architecture.
package ports

import (
	"context"
	"time"
)

// FetchResult is the outcome of one document fetch.
type FetchResult struct {
	// StatusCode is the HTTP status the server answered with.
	StatusCode int
	// Body is the response body. Empty on a 304 revalidation.
	Body []byte
	// ContentType is the media type the server declared for the body.
	ContentType string
	// LastModified is the document timestamp asserted by the server, zero
	// when the header was absent or unparsable.
	LastModified time.Time
	// NotModified is true when the server answered 304 to a conditional
	// fetch, meaning the cached representation is still current.
	NotModified bool
}

// Fetcher defines the contract for retrieving protocol documents over the
// network. The engine never opens connections itself; deployments inject a
// fetcher with whatever transport policy they need.
//
// Implementations must be thread-safe as they may be called concurrently.
type Fetcher interface {
	// Fetch retrieves url. A non-zero ifModifiedSince makes the fetch
	// conditional; servers still holding the same representation answer
	// with a result marked NotModified instead of a body.
	//
	// Transport failures and non-success statuses are reported as
	// FetchFailed errors so callers can map them into their own step's
	// failure kind.
	Fetch(ctx context.Context, url string, ifModifiedSince time.Time) (*FetchResult, error)
}
