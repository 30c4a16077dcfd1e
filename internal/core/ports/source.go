package ports

import (
	"context"
	"time"

	"github.com/sufield/fan/internal/core/domain"
)

// SourceDocument is one document as held by a document source, before any
// signing or transcoding.
type SourceDocument struct {
	// Body is the raw serialized document.
	Body []byte
	// ContentType is the encoding of Body.
	ContentType string
	// LastModified is when the document last changed.
	LastModified time.Time
}

// DocumentSource defines the contract for the agent role's document
// storage: where this deployment's own trust document and its subjects'
// documents live before they are signed for serving.
//
// Implementations must be thread-safe as they may be called concurrently.
type DocumentSource interface {
	// Agent returns this deployment's own trust document.
	Agent(ctx context.Context) (*SourceDocument, error)

	// Subject returns the document of the named local subject, or
	// ErrNotFound.
	Subject(ctx context.Context, name string) (*SourceDocument, error)
}

// SovereignSource defines the contract for obtaining self-certified
// documents. Sovereign DIDs have no lookup URL; their signed envelopes
// arrive out of band and are registered with the site by whatever channel
// the deployment chooses.
//
// Implementations must be thread-safe as they may be called concurrently.
type SovereignSource interface {
	// Lookup returns the registered signed envelope for a sovereign DID,
	// or ErrNotFound.
	Lookup(ctx context.Context, did domain.DID) (string, error)

	// Register stores the signed envelope for a sovereign DID, replacing
	// any previous registration.
	Register(ctx context.Context, did domain.DID, envelope string) error
}
