package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

// PublishedDocument is a document prepared for serving: a signed envelope
// plus the headers that accompany it.
type PublishedDocument struct {
	// Body is the serialized signature envelope.
	Body []byte
	// ContentType is always the jose envelope type.
	ContentType string
	// LastModified is the document timestamp to assert to clients.
	LastModified time.Time
	// NotModified is true when a conditional request may be answered with
	// 304 instead of Body.
	NotModified bool
}

// AgentConfig carries the collaborators of an AgentPublisher.
type AgentConfig struct {
	// Source holds the deployment's own trust document and its subjects'
	// documents.
	Source ports.DocumentSource
	// Signer signs every published document with the deployment's
	// authentication keys. The publisher never touches key material.
	Signer ports.Signer

	Logger *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// AgentPublisher prepares this deployment's documents for serving. Every
// response is the stored document wrapped in a trust payload and signed, so
// remote verifiers can hold it against the agent's own trust document. The
// requested content type selects the embedded encoding; documents stored in
// another encoding are transcoded through the document codecs.
type AgentPublisher struct {
	source ports.DocumentSource
	signer ports.Signer
	logger *slog.Logger
	clock  func() time.Time
}

// NewAgentPublisher creates an AgentPublisher from the given configuration.
func NewAgentPublisher(cfg AgentConfig) (*AgentPublisher, error) {
	if cfg.Source == nil {
		return nil, &coreerrors.ValidationError{Field: "Source", Value: nil, Message: "document source cannot be nil"}
	}
	if cfg.Signer == nil {
		return nil, &coreerrors.ValidationError{Field: "Signer", Value: nil, Message: "signer cannot be nil"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &AgentPublisher{
		source: cfg.Source,
		signer: cfg.Signer,
		logger: cfg.Logger,
		clock:  cfg.Clock,
	}, nil
}

// AgentDocument publishes this deployment's own trust document. An empty
// accept keeps the stored encoding.
func (p *AgentPublisher) AgentDocument(ctx context.Context, accept string, ifModifiedSince time.Time) (*PublishedDocument, error) {
	src, err := p.source.Agent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent document: %w", err)
	}
	return p.publish(ctx, src, accept, ifModifiedSince)
}

// SubjectDocument publishes the document of a local subject. Unknown
// subjects fail with ports.ErrNotFound.
func (p *AgentPublisher) SubjectDocument(ctx context.Context, name, accept string, ifModifiedSince time.Time) (*PublishedDocument, error) {
	src, err := p.source.Subject(ctx, name)
	if err != nil {
		return nil, err
	}
	return p.publish(ctx, src, accept, ifModifiedSince)
}

func (p *AgentPublisher) publish(ctx context.Context, src *ports.SourceDocument, accept string, ifModifiedSince time.Time) (*PublishedDocument, error) {
	// HTTP dates carry second resolution, so the stored timestamp is
	// rounded down before comparing against the client's.
	if !ifModifiedSince.IsZero() && !src.LastModified.Truncate(time.Second).After(ifModifiedSince) {
		return &PublishedDocument{
			ContentType:  domain.MIMEJose,
			LastModified: src.LastModified,
			NotModified:  true,
		}, nil
	}

	body, contentType, err := p.negotiate(src, accept)
	if err != nil {
		return nil, err
	}

	payload, err := domain.NewTrustPayload(body, contentType).Encode()
	if err != nil {
		return nil, err
	}
	envelope, err := p.signer.Sign(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign document: %w", err)
	}

	return &PublishedDocument{
		Body:         []byte(envelope),
		ContentType:  domain.MIMEJose,
		LastModified: src.LastModified,
	}, nil
}

// negotiate picks the embedded document encoding for a request, transcoding
// from the stored encoding when they differ.
func (p *AgentPublisher) negotiate(src *ports.SourceDocument, accept string) ([]byte, string, error) {
	stored := domain.NormalizeContentType(src.ContentType)
	if accept == "" {
		return src.Body, stored, nil
	}

	target, err := domain.CodecFor(accept)
	if err != nil {
		return nil, "", err
	}
	if target.ContentType() == stored {
		return src.Body, stored, nil
	}

	source, err := domain.CodecFor(stored)
	if err != nil {
		return nil, "", fmt.Errorf("stored document has unusable encoding: %w", err)
	}
	doc, err := source.Decode(src.Body)
	if err != nil {
		return nil, "", fmt.Errorf("stored document does not decode: %w", err)
	}
	body, err := target.Encode(doc)
	if err != nil {
		return nil, "", err
	}
	return body, target.ContentType(), nil
}
