package docsource

import (
	"context"
	"sync"
	"time"

	"github.com/sufield/fan/internal/core/ports"
)

// Memory implements ports.DocumentSource in process. Tests and the runnable
// examples seed it directly; production deployments use Dir.
type Memory struct {
	mu       sync.RWMutex
	agent    *ports.SourceDocument
	subjects map[string]*ports.SourceDocument
}

// NewMemory creates an empty Memory source.
func NewMemory() *Memory {
	return &Memory{subjects: make(map[string]*ports.SourceDocument)}
}

var _ ports.DocumentSource = (*Memory)(nil)

// SetAgent stores the deployment's own trust document.
func (m *Memory) SetAgent(body []byte, contentType string, lastModified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agent = &ports.SourceDocument{Body: body, ContentType: contentType, LastModified: lastModified}
}

// SetSubject stores the document of a local subject.
func (m *Memory) SetSubject(name string, body []byte, contentType string, lastModified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[name] = &ports.SourceDocument{Body: body, ContentType: contentType, LastModified: lastModified}
}

// Agent returns this deployment's own trust document.
func (m *Memory) Agent(ctx context.Context) (*ports.SourceDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.agent == nil {
		return nil, ports.ErrNotFound
	}
	return m.agent, nil
}

// Subject returns the document of the named local subject, or ErrNotFound.
func (m *Memory) Subject(ctx context.Context, name string) (*ports.SourceDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.subjects[name]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return doc, nil
}
