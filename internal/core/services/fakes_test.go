package services

// Shared test doubles and document builders for the service tests. The fake
// crypto gateway treats the serialized trust payload itself as the
// envelope: DecodeSigned hands the bytes back, and signature judgments come
// from the configured key-id set.

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

type fakeCrypto struct {
	mu         sync.Mutex
	signedBy   map[string]bool
	decodeErr  error
	recipients []int
}

func newFakeCrypto(signerIDs ...string) *fakeCrypto {
	signedBy := make(map[string]bool, len(signerIDs))
	for _, id := range signerIDs {
		signedBy[id] = true
	}
	return &fakeCrypto{signedBy: signedBy}
}

func (f *fakeCrypto) allow(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedBy[id] = true
}

func (f *fakeCrypto) deny(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.signedBy, id)
}

func (f *fakeCrypto) DecodeSigned(raw string) (*ports.SignedMessage, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return &ports.SignedMessage{Payload: []byte(raw)}, nil
}

func (f *fakeCrypto) VerifyWithKey(msg *ports.SignedMessage, key jose.JSONWebKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signedBy[key.KeyID] {
		return nil
	}
	return coreerrors.Newf(coreerrors.ErrSignatureInvalid, "no signature from %q", key.KeyID)
}

func (f *fakeCrypto) VerifyAny(msg *ports.SignedMessage, keys []jose.JSONWebKey) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		if f.signedBy[key.KeyID] {
			return msg.Payload, nil
		}
	}
	return nil, coreerrors.Newf(coreerrors.ErrSignatureInvalid, "no candidate key signed the message")
}

func (f *fakeCrypto) Sign(payload []byte, keys []jose.JSONWebKey) (string, error) {
	return string(payload), nil
}

func (f *fakeCrypto) Encrypt(payload []byte, keys []jose.JSONWebKey) (string, error) {
	f.mu.Lock()
	f.recipients = append(f.recipients, len(keys))
	f.mu.Unlock()
	return "enc:" + string(payload), nil
}

func (f *fakeCrypto) Decrypt(envelope string, key jose.JSONWebKey) ([]byte, error) {
	if !strings.HasPrefix(envelope, "enc:") {
		return nil, coreerrors.Newf(coreerrors.ErrDecryptionFailed, "not an encrypted envelope")
	}
	return []byte(strings.TrimPrefix(envelope, "enc:")), nil
}

type fakeDocStore struct {
	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
	getErr  error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{entries: make(map[string]*domain.CacheEntry)}
}

func (s *fakeDocStore) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return entry, nil
}

func (s *fakeDocStore) Put(ctx context.Context, key string, entry *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *fakeDocStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *fakeDocStore) DeleteDomain(ctx context.Context, domainName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for key, entry := range s.entries {
		if entry.DID().Domain() == domainName {
			delete(s.entries, key)
			dropped++
		}
	}
	return dropped, nil
}

func (s *fakeDocStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type fakeAttemptStore struct {
	mu         sync.Mutex
	attempts   map[string]domain.AuthenticationAttempt
	resolvedAt map[string]time.Time
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts:   make(map[string]domain.AuthenticationAttempt),
		resolvedAt: make(map[string]time.Time),
	}
}

func (s *fakeAttemptStore) Create(ctx context.Context, attempt domain.AuthenticationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return ports.ErrDuplicate
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *fakeAttemptStore) Get(ctx context.Context, id string) (domain.AuthenticationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.AuthenticationAttempt{}, ports.ErrNotFound
	}
	return attempt, nil
}

func (s *fakeAttemptStore) Transition(ctx context.Context, id string, from, to domain.AttemptStatus) (domain.AuthenticationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.AuthenticationAttempt{}, ports.ErrNotFound
	}
	if attempt.Status != from {
		return domain.AuthenticationAttempt{}, ports.ErrConflict
	}
	attempt.Status = to
	s.attempts[id] = attempt
	if to.IsTerminal() {
		s.resolvedAt[id] = time.Now()
	}
	return attempt, nil
}

func (s *fakeAttemptStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
	delete(s.resolvedAt, id)
	return nil
}

func (s *fakeAttemptStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

func (s *fakeAttemptStore) status(id string) domain.AttemptStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id].Status
}

func (s *fakeAttemptStore) Sweep(ctx context.Context, now time.Time, retain time.Duration) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired, dropped := 0, 0
	for id, attempt := range s.attempts {
		switch {
		case attempt.Status == domain.AttemptPending && attempt.ExpiredAt(now):
			attempt.Status = domain.AttemptExpired
			s.attempts[id] = attempt
			s.resolvedAt[id] = now
			expired++
		case attempt.Status.IsTerminal() && now.Sub(s.resolvedAt[id]) > retain:
			delete(s.attempts, id)
			delete(s.resolvedAt, id)
			dropped++
		}
	}
	return expired, dropped, nil
}

type fakeSovereignSource struct {
	mu        sync.Mutex
	envelopes map[string]string
}

func newFakeSovereignSource() *fakeSovereignSource {
	return &fakeSovereignSource{envelopes: make(map[string]string)}
}

func (s *fakeSovereignSource) Lookup(ctx context.Context, did domain.DID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	envelope, ok := s.envelopes[did.String()]
	if !ok {
		return "", ports.ErrNotFound
	}
	return envelope, nil
}

func (s *fakeSovereignSource) Register(ctx context.Context, did domain.DID, envelope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes[did.String()] = envelope
	return nil
}

type fetchCall struct {
	url             string
	ifModifiedSince time.Time
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*ports.FetchResult
	errs      map[string]error
	calls     []fetchCall
	delay     time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*ports.FetchResult),
		errs:      make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, ifModifiedSince time.Time) (*ports.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{url: url, ifModifiedSince: ifModifiedSince})
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	res, ok := f.responses[url]
	if !ok {
		return nil, coreerrors.Newf(coreerrors.ErrFetchFailed, "no route to %s", url)
	}
	copied := *res
	return &copied, nil
}

func (f *fakeFetcher) serve(url string, body string, lastModified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = &ports.FetchResult{
		StatusCode:   200,
		Body:         []byte(body),
		ContentType:  domain.MIMEJose,
		LastModified: lastModified,
	}
	delete(f.errs, url)
}

func (f *fakeFetcher) serveNotModified(url string, lastModified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = &ports.FetchResult{
		StatusCode:   304,
		ContentType:  domain.MIMEJose,
		LastModified: lastModified,
		NotModified:  true,
	}
	delete(f.errs, url)
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) callsFor(url string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []fetchCall
	for _, call := range f.calls {
		if call.url == url {
			matched = append(matched, call)
		}
	}
	return matched
}

// recordingMetrics counts reporter events on top of the no-op reporter.
type recordingMetrics struct {
	NoOpMetrics
	mu           sync.Mutex
	issued       int
	resolved     map[string]int
	rejected     map[string]int
	sweptExpired int
	sweptDropped int
	cacheHits    map[string]int
	cacheMisses  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		resolved:    make(map[string]int),
		rejected:    make(map[string]int),
		cacheHits:   make(map[string]int),
		cacheMisses: make(map[string]int),
	}
}

func (m *recordingMetrics) RecordAttemptIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
}

func (m *recordingMetrics) RecordAttemptResolved(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved[outcome]++
}

func (m *recordingMetrics) RecordAttemptRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[reason]++
}

func (m *recordingMetrics) RecordSweep(expired, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweptExpired += expired
	m.sweptDropped += dropped
}

func (m *recordingMetrics) RecordCacheHit(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits[kind]++
}

func (m *recordingMetrics) RecordCacheMiss(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses[kind]++
}

func (m *recordingMetrics) snapshot() (resolved, rejected map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved = make(map[string]int, len(m.resolved))
	for k, v := range m.resolved {
		resolved[k] = v
	}
	rejected = make(map[string]int, len(m.rejected))
	for k, v := range m.rejected {
		rejected[k] = v
	}
	return resolved, rejected
}

type fakeSessionIssuer struct {
	err error
}

func (f *fakeSessionIssuer) Issue(ctx context.Context, subject domain.DID) (*ports.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ports.Session{
		Token:     "session-for-" + subject.String(),
		Subject:   subject,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

// fakeClock is a hand-driven clock for freshness and expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newKeyedMethod returns a verification method carrying a fresh Ed25519
// public key.
func newKeyedMethod(t *testing.T, id string) domain.VerificationMethod {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return domain.VerificationMethod{
		ID:   id,
		Type: domain.MethodTypeJSONWebKey2020,
		PublicKeyJWK: &jose.JSONWebKey{
			Key:       pub,
			KeyID:     id,
			Algorithm: string(jose.EdDSA),
			Use:       "sig",
		},
	}
}

func mustParseDID(t *testing.T, raw string) domain.DID {
	t.Helper()
	did, err := domain.ParseDID(raw)
	if err != nil {
		t.Fatalf("ParseDID(%q) returned error: %v", raw, err)
	}
	return did
}

func buildDocument(t *testing.T, subject domain.DID, methods []domain.VerificationMethod, authentication, capabilityInvocation []string) *domain.DIDDocument {
	t.Helper()
	doc, err := domain.NewDIDDocument(subject, methods, authentication, capabilityInvocation)
	if err != nil {
		t.Fatalf("NewDIDDocument returned error: %v", err)
	}
	return doc
}

// envelopeFor serializes a document the way the wire carries it. With the
// fake gateway the serialized trust payload doubles as the envelope.
func envelopeFor(t *testing.T, doc *domain.DIDDocument) string {
	t.Helper()
	codec, err := domain.CodecFor(domain.MIMEJSONDID)
	if err != nil {
		t.Fatalf("CodecFor returned error: %v", err)
	}
	body, err := codec.Encode(doc)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	payload, err := domain.NewTrustPayload(body, domain.MIMEJSONDID).Encode()
	if err != nil {
		t.Fatalf("Encode trust payload returned error: %v", err)
	}
	return string(payload)
}
