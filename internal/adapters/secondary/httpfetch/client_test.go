package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
)

type headerRecorder struct {
	mu      sync.Mutex
	headers []http.Header
}

func (r *headerRecorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = append(r.headers, req.Header.Clone())
}

func (r *headerRecorder) last() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.headers) == 0 {
		return http.Header{}
	}
	return r.headers[len(r.headers)-1]
}

func TestFetchReturnsDocument(t *testing.T) {
	recorder := &headerRecorder{}
	modified := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder.record(req)
		w.Header().Set("Content-Type", domain.MIMEJSONDID+"; charset=utf-8")
		w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		_, _ = w.Write([]byte(`{"id":"did:fan:example.com"}`))
	}))
	defer server.Close()

	client := New(Config{})
	result, err := client.Fetch(context.Background(), server.URL+"/fan.did", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, []byte(`{"id":"did:fan:example.com"}`), result.Body)
	assert.Equal(t, domain.MIMEJSONDID, result.ContentType, "parameters should be stripped")
	assert.True(t, result.LastModified.Equal(modified))
	assert.False(t, result.NotModified)

	headers := recorder.last()
	assert.Equal(t, domain.MIMEJose, headers.Get("Accept"))
	assert.Equal(t, DefaultUserAgent, headers.Get("User-Agent"))
	assert.Empty(t, headers.Get("If-Modified-Since"), "unconditional fetch should not revalidate")
}

func TestFetchSendsIfModifiedSince(t *testing.T) {
	recorder := &headerRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder.record(req)
		_, _ = w.Write([]byte("{}"))
	}))
	defer server.Close()

	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := New(Config{})
	_, err := client.Fetch(context.Background(), server.URL, since)
	require.NoError(t, err)

	assert.Equal(t, since.Format(http.TimeFormat), recorder.last().Get("If-Modified-Since"))
}

func TestFetchNotModified(t *testing.T) {
	modified := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	client := New(Config{})
	result, err := client.Fetch(context.Background(), server.URL, modified)
	require.NoError(t, err)

	assert.True(t, result.NotModified)
	assert.Empty(t, result.Body)
	assert.True(t, result.LastModified.Equal(modified))
}

func TestFetchReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer server.Close()

	client := New(Config{})
	_, err := client.Fetch(context.Background(), server.URL, time.Time{})
	require.ErrorIs(t, err, coreerrors.ErrFetchFailed)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchReportsTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(Config{})
	_, err := client.Fetch(context.Background(), url, time.Time{})
	require.ErrorIs(t, err, coreerrors.ErrFetchFailed)
}

func TestFetchEnforcesBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write(make([]byte, 256))
	}))
	defer server.Close()

	client := New(Config{MaxBodyBytes: 64})
	_, err := client.Fetch(context.Background(), server.URL, time.Time{})
	require.ErrorIs(t, err, coreerrors.ErrFetchFailed)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestFetchHonorsContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := New(Config{})
	_, err := client.Fetch(ctx, server.URL, time.Time{})
	require.ErrorIs(t, err, coreerrors.ErrFetchFailed)
}
