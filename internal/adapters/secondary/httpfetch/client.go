// Package httpfetch retrieves protocol documents over HTTPS with
// conditional-request support.
package httpfetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
	"github.com/sufield/fan/internal/core/ports"
)

const (
	// DefaultTimeout bounds one fetch end to end.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBodyBytes caps how large a fetched document may be.
	DefaultMaxBodyBytes = 1 << 20
	// DefaultUserAgent identifies this client to document servers.
	DefaultUserAgent = "fan-engine/1.0"
)

// Config holds the settings of a Client. The zero value is usable.
type Config struct {
	// Timeout bounds one fetch end to end. Defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxBodyBytes caps the accepted response size. Defaults to
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// UserAgent overrides the User-Agent header.
	UserAgent string
	// HTTPClient overrides the underlying client entirely, for tests and
	// deployments with their own transport policy.
	HTTPClient *http.Client
	// Logger receives fetch diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client implements ports.Fetcher over net/http. Documents travel as signed
// envelopes, so the transport requires TLS 1.3 but trusts nothing about the
// channel itself.
type Client struct {
	client       *http.Client
	maxBodyBytes int64
	userAgent    string
	logger       *slog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS13},
				MaxIdleConns:        32,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
				TLSHandshakeTimeout: cfg.Timeout,
			},
		}
	}
	return &Client{
		client:       client,
		maxBodyBytes: cfg.MaxBodyBytes,
		userAgent:    cfg.UserAgent,
		logger:       cfg.Logger,
	}
}

var _ ports.Fetcher = (*Client)(nil)

// Fetch retrieves url, conditionally when ifModifiedSince is non-zero.
func (c *Client) Fetch(ctx context.Context, url string, ifModifiedSince time.Time) (*ports.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrFetchFailed,
			fmt.Errorf("failed to build request for %s: %w", url, err))
	}
	req.Header.Set("Accept", domain.MIMEJose)
	req.Header.Set("User-Agent", c.userAgent)
	if !ifModifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", ifModifiedSince.UTC().Format(http.TimeFormat))
	}

	start := time.Now()
	res, err := c.client.Do(req)
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrFetchFailed,
			fmt.Errorf("request to %s failed: %w", url, err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()
	}()

	lastModified := parseHTTPDate(res.Header.Get("Last-Modified"))

	if res.StatusCode == http.StatusNotModified {
		c.logger.Debug("document unchanged", "url", url, "duration", time.Since(start))
		return &ports.FetchResult{
			StatusCode:   res.StatusCode,
			ContentType:  domain.NormalizeContentType(res.Header.Get("Content-Type")),
			LastModified: lastModified,
			NotModified:  true,
		}, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, coreerrors.Newf(coreerrors.ErrFetchFailed,
			"%s answered status %d", url, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, coreerrors.New(coreerrors.ErrFetchFailed,
			fmt.Errorf("failed to read body from %s: %w", url, err))
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, coreerrors.Newf(coreerrors.ErrFetchFailed,
			"document from %s exceeds the %d byte limit", url, c.maxBodyBytes)
	}

	c.logger.Debug("document fetched",
		"url", url,
		"status", res.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start))

	return &ports.FetchResult{
		StatusCode:   res.StatusCode,
		Body:         body,
		ContentType:  domain.NormalizeContentType(res.Header.Get("Content-Type")),
		LastModified: lastModified,
	}, nil
}

func parseHTTPDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
