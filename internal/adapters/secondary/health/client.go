// Package health checks a running engine's liveness and readiness over its
// built-in HTTP health endpoints.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Status is the outcome of one health check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Default endpoint paths, matching what the engine's HTTP server exposes.
const (
	DefaultLivePath  = "/live"
	DefaultReadyPath = "/ready"
	DefaultTimeout   = 10 * time.Second
)

// Result describes one completed check.
type Result struct {
	// Check names the probe, liveness or readiness.
	Check string
	// Status is the outcome.
	Status Status
	// Message carries detail for failed checks.
	Message string
	// ResponseTime is how long the probe took.
	ResponseTime time.Duration
	// CheckedAt is when the probe ran.
	CheckedAt time.Time
}

// Healthy reports whether the check passed.
func (r *Result) Healthy() bool {
	return r.Status == StatusHealthy
}

// Config configures an endpoint health client.
type Config struct {
	// Address is the engine's host:port.
	Address string
	// LivePath overrides the liveness endpoint path.
	LivePath string
	// ReadyPath overrides the readiness endpoint path.
	ReadyPath string
	// UseHTTPS selects https for probe requests.
	UseHTTPS bool
	// Timeout bounds one probe. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Client probes an engine's health endpoints.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a health client for the engine at config.Address.
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.Address) == "" {
		return nil, fmt.Errorf("health check address cannot be empty")
	}
	if config.LivePath == "" {
		config.LivePath = DefaultLivePath
	}
	if config.ReadyPath == "" {
		config.ReadyPath = DefaultReadyPath
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		// Redirects would hide the real endpoint status.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{config: config, httpClient: httpClient}, nil
}

// CheckLiveness probes whether the engine process is running.
func (c *Client) CheckLiveness(ctx context.Context) *Result {
	return c.probe(ctx, "liveness", c.config.LivePath)
}

// CheckReadiness probes whether the engine is ready to serve requests.
func (c *Client) CheckReadiness(ctx context.Context) *Result {
	return c.probe(ctx, "readiness", c.config.ReadyPath)
}

// Check runs both probes.
func (c *Client) Check(ctx context.Context) []*Result {
	return []*Result{
		c.CheckLiveness(ctx),
		c.CheckReadiness(ctx),
	}
}

func (c *Client) probe(ctx context.Context, check, path string) *Result {
	start := time.Now()
	result := &Result{Check: check, CheckedAt: start}

	scheme := "http"
	if c.config.UseHTTPS {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, c.config.Address, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("failed to build request: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("request failed: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
	}()

	result.ResponseTime = time.Since(start)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Status = StatusHealthy
		return result
	}

	result.Status = StatusUnhealthy
	result.Message = fmt.Sprintf("endpoint answered status %d", resp.StatusCode)
	return result
}
