package fan

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sufield/fan/internal/adapters/primary/httpserve"
	"github.com/sufield/fan/internal/adapters/secondary/httpfetch"
	"github.com/sufield/fan/internal/adapters/secondary/josecrypto"
	"github.com/sufield/fan/internal/adapters/secondary/memstore"
	"github.com/sufield/fan/internal/core/services"
)

// WebsiteOption configures website creation behavior.
type WebsiteOption func(*websiteOpts)

// websiteOpts holds the configuration for website creation.
type websiteOpts struct {
	logger          *slog.Logger
	metrics         MetricsReporter
	clock           func() time.Time
	httpClient      *http.Client
	fetcher         Fetcher
	cacheTTL        time.Duration
	attemptTTL      time.Duration
	refreshPolicy   RefreshPolicy
	fallbackToCache bool
	sovereign       SovereignSource
	gate            SovereignGate
	sessions        SessionIssuer
}

// WithLogger routes the website's diagnostics to the given logger.
func WithLogger(logger *slog.Logger) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.logger = logger
	}
}

// WithMetrics wires a telemetry sink. services of this module export a
// Prometheus implementation; any MetricsReporter works.
func WithMetrics(metrics MetricsReporter) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.metrics = metrics
	}
}

// WithClock overrides time.Now for attempt deadlines and cache freshness.
// This is primarily used by tests.
func WithClock(clock func() time.Time) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.clock = clock
	}
}

// WithHTTPClient replaces the underlying HTTP client used to fetch remote
// documents, for deployments with their own transport policy.
func WithHTTPClient(client *http.Client) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.httpClient = client
	}
}

// WithFetcher replaces the document fetcher entirely. This is primarily
// used for testing with fake transports; WithHTTPClient covers most
// production needs.
func WithFetcher(fetcher Fetcher) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.fetcher = fetcher
	}
}

// WithCacheTTL bounds how long verified documents are served from cache
// before being reconfirmed.
func WithCacheTTL(ttl time.Duration) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.cacheTTL = ttl
	}
}

// WithAttemptTTL bounds how long an issued challenge may be answered.
func WithAttemptTTL(ttl time.Duration) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.attemptTTL = ttl
	}
}

// WithRefreshPolicy selects when cached documents are revalidated. The
// default is RefreshAlways, which every authenticating site should keep so
// key rotations take effect on the next attempt.
func WithRefreshPolicy(policy RefreshPolicy) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.refreshPolicy = policy
	}
}

// WithCacheFallback serves the previously verified document when a refresh
// fails at the transport level. Off by default: a site that cannot
// reconfirm a document fails the authentication instead of trusting old
// bytes.
func WithCacheFallback() WebsiteOption {
	return func(opts *websiteOpts) {
		opts.fallbackToCache = true
	}
}

// WithSovereignSource admits self-certified identities backed by the given
// registry. The optional gate gets the final word on each verified
// document; a nil gate accepts all of them.
func WithSovereignSource(source SovereignSource, gate SovereignGate) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.sovereign = source
		opts.gate = gate
	}
}

// WithSessions mints a session credential through the given issuer after
// each successful authentication.
func WithSessions(issuer SessionIssuer) WebsiteOption {
	return func(opts *websiteOpts) {
		opts.sessions = issuer
	}
}

// Website is the relying-party role: it authenticates visitors by the
// addresses they bring.
//
// Usage:
//
//	site, err := fan.NewWebsite(fan.WithSessions(issuer))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	challenge, err := site.BeginAuthentication(ctx, "alice@example.org")
//	// relay challenge.Envelope to the visitor's client software
//	result, err := site.CompleteAuthentication(ctx, signedResponse)
//
// Or mount the ready-made HTTP surface:
//
//	http.ListenAndServe(":8080", site.Handler())
type Website struct {
	site *services.Website
	auth *services.ChallengeAuthenticator
}

// NewWebsite creates a Website. The zero configuration is production-usable:
// documents are fetched over HTTPS, verified, cached in memory, and
// challenge attempts live in memory. Options adjust policy and wiring.
func NewWebsite(opts ...WebsiteOption) (*Website, error) {
	options := &websiteOpts{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.cacheTTL <= 0 {
		options.cacheTTL = services.DefaultCacheTTL
	}

	gateway := josecrypto.New()

	fetcher := options.fetcher
	if fetcher == nil {
		fetcher = httpfetch.New(httpfetch.Config{
			HTTPClient: options.httpClient,
			Logger:     options.logger,
		})
	}

	verifier, err := services.NewTrustVerifier(gateway, options.logger, options.metrics)
	if err != nil {
		return nil, err
	}
	cache, err := services.NewDocumentCache(memstore.NewDocumentStore(), options.cacheTTL, options.logger, options.metrics)
	if err != nil {
		return nil, err
	}
	resolver, err := services.NewResolver(services.ResolverConfig{
		Fetcher:         fetcher,
		Verifier:        verifier,
		Cache:           cache,
		Sovereign:       options.sovereign,
		RefreshPolicy:   options.refreshPolicy,
		FallbackToCache: options.fallbackToCache,
		AllowSovereign:  options.sovereign != nil,
		SovereignGate:   options.gate,
		Logger:          options.logger,
		Metrics:         options.metrics,
		Clock:           options.clock,
	})
	if err != nil {
		return nil, err
	}

	auth, err := services.NewChallengeAuthenticator(services.AuthenticatorConfig{
		Crypto:     gateway,
		Attempts:   memstore.NewAttemptStore(),
		AttemptTTL: options.attemptTTL,
		Logger:     options.logger,
		Metrics:    options.metrics,
		Clock:      options.clock,
	})
	if err != nil {
		return nil, err
	}

	site, err := services.NewWebsite(services.WebsiteConfig{
		Resolver:      resolver,
		Authenticator: auth,
		Sessions:      options.sessions,
		Logger:        options.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Website{site: site, auth: auth}, nil
}

// BeginAuthentication resolves the subject behind rawAddress and issues a
// challenge toward it. The returned envelope is readable only by holders of
// the subject's authentication keys.
func (w *Website) BeginAuthentication(ctx context.Context, rawAddress string) (*Challenge, error) {
	return w.site.BeginAuthentication(ctx, rawAddress)
}

// CompleteAuthentication evaluates a signed challenge response. Each issued
// challenge completes at most once; replays fail with ErrUnknownAttempt.
func (w *Website) CompleteAuthentication(ctx context.Context, envelope string) (*Result, error) {
	return w.site.CompleteAuthentication(ctx, envelope)
}

// Handler returns the website's HTTP surface: GET /fan/auth issues
// challenges, POST /fan/auth completes them, /live and /ready probe the
// process. Mount it on any server or serve it directly.
func (w *Website) Handler() (http.Handler, error) {
	server, err := httpserve.New(httpserve.Config{Website: w.site})
	if err != nil {
		return nil, err
	}
	return server.Handler(), nil
}

// Run performs background maintenance, expiring overdue attempts until ctx
// is cancelled. Sites that run for more than a few minutes should keep this
// running in a goroutine; short-lived programs can skip it.
func (w *Website) Run(ctx context.Context) {
	w.auth.Run(ctx)
}
