package cli

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sufield/fan/internal/adapters/logging"
	"github.com/sufield/fan/internal/adapters/primary/httpserve"
	"github.com/sufield/fan/internal/adapters/secondary/docsource"
	"github.com/sufield/fan/internal/adapters/secondary/httpfetch"
	"github.com/sufield/fan/internal/adapters/secondary/josecrypto"
	"github.com/sufield/fan/internal/adapters/secondary/localsigner"
	"github.com/sufield/fan/internal/adapters/secondary/memstore"
	"github.com/sufield/fan/internal/adapters/secondary/token"
	"github.com/sufield/fan/internal/config"
	"github.com/sufield/fan/internal/core/ports"
	"github.com/sufield/fan/internal/core/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine's HTTP server",
	Long: `Run the engine with the roles enabled in its configuration.

The agent role serves this deployment's signed identity documents. The
web-site role authenticates remote subjects through encrypted
challenge/response. Either or both roles can be enabled; at least one must
be.

Examples:
  # Serve with a configuration file
  fan serve --config fan.yaml

  # Override the listen address through the environment
  FAN_SERVER_ADDRESS=:9090 fan serve --config fan.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to configuration file")
	serveCmd.MarkFlagFilename("config", "yaml", "yml")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if !cfg.HasRole() {
		return fmt.Errorf("%w: neither the agent role nor the website role is enabled", ErrConfig)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("engine starting", "address", cfg.Server.Address,
		"agent", cfg.Agent.Enabled, "website", cfg.Website.Enabled)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.server.Run(ctx) })
	if engine.sweeper != nil {
		g.Go(func() error {
			engine.sweeper.Run(ctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	logger.Info("engine stopped")
	return nil
}

// engine bundles the running parts assembled from one configuration.
type engine struct {
	server  *httpserve.Server
	sweeper *services.ChallengeAuthenticator
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	gateway := josecrypto.New()
	metrics := services.NewPrometheusMetrics()

	var publisher *services.AgentPublisher
	if cfg.Agent.Enabled {
		var err error
		publisher, err = buildPublisher(cfg, gateway, logger)
		if err != nil {
			return nil, err
		}
	}

	var website *services.Website
	var sweeper *services.ChallengeAuthenticator
	if cfg.Website.Enabled {
		var err error
		website, sweeper, err = buildWebsite(cfg, gateway, logger, metrics)
		if err != nil {
			return nil, err
		}
	}

	server, err := httpserve.New(httpserve.Config{
		Address:       cfg.Server.Address,
		Publisher:     publisher,
		Website:       website,
		EnableMetrics: cfg.Server.EnableMetrics,
		ShutdownGrace: cfg.Server.ShutdownGrace,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return &engine{server: server, sweeper: sweeper}, nil
}

func buildPublisher(cfg *config.Config, gateway ports.CryptoGateway, logger *slog.Logger) (*services.AgentPublisher, error) {
	signer, err := localsigner.Load(gateway, cfg.Agent.SigningKeys...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	source, err := docsource.NewDir(docsource.DirConfig{
		Root:        cfg.Agent.DocumentRoot,
		ContentType: cfg.Agent.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	publisher, err := services.NewAgentPublisher(services.AgentConfig{
		Source: source,
		Signer: signer,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return publisher, nil
}

func buildWebsite(cfg *config.Config, gateway ports.CryptoGateway, logger *slog.Logger, metrics services.MetricsReporter) (*services.Website, *services.ChallengeAuthenticator, error) {
	cache, err := services.NewDocumentCache(memstore.NewDocumentStore(), cfg.Resolver.CacheTTL, logger, metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	verifier, err := services.NewTrustVerifier(gateway, logger, metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	policy, err := services.ParseRefreshPolicy(cfg.Resolver.RefreshPolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	fetcher := httpfetch.New(httpfetch.Config{
		Timeout:      cfg.Resolver.FetchTimeout,
		MaxBodyBytes: cfg.Resolver.MaxBodyBytes,
		UserAgent:    cfg.Resolver.UserAgent,
		Logger:       logger,
	})

	var sovereign ports.SovereignSource
	if cfg.Resolver.AllowSovereign {
		sovereign = memstore.NewSovereignRegistry()
	}

	resolver, err := services.NewResolver(services.ResolverConfig{
		Fetcher:         fetcher,
		Verifier:        verifier,
		Cache:           cache,
		Sovereign:       sovereign,
		RefreshPolicy:   policy,
		FallbackToCache: cfg.Resolver.FallbackToCache,
		AllowSovereign:  cfg.Resolver.AllowSovereign,
		Logger:          logger,
		Metrics:         metrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	auth, err := services.NewChallengeAuthenticator(services.AuthenticatorConfig{
		Crypto:            gateway,
		Attempts:          memstore.NewAttemptStore(),
		AttemptTTL:        cfg.Website.AttemptTTL,
		NonceSize:         cfg.Website.NonceSize,
		TerminalRetention: cfg.Website.TerminalRetention,
		SweepInterval:     cfg.Website.SweepInterval,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	sessions, err := buildSessionIssuer(cfg)
	if err != nil {
		return nil, nil, err
	}

	website, err := services.NewWebsite(services.WebsiteConfig{
		Resolver:      resolver,
		Authenticator: auth,
		Sessions:      sessions,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return website, auth, nil
}

func buildSessionIssuer(cfg *config.Config) (ports.SessionIssuer, error) {
	if !cfg.Website.Session.Enabled {
		return nil, nil
	}

	key, err := localsigner.ReadKeyFile(cfg.Website.Session.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	edKey, ok := key.Key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: session key %q is not an Ed25519 private key", ErrConfig, cfg.Website.Session.KeyFile)
	}
	keyID := cfg.Website.Session.KeyID
	if keyID == "" {
		keyID = key.KeyID
	}

	issuer, err := token.NewIssuer(token.IssuerConfig{
		Issuer:   cfg.Website.Session.Issuer,
		Audience: cfg.Website.Session.Audience,
		TTL:      cfg.Website.Session.TTL,
		Key:      edKey,
		KeyID:    keyID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return issuer, nil
}
