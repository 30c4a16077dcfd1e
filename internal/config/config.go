// Package config loads and validates the engine's runtime configuration
// from YAML files and FAN_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/sufield/fan/internal/core/domain"
	coreerrors "github.com/sufield/fan/internal/core/errors"
)

// EnvPrefix is the prefix of environment variable overrides. A key like
// server.address is overridden by FAN_SERVER_ADDRESS.
const EnvPrefix = "FAN"

// Config is the engine's complete runtime configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Website  WebsiteConfig  `mapstructure:"website"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener shared by both roles.
type ServerConfig struct {
	Address       string        `mapstructure:"address" validate:"required"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" validate:"gte=0"`
}

// AgentConfig configures the document-serving agent role.
type AgentConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	DocumentRoot string   `mapstructure:"document_root" validate:"required_if=Enabled true,omitempty,dir_exists"`
	ContentType  string   `mapstructure:"content_type" validate:"omitempty,oneof=application/json+did application/jsonld+did application/cbor+did"`
	SigningKeys  []string `mapstructure:"signing_keys" validate:"required_if=Enabled true,omitempty,dive,file_exists"`
}

// WebsiteConfig configures the authenticating web-site role.
type WebsiteConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	AttemptTTL        time.Duration `mapstructure:"attempt_ttl" validate:"gte=0"`
	NonceSize         int           `mapstructure:"nonce_size" validate:"omitempty,gte=16"`
	TerminalRetention time.Duration `mapstructure:"terminal_retention" validate:"gte=0"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
	Session           SessionConfig `mapstructure:"session"`
}

// SessionConfig configures session credentials minted after successful
// authentications.
type SessionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Issuer   string        `mapstructure:"issuer" validate:"required_if=Enabled true"`
	Audience string        `mapstructure:"audience"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
	KeyFile  string        `mapstructure:"key_file" validate:"required_if=Enabled true,omitempty,file_exists"`
	KeyID    string        `mapstructure:"key_id"`
}

// ResolverConfig configures document resolution and caching.
type ResolverConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	RefreshPolicy   string        `mapstructure:"refresh_policy" validate:"oneof=always modified"`
	FallbackToCache bool          `mapstructure:"fallback_to_cache"`
	AllowSovereign  bool          `mapstructure:"allow_sovereign"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" validate:"gte=0"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" validate:"gte=0"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Load reads configuration from the given file, falling back to a fan.yaml
// found in the working directory or /etc/fan when path is empty. Every key
// can be overridden through the environment; defaults cover the rest. The
// returned configuration is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	} else {
		v.SetConfigName("fan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fan")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	// Decoding pure defaults cannot fail.
	_ = v.Unmarshal(cfg, hook)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.enable_metrics", false)
	v.SetDefault("server.shutdown_grace", "10s")

	v.SetDefault("agent.enabled", false)
	v.SetDefault("agent.document_root", "")
	v.SetDefault("agent.content_type", domain.MIMEJSONDID)
	v.SetDefault("agent.signing_keys", []string{})

	v.SetDefault("website.enabled", false)
	v.SetDefault("website.attempt_ttl", "2m")
	v.SetDefault("website.nonce_size", 32)
	v.SetDefault("website.terminal_retention", "5m")
	v.SetDefault("website.sweep_interval", "30s")
	v.SetDefault("website.session.enabled", false)
	v.SetDefault("website.session.issuer", "")
	v.SetDefault("website.session.audience", "")
	v.SetDefault("website.session.ttl", "1h")
	v.SetDefault("website.session.key_file", "")
	v.SetDefault("website.session.key_id", "")

	v.SetDefault("resolver.cache_ttl", "10m")
	v.SetDefault("resolver.refresh_policy", "always")
	v.SetDefault("resolver.fallback_to_cache", false)
	v.SetDefault("resolver.allow_sovereign", false)
	v.SetDefault("resolver.fetch_timeout", "10s")
	v.SetDefault("resolver.max_body_bytes", 1<<20)
	v.SetDefault("resolver.user_agent", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks the configuration against the engine's validation rules.
func (c *Config) Validate() error {
	err := domain.ValidateStruct(c)
	if err == nil {
		return nil
	}

	fieldErrors := domain.ConvertValidationErrors(err)
	if len(fieldErrors) == 0 {
		return fmt.Errorf("config validation failed: %w", err)
	}

	errs := make([]error, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		errs = append(errs, &coreerrors.ValidationError{
			Field:   fe.Field,
			Value:   fe.Value,
			Message: fe.Message,
		})
	}
	return coreerrors.NewConfigValidationError(errs...)
}

// HasRole reports whether at least one of the serving roles is enabled.
func (c *Config) HasRole() bool {
	return c.Agent.Enabled || c.Website.Enabled
}
