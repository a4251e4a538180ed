package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

type Config struct {
	PayPalWebhookID    string        `env:"PAYPAL_WEBHOOK_ID"`
	PayPalWebhooksFile string        `env:"PAYPAL_WEBHOOKS_FILE"`
	PayPalEnvironment  string        `env:"PAYPAL_ENVIRONMENT" envDefault:"any" validate:"omitempty,oneof=live sandbox any"`
	CertCacheSize      int           `env:"PAYPAL_CERT_CACHE_SIZE" envDefault:"10" validate:"min=1,max=1000"`
	CertFetchTimeout   time.Duration `env:"PAYPAL_CERT_FETCH_TIMEOUT" envDefault:"10s"`

	DedupeProvider        string        `env:"DEDUPE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	DedupeTTL             time.Duration `env:"DEDUPE_TTL" envDefault:"24h"`
	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=DedupeProvider redis"`

	DatabaseURL string `env:"DATABASE_URL"`

	SentryDSN              string  `env:"SENTRY_DSN" validate:"omitempty,url"`
	SentryEnvironment      string  `env:"SENTRY_ENVIRONMENT"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0" validate:"min=0,max=1"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`

	// Webhooks holds the receivers declared in PayPalWebhooksFile.
	Webhooks []Webhook `env:"-"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if path := strings.TrimSpace(cfg.PayPalWebhooksFile); path != "" {
		webhooks, err := LoadWebhooks(path)
		if err != nil {
			return nil, err
		}
		cfg.Webhooks = webhooks
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if strings.TrimSpace(c.PayPalWebhookID) == "" && strings.TrimSpace(c.PayPalWebhooksFile) == "" {
		return fmt.Errorf("PAYPAL_WEBHOOK_ID or PAYPAL_WEBHOOKS_FILE must be set")
	}

	if c.DedupeTTL <= 0 {
		return fmt.Errorf("DEDUPE_TTL must be positive")
	}
	if c.CertFetchTimeout < 0 {
		return fmt.Errorf("PAYPAL_CERT_FETCH_TIMEOUT must not be negative")
	}

	if c.DedupeProvider == "redis" {
		parsed, err := url.Parse(c.RedisConnectionString)
		if err != nil || (parsed.Scheme != "redis" && parsed.Scheme != "rediss") {
			return fmt.Errorf("REDIS_CONNECTION_STRING must be a redis:// or rediss:// URL")
		}
	}

	return nil
}

// CertificateOrigins returns the certificate origins trusted for the
// configured PayPal environment.
func (c *Config) CertificateOrigins() []string {
	switch c.PayPalEnvironment {
	case "live":
		return []string{paypal.LiveCertificateOrigin}
	case "sandbox":
		return []string{paypal.SandboxCertificateOrigin}
	default:
		return paypal.DefaultCertificateOrigins()
	}
}
