package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/gitshopapp/paypal-webhooks/internal/config"
	"github.com/gitshopapp/paypal-webhooks/internal/db"
	"github.com/gitshopapp/paypal-webhooks/internal/dedupe"
	"github.com/gitshopapp/paypal-webhooks/internal/handlers"
	"github.com/gitshopapp/paypal-webhooks/internal/logging"
	"github.com/gitshopapp/paypal-webhooks/internal/metrics"
	"github.com/gitshopapp/paypal-webhooks/internal/observability"
	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *pgxpool.Pool
	Dedupe   dedupe.Store
	Metrics  *metrics.Metrics
	Verifier *paypal.Verifier
	Handlers *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := observability.InitSentry(observability.SentryConfig{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		TracesSampleRate: cfg.SentryTracesSampleRate,
	})
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, sentryEnabled: sentryEnabled}
	a.Logger = newLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	if err := a.init(startupCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	receivers, err := Receivers(cfg)
	if err != nil {
		return err
	}

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.Metrics = m

	verifier, err := paypal.New(paypal.Config{
		HTTPClient:     observability.NewHTTPClient(cfg.CertFetchTimeout),
		AllowedOrigins: cfg.CertificateOrigins(),
		CacheSize:      cfg.CertCacheSize,
		Logger:         logger.With("component", "paypal_verifier"),
		Recorder:       m,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize verifier: %w", err)
	}
	a.Verifier = verifier

	store, err := dedupe.NewStore(ctx, dedupe.Config{
		Provider:              cfg.DedupeProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize dedupe store: %w", err)
	}
	a.Dedupe = store

	deps := handlers.Dependencies{
		Verifier:  verifier,
		Receivers: receivers,
		Dedupe:    store,
		DedupeTTL: cfg.DedupeTTL,
		Metrics:   m,
		Logger:    logger,
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.DB = database
		if err := db.Migrate(ctx, database); err != nil {
			return err
		}
		deps.Deliveries = db.NewDeliveryStore(database)
		deps.DB = database
	}

	h, err := handlers.New(deps)
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.Handlers = h

	logger.Info("paypal webhook receiver configured",
		"receivers", len(receivers),
		"environment", cfg.PayPalEnvironment,
		"dedupe_provider", cfg.DedupeProvider,
		"audit_log", a.DB != nil,
		"sentry", a.sentryEnabled,
	)
	return nil
}

// Receivers maps receiver names to webhook ids. PAYPAL_WEBHOOK_ID becomes
// the default receiver; the webhooks file adds named ones.
func Receivers(cfg *config.Config) (map[string]string, error) {
	receivers := make(map[string]string, len(cfg.Webhooks)+1)
	if id := strings.TrimSpace(cfg.PayPalWebhookID); id != "" {
		receivers[handlers.DefaultReceiver] = id
	}
	for _, webhook := range cfg.Webhooks {
		if _, exists := receivers[webhook.Name]; exists {
			return nil, fmt.Errorf("receiver %q is declared twice", webhook.Name)
		}
		receivers[webhook.Name] = webhook.WebhookID
	}
	if len(receivers) == 0 {
		return nil, fmt.Errorf("no paypal webhook receivers configured")
	}
	return receivers, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Dedupe != nil {
		if err := a.Dedupe.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("failed to close dedupe store", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		observability.FlushSentry(2 * time.Second)
	}
}

func newLogger(cfg *config.Config, sentryEnabled bool) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if !sentryEnabled {
		return slog.New(handler)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn},
	}.NewSentryHandler(context.Background())

	return slog.New(logging.MultiHandler(handler, sentryHandler))
}
