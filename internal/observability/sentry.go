package observability

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

type SentryConfig struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
}

// InitSentry configures the global Sentry client. It reports false without
// error when no DSN is set, leaving spans and meters as no-ops.
func InitSentry(cfg SentryConfig) (bool, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      cfg.Environment,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		EnableLogs:       true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

// FlushSentry waits up to timeout for buffered events to be sent.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
