package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gitshopapp/paypal-webhooks/internal/db"
	"github.com/gitshopapp/paypal-webhooks/internal/dedupe"
	"github.com/gitshopapp/paypal-webhooks/internal/logging"
	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	defaultDedupeTTL    = 24 * time.Hour
	// DefaultReceiver names the receiver served at /webhooks/paypal.
	DefaultReceiver = "default"
)

// Verifier checks PayPal transmission signatures.
type Verifier interface {
	Verify(ctx context.Context, params paypal.WebhookParams, certURL string, body []byte, webhookID string) (bool, error)
}

// DeliveryRecorder persists the verdict of each delivery.
type DeliveryRecorder interface {
	Record(ctx context.Context, delivery *db.Delivery) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Metrics receives request and event counters.
type Metrics interface {
	HTTPRequest(route, method string, status int, elapsed time.Duration)
	EventReceived(eventType string)
	DuplicateSkipped()
}

// Handlers provides the HTTP handlers of the webhook receiver.
type Handlers struct {
	verifier   Verifier
	receivers  map[string]string
	dedupe     dedupe.Store
	dedupeTTL  time.Duration
	deliveries DeliveryRecorder
	sink       EventSink
	db         Pinger
	metrics    Metrics
	logger     *slog.Logger
}

type Dependencies struct {
	Verifier Verifier
	// Receivers maps a receiver name to the webhook id it verifies against.
	Receivers  map[string]string
	Dedupe     dedupe.Store
	DedupeTTL  time.Duration
	Deliveries DeliveryRecorder
	Sink       EventSink
	DB         Pinger
	Metrics    Metrics
	Logger     *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := logging.Ensure(deps.Logger)

	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if len(deps.Receivers) == 0 {
		return nil, fmt.Errorf("handlers dependencies: at least one receiver is required")
	}
	if deps.Dedupe == nil {
		return nil, fmt.Errorf("handlers dependencies: dedupe store is required")
	}

	receivers := make(map[string]string, len(deps.Receivers))
	for name, webhookID := range deps.Receivers {
		if webhookID == "" {
			return nil, fmt.Errorf("handlers dependencies: receiver %q has no webhook id", name)
		}
		receivers[name] = webhookID
	}

	ttl := deps.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}

	sink := deps.Sink
	if sink == nil {
		sink = NewLoggingSink(logger.With("component", "event_sink"))
	}

	return &Handlers{
		verifier:   deps.Verifier,
		receivers:  receivers,
		dedupe:     deps.Dedupe,
		dedupeTTL:  ttl,
		deliveries: deps.Deliveries,
		sink:       sink,
		db:         deps.DB,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			logger.Error("database health check failed", "error", err)
			http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"receivers": len(h.receivers),
	}); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

// HasReceiver reports whether name is a configured receiver.
func (h *Handlers) HasReceiver(name string) bool {
	_, ok := h.receivers[name]
	return ok
}
