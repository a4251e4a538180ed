package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterContextKey struct{}

// WithMeter stores a request-scoped meter in ctx.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the meter stored by WithMeter, or a fresh one.
func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// WebhookMeter counts the outcomes of a single webhook delivery.
type WebhookMeter struct {
	meter sentry.Meter
}

// NewWebhookMeter tags the request meter with the provider and receiver.
func NewWebhookMeter(ctx context.Context, provider, receiver string) *WebhookMeter {
	meter := MeterFromContext(ctx)
	meter.SetAttributes(
		attribute.String("webhook.provider", provider),
		attribute.String("webhook.receiver", receiver),
	)
	meter.Count("webhook.received", 1)
	return &WebhookMeter{meter: meter}
}

func (m *WebhookMeter) SetEventType(eventType string) {
	m.meter.SetAttributes(attribute.String("webhook.event_type", eventType))
}

func (m *WebhookMeter) Rejected(reason string) {
	m.meter.Count("webhook.rejected", 1, sentry.WithAttributes(attribute.String("reason", reason)))
}

func (m *WebhookMeter) Duplicate() {
	m.meter.Count("webhook.duplicate", 1)
}

func (m *WebhookMeter) Processed() {
	m.meter.Count("webhook.processed", 1)
}
