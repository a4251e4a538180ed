package handlers

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/paypal-webhooks/internal/observability"
	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

// MetricsContext adds a request-scoped, pre-attributed meter to the context.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		attrs := []attribute.Builder{
			attribute.String("http.request_id", requestIDFromRequest(r)),
			attribute.String("http.method", r.Method),
			attribute.String("network.client.ip", clientIP(r)),
		}
		if route := routeLabel(r); route != "" {
			attrs = append(attrs, attribute.String("http.route", route))
		}
		if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
			attrs = append(attrs, attribute.String("http.user_agent", userAgent))
		}
		if r.ContentLength >= 0 {
			attrs = append(attrs, attribute.Int64("http.request_content_length", r.ContentLength))
		}
		if algo := strings.TrimSpace(r.Header.Get(paypal.HeaderAuthAlgo)); algo != "" {
			attrs = append(attrs, attribute.String("paypal.auth_algo", algo))
		}
		if transmissionID := strings.TrimSpace(r.Header.Get(paypal.HeaderTransmissionID)); transmissionID != "" {
			attrs = append(attrs, attribute.String("paypal.transmission_id", transmissionID))
		}

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(attrs...)

		ctx = observability.WithMeter(ctx, meter)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
