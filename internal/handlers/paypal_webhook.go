package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/paypal-webhooks/internal/db"
	"github.com/gitshopapp/paypal-webhooks/internal/dedupe"
	"github.com/gitshopapp/paypal-webhooks/internal/observability"
	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

// PayPalWebhook verifies and dispatches a PayPal webhook delivery. The
// receiver is the {name} route variable, or DefaultReceiver without one.
func (h *Handlers) PayPalWebhook(w http.ResponseWriter, r *http.Request) {
	span := sentry.StartSpan(
		r.Context(),
		"handler.paypal_webhook",
		sentry.WithOpName("http.handler"),
		sentry.WithDescription("Handlers.PayPalWebhook"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx := span.Context()

	receiver := mux.Vars(r)["name"]
	if receiver == "" {
		receiver = DefaultReceiver
	}
	logger := h.loggerFromContext(ctx).With("receiver", receiver)

	meter := observability.NewWebhookMeter(ctx, "paypal", receiver)
	recordRejected := meter.Rejected

	webhookID, ok := h.receivers[receiver]
	if !ok {
		recordRejected("unknown_receiver")
		logger.Warn("webhook for unknown receiver")
		http.NotFound(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		recordRejected("body_unreadable")
		logger.Error("failed to read PayPal webhook body", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	params, certURL, err := paypal.ParamsFromHeader(r.Header)
	if err != nil {
		recordRejected("missing_headers")
		logger.Warn("rejected PayPal webhook", "error", err)
		h.recordDelivery(ctx, &db.Delivery{Receiver: receiver, Verdict: db.VerdictRejected, Error: err.Error()})
		http.Error(w, "Missing PayPal transmission headers", http.StatusBadRequest)
		return
	}
	logger = logger.With("transmission_id", params.TransmissionID)
	span.SetData("paypal.transmission_id", params.TransmissionID)

	valid, err := h.verifier.Verify(ctx, params, certURL, body, webhookID)
	if err != nil {
		status := verificationErrorStatus(err)
		recordRejected("verification_error")
		span.Status = sentry.SpanStatusInvalidArgument
		if status == http.StatusBadGateway {
			span.Status = sentry.SpanStatusUnavailable
		}
		logger.Error("could not verify PayPal webhook", "error", err, "status", status)
		h.recordDelivery(ctx, &db.Delivery{
			Receiver:       receiver,
			TransmissionID: params.TransmissionID,
			Verdict:        db.VerdictError,
			Error:          err.Error(),
		})
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !valid {
		recordRejected("invalid_signature")
		span.Status = sentry.SpanStatusUnauthenticated
		logger.Warn("rejected PayPal webhook with invalid signature")
		h.recordDelivery(ctx, &db.Delivery{
			Receiver:       receiver,
			TransmissionID: params.TransmissionID,
			Verdict:        db.VerdictRejected,
			Error:          "invalid signature",
		})
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := decodeEvent(body)
	if err != nil {
		recordRejected("invalid_payload")
		logger.Error("verified PayPal webhook has an invalid payload", "error", err)
		h.recordDelivery(ctx, &db.Delivery{
			Receiver:       receiver,
			TransmissionID: params.TransmissionID,
			Verdict:        db.VerdictError,
			Error:          err.Error(),
		})
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	logger = logger.With("event_id", event.ID, "event_type", event.EventType)
	meter.SetEventType(event.EventType)

	delivery := &db.Delivery{
		Receiver:       receiver,
		TransmissionID: params.TransmissionID,
		EventID:        event.ID,
		EventType:      event.EventType,
	}

	dedupeKey := dedupe.DeliveryKey(receiver, deliveryIdentity(event, params))
	claimed, err := h.dedupe.Claim(ctx, dedupeKey, h.dedupeTTL)
	if err != nil {
		recordRejected("dedupe_unavailable")
		logger.Error("failed to claim PayPal webhook", "error", err)
		delivery.Verdict = db.VerdictError
		delivery.Error = err.Error()
		h.recordDelivery(ctx, delivery)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !claimed {
		meter.Duplicate()
		if h.metrics != nil {
			h.metrics.DuplicateSkipped()
		}
		logger.Info("webhook already processed")
		delivery.Verdict = db.VerdictDuplicate
		h.recordDelivery(ctx, delivery)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.sink.Handle(ctx, receiver, event); err != nil {
		if releaseErr := h.dedupe.Release(ctx, dedupeKey); releaseErr != nil {
			logger.Error("failed to release webhook claim", "error", releaseErr)
		}
		recordRejected("processing_failed")
		span.Status = sentry.SpanStatusInternalError
		logger.Error("failed to process PayPal webhook", "error", err)
		delivery.Verdict = db.VerdictFailed
		delivery.Error = err.Error()
		h.recordDelivery(ctx, delivery)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	meter.Processed()
	if h.metrics != nil {
		h.metrics.EventReceived(event.EventType)
	}
	span.Status = sentry.SpanStatusOK
	delivery.Verdict = db.VerdictAccepted
	h.recordDelivery(ctx, delivery)
	w.WriteHeader(http.StatusOK)
}

// verificationErrorStatus maps a verification failure to a response code.
// Only certificate download failures are PayPal's side.
func verificationErrorStatus(err error) int {
	if errors.Is(err, paypal.ErrFetchCertificate) {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

// deliveryIdentity prefers the event id, which is stable across PayPal
// redeliveries, over the per-attempt transmission id.
func deliveryIdentity(event *Event, params paypal.WebhookParams) string {
	if event != nil && event.ID != "" {
		return "event:" + event.ID
	}
	return "transmission:" + params.TransmissionID
}

func (h *Handlers) recordDelivery(ctx context.Context, delivery *db.Delivery) {
	if h.deliveries == nil {
		return
	}
	if err := h.deliveries.Record(context.WithoutCancel(ctx), delivery); err != nil {
		h.loggerFromContext(ctx).Error("failed to record webhook delivery", "error", err, "verdict", delivery.Verdict)
	}
}
