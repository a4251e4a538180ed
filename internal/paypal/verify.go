// Package paypal verifies PayPal webhook transmission signatures.
//
// A delivery is authentic when its paypal-transmission-sig header is a valid
// SHA256withRSA signature, made with the key of the certificate named by
// paypal-cert-url, over
//
//	{transmission_id}|{transmission_time}|{webhook_id}|{crc32(raw body)}
//
// Verifier.Verify is the entry point. It resolves the certificate through a
// CertificateCache (fetching on a miss) and returns true, false, or a *Error
// tagged with the stage that failed.
package paypal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/gitshopapp/paypal-webhooks/internal/logging"
)

// Verification results reported to the Recorder.
const (
	ResultValid            = "valid"
	ResultInvalid          = "invalid"
	ResultCertificateError = "certificate_error"
	ResultValidationError  = "validation_error"
)

// Config assembles a Verifier with its own loader and cache.
type Config struct {
	HTTPClient     *http.Client
	AllowedOrigins []string
	CacheSize      int
	Logger         *slog.Logger
	Recorder       Recorder
}

// Verifier runs the full verification pipeline. It is safe for concurrent use.
type Verifier struct {
	keys     KeySource
	logger   *slog.Logger
	recorder Recorder
}

// New builds a Verifier backed by a fresh CertificateLoader and CertificateCache.
func New(cfg Config) (*Verifier, error) {
	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCertificateCacheSize
	}

	loader := NewCertificateLoader(cfg.HTTPClient, cfg.AllowedOrigins, cfg.Logger, cfg.Recorder)
	cache, err := NewCertificateCache(size, loader, cfg.Recorder)
	if err != nil {
		return nil, err
	}
	return NewVerifier(cache, cfg.Logger, cfg.Recorder), nil
}

// NewVerifier builds a Verifier around an existing key source.
func NewVerifier(keys KeySource, logger *slog.Logger, recorder Recorder) *Verifier {
	return &Verifier{
		keys:     keys,
		logger:   logging.Ensure(logger),
		recorder: recorderOrNop(recorder),
	}
}

// Verify reports whether a delivery was signed by PayPal for webhookID.
//
// true means authentic. false means the signature did not match and the
// delivery must be rejected. A non-nil error means authenticity could not be
// determined; use StageOf and errors.Is to tell the failures apart.
func (v *Verifier) Verify(ctx context.Context, params WebhookParams, certURL string, body []byte, webhookID string) (bool, error) {
	span := sentry.StartSpan(
		ctx,
		"paypal.webhook.verify",
		sentry.WithOpName("paypal.verify"),
		sentry.WithDescription("Verifier.Verify"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()
	span.SetData("paypal.transmission_id", params.TransmissionID)

	started := time.Now()
	logger := logging.FromContext(ctx, v.logger).With(
		"transmission_id", params.TransmissionID,
		"webhook_id", webhookID,
	)

	// Unsupported algorithms are rejected before any certificate I/O.
	if params.AuthAlgo != AuthAlgoSHA256WithRSA {
		span.Status = sentry.SpanStatusInvalidArgument
		v.recorder.VerificationCompleted(ResultValidationError, time.Since(started))
		logger.Error("unsupported paypal auth algorithm", "auth_algo", params.AuthAlgo)
		return false, validationError(ErrUnsupportedAuthAlgo, params.AuthAlgo, nil)
	}

	key, err := v.keys.GetOrLoad(ctx, certURL)
	if err != nil {
		span.Status = sentry.SpanStatusFailedPrecondition
		v.recorder.VerificationCompleted(ResultCertificateError, time.Since(started))
		logger.Error("could not resolve paypal signing key", "cert_url", certURL, "error", err)
		return false, asCertificateError(err, certURL)
	}

	valid, err := VerifySignature(params, body, webhookID, key)
	switch {
	case err != nil:
		span.Status = sentry.SpanStatusInvalidArgument
		v.recorder.VerificationCompleted(ResultValidationError, time.Since(started))
		logger.Error("malformed paypal webhook signature", "auth_algo", params.AuthAlgo, "error", err)
		return false, err
	case !valid:
		span.Status = sentry.SpanStatusUnauthenticated
		v.recorder.VerificationCompleted(ResultInvalid, time.Since(started))
		logger.Warn("paypal webhook signature verification failed", "cert_url", certURL)
		return false, nil
	default:
		span.Status = sentry.SpanStatusOK
		v.recorder.VerificationCompleted(ResultValid, time.Since(started))
		logger.Debug("paypal webhook signature verified")
		return true, nil
	}
}

// asCertificateError keeps errors from custom key sources stage-tagged.
func asCertificateError(err error, certURL string) error {
	var verr *Error
	if errors.As(err, &verr) {
		return err
	}
	return certificateError(ErrFetchCertificate, certURL, fmt.Errorf("key source: %w", err))
}
