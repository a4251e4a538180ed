package paypal

import (
	"encoding/base64"
	"errors"
	"fmt"
	"hash/crc32"
	"net/http"
	"strconv"
	"strings"
)

// AuthAlgoSHA256WithRSA is the only paypal-auth-algo value PayPal uses.
const AuthAlgoSHA256WithRSA = "SHA256withRSA"

// SimulatorWebhookID is the webhook id PayPal's webhook simulator signs
// with instead of a real subscription id.
const SimulatorWebhookID = "WEBHOOK_ID"

// Transmission headers carried by every PayPal webhook delivery.
const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
	HeaderCertURL          = "Paypal-Cert-Url"
)

// ErrMissingHeaders is returned by ParamsFromHeader when a transmission
// header is absent or blank.
var ErrMissingHeaders = errors.New("missing paypal transmission headers")

// WebhookParams are the signed transmission headers of one delivery.
// TransmissionTime is used verbatim and never parsed.
type WebhookParams struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	AuthAlgo         string
}

// ParamsFromHeader extracts the transmission parameters and certificate URL
// from a delivery's headers. Every header is required.
func ParamsFromHeader(h http.Header) (WebhookParams, string, error) {
	params := WebhookParams{
		TransmissionID:   strings.TrimSpace(h.Get(HeaderTransmissionID)),
		TransmissionTime: strings.TrimSpace(h.Get(HeaderTransmissionTime)),
		TransmissionSig:  strings.TrimSpace(h.Get(HeaderTransmissionSig)),
		AuthAlgo:         strings.TrimSpace(h.Get(HeaderAuthAlgo)),
	}
	certURL := strings.TrimSpace(h.Get(HeaderCertURL))

	var missing []string
	for _, header := range []struct{ name, value string }{
		{HeaderTransmissionID, params.TransmissionID},
		{HeaderTransmissionTime, params.TransmissionTime},
		{HeaderTransmissionSig, params.TransmissionSig},
		{HeaderAuthAlgo, params.AuthAlgo},
		{HeaderCertURL, certURL},
	} {
		if header.value == "" {
			missing = append(missing, strings.ToLower(header.name))
		}
	}
	if len(missing) > 0 {
		return WebhookParams{}, "", fmt.Errorf("%w: %s", ErrMissingHeaders, strings.Join(missing, ", "))
	}

	return params, certURL, nil
}

// CanonicalMessage builds the string PayPal signs:
// "{transmission_id}|{transmission_time}|{webhook_id}|{crc32(body)}".
// The checksum is over the raw body bytes, never a re-encoding of them.
func CanonicalMessage(params WebhookParams, body []byte, webhookID string) string {
	crc := crc32.ChecksumIEEE(body)
	return params.TransmissionID + "|" + params.TransmissionTime + "|" + webhookID + "|" + strconv.FormatUint(uint64(crc), 10)
}

// VerifySignature checks params.TransmissionSig against key. A signature that
// does not match returns false with a nil error; errors are reserved for
// input that cannot be verified at all.
func VerifySignature(params WebhookParams, body []byte, webhookID string, key *VerifyingKey) (bool, error) {
	if params.AuthAlgo != AuthAlgoSHA256WithRSA {
		return false, validationError(ErrUnsupportedAuthAlgo, params.AuthAlgo, nil)
	}
	if key == nil {
		return false, fmt.Errorf("verifying key is required")
	}

	message := CanonicalMessage(params, body, webhookID)

	signature, err := base64.StdEncoding.DecodeString(params.TransmissionSig)
	if err != nil {
		return false, validationError(ErrInvalidSignatureBase64, "", err)
	}

	if len(signature) == 0 {
		return false, validationError(ErrInvalidSignatureEncoding, "", errors.New("empty signature"))
	}

	// A signature of the wrong length or out of range for the modulus is a
	// mismatch, the same as any other corrupted signature.
	if err := key.verify([]byte(message), signature); err != nil {
		return false, nil
	}
	return true, nil
}
