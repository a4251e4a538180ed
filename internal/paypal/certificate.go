package paypal

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"golang.org/x/crypto/cryptobyte"
	cryptobyteasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/gitshopapp/paypal-webhooks/internal/logging"
)

// Certificate origins PayPal serves signing certificates from. The trailing
// slash pins the host: "https://api.paypal.com.evil.test/" does not match.
const (
	LiveCertificateOrigin    = "https://api.paypal.com/"
	SandboxCertificateOrigin = "https://api.sandbox.paypal.com/"
)

const maxCertificateBytes = 1 << 20 // 1 MB

// DefaultCertificateOrigins returns the production and sandbox origins.
func DefaultCertificateOrigins() []string {
	return []string{LiveCertificateOrigin, SandboxCertificateOrigin}
}

// VerifyingKey is an RSA public key bound to PKCS1v15 padding and SHA-256,
// the only scheme PayPal signs webhook transmissions with. It is immutable.
type VerifyingKey struct {
	pub rsa.PublicKey
}

// NewVerifyingKey copies pub into a VerifyingKey.
func NewVerifyingKey(pub *rsa.PublicKey) (*VerifyingKey, error) {
	if pub == nil || pub.N == nil || pub.N.Sign() <= 0 {
		return nil, fmt.Errorf("rsa public key is required")
	}
	return &VerifyingKey{pub: rsa.PublicKey{N: new(big.Int).Set(pub.N), E: pub.E}}, nil
}

// Size returns the modulus length in bytes, which is also the length of
// every valid signature under this key.
func (k *VerifyingKey) Size() int {
	return k.pub.Size()
}

// Equal reports whether both keys hold the same public key.
func (k *VerifyingKey) Equal(other *VerifyingKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.pub.Equal(&other.pub)
}

func (k *VerifyingKey) verify(message, signature []byte) error {
	digest := sha256.Sum256(message)
	return rsa.VerifyPKCS1v15(&k.pub, crypto.SHA256, digest[:], signature)
}

// KeyLoader resolves a certificate URL into a verifying key.
type KeyLoader interface {
	Load(ctx context.Context, certURL string) (*VerifyingKey, error)
}

// CertificateLoader downloads PayPal signing certificates and extracts
// their RSA keys. It performs no caching and no retries.
type CertificateLoader struct {
	client   *http.Client
	origins  []string
	logger   *slog.Logger
	recorder Recorder
}

// NewCertificateLoader builds a loader. A nil client uses http.DefaultClient,
// empty origins fall back to DefaultCertificateOrigins and a nil recorder
// discards metrics.
func NewCertificateLoader(client *http.Client, origins []string, logger *slog.Logger, recorder Recorder) *CertificateLoader {
	if client == nil {
		client = http.DefaultClient
	}
	if len(origins) == 0 {
		origins = DefaultCertificateOrigins()
	}
	l := &CertificateLoader{
		origins:  append([]string(nil), origins...),
		logger:   logging.Ensure(logger),
		recorder: recorderOrNop(recorder),
	}

	// Redirects must stay on a trusted origin, otherwise a redirect would
	// bypass the origin check.
	guarded := *client
	previous := client.CheckRedirect
	guarded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if !l.Allowed(req.URL.String()) {
			return fmt.Errorf("redirect to untrusted origin %q", req.URL.Redacted())
		}
		if previous != nil {
			return previous(req, via)
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	l.client = &guarded

	return l
}

// Allowed reports whether certURL starts with one of the trusted origins.
func (l *CertificateLoader) Allowed(certURL string) bool {
	for _, origin := range l.origins {
		if strings.HasPrefix(certURL, origin) {
			return true
		}
	}
	return false
}

// Load fetches certURL and returns the signer's verifying key. The origin is
// checked before any network access.
func (l *CertificateLoader) Load(ctx context.Context, certURL string) (*VerifyingKey, error) {
	logger := logging.FromContext(ctx, l.logger)

	if !l.Allowed(certURL) {
		l.recorder.CertificateFetched("rejected_origin")
		logger.Error("refusing certificate from untrusted origin", "cert_url", certURL)
		return nil, certificateError(ErrInvalidCertificateURL, certURL, nil)
	}

	span := sentry.StartSpan(
		ctx,
		"paypal.certificate.load",
		sentry.WithOpName("paypal.certificate"),
		sentry.WithDescription("CertificateLoader.Load"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()
	span.SetData("paypal.cert_url", certURL)

	body, err := l.fetch(ctx, certURL)
	if err != nil {
		span.Status = sentry.SpanStatusUnavailable
		l.recorder.CertificateFetched("fetch_failed")
		logger.Error("failed to fetch paypal certificate", "cert_url", certURL, "error", err)
		return nil, certificateError(ErrFetchCertificate, certURL, err)
	}

	key, err := ParseCertificatePEM(body)
	if err != nil {
		span.Status = sentry.SpanStatusInvalidArgument
		l.recorder.CertificateFetched("parse_failed")
		logger.Error("failed to parse paypal certificate", "cert_url", certURL, "error", err)
		return nil, err
	}

	span.Status = sentry.SpanStatusOK
	l.recorder.CertificateFetched("ok")
	logger.Debug("loaded paypal certificate", "cert_url", certURL, "key_bits", key.Size()*8)
	return key, nil
}

func (l *CertificateLoader) fetch(ctx context.Context, certURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close() //nolint
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCertificateBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// ParseCertificatePEM extracts the verifying key from a PEM encoded X.509
// certificate. Only the first PEM block is considered. Indented lines are
// accepted.
func ParseCertificatePEM(data []byte) (*VerifyingKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		block, _ = pem.Decode(trimPEMIndent(data))
	}
	if block == nil {
		return nil, certificateError(ErrPEMParse, "", errors.New("no pem block found"))
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, certificateError(ErrX509Parse, "", err)
	}

	pub, err := rsaKeyFromSPKI(cert.RawSubjectPublicKeyInfo)
	if err != nil {
		return nil, certificateError(ErrRSAKeyParse, "", err)
	}

	return &VerifyingKey{pub: *pub}, nil
}

// trimPEMIndent strips leading whitespace from every line, which
// encoding/pem refuses on the BEGIN and END lines.
func trimPEMIndent(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimLeft(line, " \t")
	}
	return bytes.Join(lines, []byte("\n"))
}

// rsaKeyFromSPKI reads the subjectPublicKey bit string out of a
// SubjectPublicKeyInfo and decodes it as a PKCS#1 RSAPublicKey.
func rsaKeyFromSPKI(spki []byte) (*rsa.PublicKey, error) {
	input := cryptobyte.String(spki)
	var info cryptobyte.String
	if !input.ReadASN1(&info, cryptobyteasn1.SEQUENCE) || !input.Empty() {
		return nil, errors.New("malformed subject public key info")
	}

	var bits asn1.BitString
	if !info.SkipASN1(cryptobyteasn1.SEQUENCE) || !info.ReadASN1BitString(&bits) || !info.Empty() {
		return nil, errors.New("malformed subject public key")
	}
	if bits.BitLength%8 != 0 {
		return nil, errors.New("subject public key is not byte aligned")
	}

	return x509.ParsePKCS1PublicKey(bits.Bytes)
}
