package paypal

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testRSAKey = sync.OnceValues(func() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
})

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	key, err := testRSAKey()
	if err != nil {
		t.Fatalf("failed to generate rsa key: %v", err)
	}
	return key
}

func selfSignedPEM(t *testing.T, pub, priv any) []byte {
	t.Helper()

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "messageverificationcerts.paypal.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func rsaCertificatePEM(t *testing.T) []byte {
	t.Helper()

	key := signingKey(t)
	return selfSignedPEM(t, &key.PublicKey, key)
}

func ecdsaCertificatePEM(t *testing.T) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ecdsa key: %v", err)
	}
	return selfSignedPEM(t, &key.PublicKey, key)
}

func testVerifyingKey(t *testing.T) *VerifyingKey {
	t.Helper()

	key, err := NewVerifyingKey(&signingKey(t).PublicKey)
	if err != nil {
		t.Fatalf("failed to wrap key: %v", err)
	}
	return key
}

// signedParams returns transmission headers signed by the test key.
func signedParams(t *testing.T, body []byte, webhookID string) WebhookParams {
	t.Helper()

	params := WebhookParams{
		TransmissionID:   "b2a1f0e0-0000-11f0-9ad0-000000000001",
		TransmissionTime: "2026-01-15T09:30:00Z",
		AuthAlgo:         AuthAlgoSHA256WithRSA,
	}
	digest := sha256.Sum256([]byte(CanonicalMessage(params, body, webhookID)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, signingKey(t), crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	params.TransmissionSig = base64.StdEncoding.EncodeToString(sig)
	return params
}

type stubLoader struct {
	mu    sync.Mutex
	calls map[string]int
	key   *VerifyingKey
	err   error
	delay time.Duration
}

func (s *stubLoader) Load(_ context.Context, certURL string) (*VerifyingKey, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[certURL]++
	if s.err != nil {
		return nil, s.err
	}
	return s.key, nil
}

func (s *stubLoader) callsFor(certURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[certURL]
}

func (s *stubLoader) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// refusingTransport fails the test run's expectations by counting every
// attempted network call.
type refusingTransport struct {
	calls atomic.Int32
}

func (r *refusingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	r.calls.Add(1)
	return nil, errors.New("network access not expected")
}

type countingRecorder struct {
	mu        sync.Mutex
	fetched   map[string]int
	hits      int
	misses    int
	evictions int
	size      int
	results   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{fetched: map[string]int{}, results: map[string]int{}}
}

func (c *countingRecorder) CertificateFetched(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched[result]++
}

func (c *countingRecorder) CertificateCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits++
}

func (c *countingRecorder) CertificateCacheMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
}

func (c *countingRecorder) CertificateEvicted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictions++
}

func (c *countingRecorder) CertificateCacheSize(entries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.size = entries
}

func (c *countingRecorder) VerificationCompleted(result string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result]++
}
