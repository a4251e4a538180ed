package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()

	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m
}

func gatherValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("failed to gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !labelsMatch(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok {
			if want != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestVerificationMetrics(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.VerificationCompleted("valid", 3*time.Millisecond)
	m.VerificationCompleted("valid", 5*time.Millisecond)
	m.VerificationCompleted("invalid", time.Millisecond)

	if got := gatherValue(t, m, "paypal_webhook_verifications_total", map[string]string{"result": "valid"}); got != 2 {
		t.Fatalf("expected 2 valid verifications, got %v", got)
	}
	if got := gatherValue(t, m, "paypal_webhook_verifications_total", map[string]string{"result": "invalid"}); got != 1 {
		t.Fatalf("expected 1 invalid verification, got %v", got)
	}
	if got := gatherValue(t, m, "paypal_webhook_verification_duration_seconds", nil); got != 3 {
		t.Fatalf("expected 3 duration samples, got %v", got)
	}
}

func TestCertificateCacheMetrics(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.CertificateCacheMiss()
	m.CertificateFetched("ok")
	m.CertificateCacheSize(1)
	m.CertificateCacheHit()
	m.CertificateCacheHit()
	m.CertificateEvicted()

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{name: "paypal_cert_cache_hits_total", want: 2},
		{name: "paypal_cert_cache_misses_total", want: 1},
		{name: "paypal_cert_cache_evictions_total", want: 1},
		{name: "paypal_cert_cache_size", want: 1},
		{name: "paypal_cert_fetches_total", labels: map[string]string{"result": "ok"}, want: 1},
	}
	for _, check := range checks {
		if got := gatherValue(t, m, check.name, check.labels); got != check.want {
			t.Fatalf("%s: expected %v, got %v", check.name, check.want, got)
		}
	}
}

func TestHTTPRequestMetrics(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.HTTPRequest("webhooks.paypal", http.MethodPost, http.StatusUnauthorized, 10*time.Millisecond)

	labels := map[string]string{"route": "webhooks.paypal", "method": "POST", "status": "401"}
	if got := gatherValue(t, m, "http_requests_total", labels); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestEventMetrics(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.EventReceived("PAYMENT.CAPTURE.COMPLETED")
	m.EventReceived("")
	m.DuplicateSkipped()

	if got := gatherValue(t, m, "paypal_webhook_events_total", map[string]string{"event_type": "unknown"}); got != 1 {
		t.Fatalf("expected unknown event type to be counted, got %v", got)
	}
	if got := gatherValue(t, m, "paypal_webhook_duplicates_total", nil); got != 1 {
		t.Fatalf("expected 1 duplicate, got %v", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	m := newTestMetrics(t)
	m.VerificationCompleted("certificate_error", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `paypal_webhook_verifications_total{result="certificate_error"} 1`) {
		t.Fatalf("expected verification counter in exposition, got:\n%s", body)
	}
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	if _, err := New(registry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New(registry); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
