// Package metrics exposes Prometheus collectors for webhook verification.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements paypal.Recorder and the HTTP request counters.
type Metrics struct {
	registry *prometheus.Registry

	// Signature verification
	verificationsTotal   *prometheus.CounterVec
	verificationDuration prometheus.Histogram

	// Certificate cache
	certCacheHits      prometheus.Counter
	certCacheMisses    prometheus.Counter
	certCacheEvictions prometheus.Counter
	certCacheSize      prometheus.Gauge
	certFetchesTotal   *prometheus.CounterVec

	// Deliveries
	eventsTotal        *prometheus.CounterVec
	duplicatesTotal    prometheus.Counter
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
}

// New registers every collector on registry. A nil registry gets a fresh
// one with the Go and process collectors.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: registry,

		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paypal_webhook_verifications_total",
				Help: "Total number of webhook signature verifications by result",
			},
			[]string{"result"},
		),
		verificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paypal_webhook_verification_duration_seconds",
				Help:    "Duration of webhook signature verifications, including certificate loads",
				Buckets: prometheus.DefBuckets,
			},
		),

		certCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paypal_cert_cache_hits_total",
				Help: "Total number of certificate cache hits",
			},
		),
		certCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paypal_cert_cache_misses_total",
				Help: "Total number of certificate cache misses",
			},
		),
		certCacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paypal_cert_cache_evictions_total",
				Help: "Total number of certificates evicted from the cache",
			},
		),
		certCacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "paypal_cert_cache_size",
				Help: "Current number of cached certificates",
			},
		),
		certFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paypal_cert_fetches_total",
				Help: "Total number of certificate loads by result",
			},
			[]string{"result"},
		),

		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paypal_webhook_events_total",
				Help: "Total number of verified webhook events by event type",
			},
			[]string{"event_type"},
		),
		duplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paypal_webhook_duplicates_total",
				Help: "Total number of deliveries skipped as already processed",
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of inbound HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of inbound HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	for _, collector := range []prometheus.Collector{
		m.verificationsTotal,
		m.verificationDuration,
		m.certCacheHits,
		m.certCacheMisses,
		m.certCacheEvictions,
		m.certCacheSize,
		m.certFetchesTotal,
		m.eventsTotal,
		m.duplicatesTotal,
		m.httpRequestsTotal,
		m.httpRequestSeconds,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:          m.registry,
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) VerificationCompleted(result string, elapsed time.Duration) {
	m.verificationsTotal.WithLabelValues(result).Inc()
	m.verificationDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) CertificateFetched(result string) {
	m.certFetchesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CertificateCacheHit() {
	m.certCacheHits.Inc()
}

func (m *Metrics) CertificateCacheMiss() {
	m.certCacheMisses.Inc()
}

func (m *Metrics) CertificateEvicted() {
	m.certCacheEvictions.Inc()
}

func (m *Metrics) CertificateCacheSize(entries int) {
	m.certCacheSize.Set(float64(entries))
}

// EventReceived counts a verified event by type.
func (m *Metrics) EventReceived(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

// DuplicateSkipped counts a redelivery that was not processed again.
func (m *Metrics) DuplicateSkipped() {
	m.duplicatesTotal.Inc()
}

// HTTPRequest records one completed inbound request.
func (m *Metrics) HTTPRequest(route, method string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestSeconds.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
