package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestCount         *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	VerificationVerdicts *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	VerificationQueue    prometheus.Gauge
	OTPOutcomes          *prometheus.CounterVec
	KYCTransitions       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		VerificationVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kyc_document_verifications_total",
				Help: "Document verification runs by verdict.",
			},
			[]string{"document_type", "verdict"},
		),
		VerificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kyc_document_verification_duration_seconds",
				Help:    "Document verification duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		VerificationQueue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kyc_verification_queue_depth",
				Help: "Documents waiting for verification.",
			},
		),
		OTPOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kyc_otp_events_total",
				Help: "OTP sends and verification outcomes.",
			},
			[]string{"channel", "outcome"},
		),
		KYCTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kyc_status_transitions_total",
				Help: "KYC status transitions.",
			},
			[]string{"to"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCount, m.RequestDuration,
		m.VerificationVerdicts, m.VerificationDuration, m.VerificationQueue,
		m.OTPOutcomes, m.KYCTransitions,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Методы ниже безопасны для nil *Metrics (тесты, metrics выключены).

func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *Metrics) ObserveVerification(docType string, verified bool, d time.Duration) {
	if m == nil {
		return
	}
	verdict := "pending"
	if verified {
		verdict = "verified"
	}
	m.VerificationVerdicts.WithLabelValues(docType, verdict).Inc()
	m.VerificationDuration.Observe(d.Seconds())
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.VerificationQueue.Set(float64(n))
}

func (m *Metrics) OTP(channel, outcome string) {
	if m == nil {
		return
	}
	m.OTPOutcomes.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.KYCTransitions.WithLabelValues(to).Inc()
}
