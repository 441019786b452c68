package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	quotesCreated    prometheus.Counter
	numberConflicts  prometheus.Counter
	quoteDeliveries  *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	pdfRenderSeconds *prometheus.HistogramVec
}

// NewMetrics initialises the registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solkant_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solkant_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	quotesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solkant_quotes_created_total",
		Help: "Quotes persisted with a fresh number.",
	})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solkant_quote_number_conflicts_total",
		Help: "Quote number collisions that triggered a retry or a failure.",
	})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solkant_quote_deliveries_total",
		Help: "Quote emails processed by the worker, by result.",
	}, []string{"result"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solkant_stripe_webhooks_total",
		Help: "Stripe webhook events by type and result.",
	}, []string{"type", "result"})
	pdfRender := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solkant_pdf_render_duration_seconds",
		Help:    "PDF rendering duration per engine.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"engine"})
	registry.MustRegister(
		requests, duration, quotesCreated, conflicts, deliveries, webhooks, pdfRender,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		quotesCreated:    quotesCreated,
		numberConflicts:  conflicts,
		quoteDeliveries:  deliveries,
		webhookEvents:    webhooks,
		pdfRenderSeconds: pdfRender,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// QuoteCreated counts a persisted quote.
func (m *Metrics) QuoteCreated() {
	if m == nil {
		return
	}
	m.quotesCreated.Inc()
}

// QuoteNumberConflict counts a collision on (business_id, quote_number).
func (m *Metrics) QuoteNumberConflict() {
	if m == nil {
		return
	}
	m.numberConflicts.Inc()
}

// QuoteDelivery counts a delivery attempt outcome ("sent", "failed", "skipped").
func (m *Metrics) QuoteDelivery(result string) {
	if m == nil {
		return
	}
	m.quoteDeliveries.WithLabelValues(result).Inc()
}

// WebhookEvent counts a processed Stripe event.
func (m *Metrics) WebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

// ObservePDFRender records how long an engine took to produce a PDF.
func (m *Metrics) ObservePDFRender(engine string, d time.Duration) {
	if m == nil {
		return
	}
	m.pdfRenderSeconds.WithLabelValues(engine).Observe(d.Seconds())
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
