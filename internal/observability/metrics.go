package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk layanan akses.
type Metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	switches       *prometheus.CounterVec
	issuerLatency  *prometheus.HistogramVec
	issuerFailures *prometheus.CounterVec
}

// NewMetrics membuat registry tersendiri berisi metrik runtime Go, proses, HTTP dan sesi.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_http_requests_total",
			Help: "Jumlah permintaan HTTP berdasarkan route, method dan status.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "access_http_request_duration_seconds",
			Help:    "Durasi permintaan HTTP per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "access_http_requests_in_flight",
			Help: "Permintaan HTTP yang sedang diproses.",
		}),
		switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_session_switch_total",
			Help: "Hasil pergantian profil default per outcome.",
		}, []string{"outcome"}),
		issuerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "access_token_issuer_duration_seconds",
			Help:    "Latensi pemanggilan token issuer.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
		issuerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_token_issuer_failures_total",
			Help: "Jumlah kegagalan token issuer per operasi.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.inFlight,
		m.switches, m.issuerLatency, m.issuerFailures,
	)
	return m
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware mencatat metrik untuk setiap permintaan HTTP. Route diambil dari
// pola chi setelah handler selesai sehingga parameter path tidak menambah kardinalitas.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SwitchOutcome menghitung hasil set-default.
func (m *Metrics) SwitchOutcome(outcome string) {
	if m != nil {
		m.switches.WithLabelValues(outcome).Inc()
	}
}

// IssuerCall mencatat latensi dan kegagalan token issuer.
func (m *Metrics) IssuerCall(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.issuerLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.issuerFailures.WithLabelValues(op).Inc()
	}
}

// Registerer mengekspos registry untuk metrik tambahan, misalnya metrik job di worker.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
