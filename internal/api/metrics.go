package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	imageRenders      *prometheus.CounterVec
	renderFailures    *prometheus.CounterVec
	bytesServed       *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelstyle_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelstyle_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelstyle_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		imageRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelstyle_image_renders_total",
			Help: "Images served, by flow and output content type.",
		}, []string{"flow", "content_type"}),
		renderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelstyle_image_render_failures_total",
			Help: "Failed image requests, by flow and failure reason.",
		}, []string{"flow", "reason"}),
		bytesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelstyle_image_bytes_served_total",
			Help: "Image bytes written to clients.",
		}, []string{"flow"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.imageRenders,
		m.renderFailures,
		m.bytesServed,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		// Deferred so aborted streams, which panic out of the handler, still count.
		defer func() {
			route := routeLabel(r.URL.Path)
			status := statusLabel(recorder.status)
			m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
			m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		}()
		next.ServeHTTP(recorder, r)
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel keeps label cardinality bounded: style names and content paths
// never become label values.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/images/"):
		return "/images/{style}/{path}"
	case strings.HasPrefix(path, "/render/"):
		return "/render/{style}/{path}"
	case strings.HasPrefix(path, "/metadata/"):
		return "/metadata/{path}"
	case strings.HasPrefix(path, "/healthz"):
		return "/healthz"
	case strings.HasPrefix(path, "/readyz"):
		return "/readyz"
	case strings.HasPrefix(path, "/metrics"):
		return "/metrics"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
