// Package metrics provides Prometheus metrics for the sensei backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Saga metrics
	sagaRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensei_saga_runs_total",
			Help: "Total number of orchestration saga runs",
		},
		[]string{"kind", "outcome"},
	)

	sagaDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensei_saga_duration_seconds",
			Help:    "Saga run duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	// Remote agent service metrics
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensei_remote_requests_total",
			Help: "Total number of requests sent to the agent server",
		},
		[]string{"op", "status"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensei_remote_request_duration_seconds",
			Help:    "Agent server request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	scanFiles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensei_scan_files",
			Help:    "Number of files returned by a workspace scan",
			Buckets: []float64{10, 50, 100, 250, 500, 1000},
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensei_notifications_total",
			Help: "Total number of notifications emitted",
		},
		[]string{"name"},
	)

	// Local API metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensei_http_requests_total",
			Help: "Total number of local API requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSaga records a finished saga run.
func RecordSaga(kind string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	sagaRunsTotal.WithLabelValues(kind, outcome).Inc()
	sagaDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveRemote records one agent server call. A zero status means the
// request never produced a response.
func ObserveRemote(op string, status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	remoteRequestsTotal.WithLabelValues(op, label).Inc()
	remoteRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordScan records the file count of a workspace scan.
func RecordScan(files int) {
	scanFiles.Observe(float64(files))
}

// RecordNotification counts an emitted notification.
func RecordNotification(name string) {
	notificationsTotal.WithLabelValues(name).Inc()
}

// responseWriter captures the status code for the middleware.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware counts local API requests by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/events" {
			// websocket upgrades need the raw writer
			next.ServeHTTP(w, r)
			return
		}
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
	})
}
