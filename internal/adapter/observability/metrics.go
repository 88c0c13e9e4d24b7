// Package observability provides structured logging and Prometheus metrics
// for the job-dispatch core: ingress, DLQ manager, worker runtime, and the
// resource admission controller.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// JobsEnqueuedTotal counts jobs accepted at ingress, per vendor.
	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs published to a vendor queue",
		},
		[]string{"vendor"},
	)
	// JobsCompletedTotal counts jobs a handler reported successful, per vendor.
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs a handler completed successfully",
		},
		[]string{"vendor"},
	)
	// JobsFailedTotal counts jobs a handler reported failed, per vendor and error type.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs that failed handler execution",
		},
		[]string{"vendor", "error_type"},
	)
	// JobsRequeuedTotal counts jobs the retry manager republished, per vendor.
	JobsRequeuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_requeued_total",
			Help: "Total number of jobs republished to their vendor queue after a retriable failure",
		},
		[]string{"vendor"},
	)
	// JobsDLQTotal counts jobs sent to the dead-letter queue, per vendor.
	JobsDLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_dlq_total",
			Help: "Total number of jobs moved to the dead-letter queue",
		},
		[]string{"vendor"},
	)

	// AdmissionActiveSlots is a gauge of resource-admission slots currently held.
	AdmissionActiveSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "admission_active_slots",
			Help: "Number of resource admission slots currently held",
		},
	)
	// AdmissionRejectedTotal counts resource admission rejections, by reason.
	AdmissionRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_rejected_total",
			Help: "Total number of resource admission rejections",
		},
		[]string{"reason"},
	)

	// DLQSize is a gauge of the current dead-letter store population.
	DLQSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dlq_size",
			Help: "Number of jobs currently held in the dead-letter store",
		},
		[]string{"vendor"},
	)

	// BrokerHealthy is a gauge of the cached broker liveness state (1=healthy, 0=degraded).
	BrokerHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_healthy",
			Help: "Cached broker liveness state (1=healthy, 0=degraded)",
		},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobsRequeuedTotal)
	prometheus.MustRegister(JobsDLQTotal)
	prometheus.MustRegister(AdmissionActiveSlots)
	prometheus.MustRegister(AdmissionRejectedTotal)
	prometheus.MustRegister(DLQSize)
	prometheus.MustRegister(BrokerHealthy)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// RecordEnqueued increments the enqueued-jobs counter for vendor.
func RecordEnqueued(vendor string) {
	JobsEnqueuedTotal.WithLabelValues(vendor).Inc()
}

// RecordCompleted increments the completed-jobs counter for vendor.
func RecordCompleted(vendor string) {
	JobsCompletedTotal.WithLabelValues(vendor).Inc()
}

// RecordFailed increments the failed-jobs counter for vendor and error type.
func RecordFailed(vendor, errorType string) {
	JobsFailedTotal.WithLabelValues(vendor, errorType).Inc()
}

// RecordRequeued increments the requeued-jobs counter for vendor.
func RecordRequeued(vendor string) {
	JobsRequeuedTotal.WithLabelValues(vendor).Inc()
}

// RecordDLQ increments the DLQ counter for vendor.
func RecordDLQ(vendor string) {
	JobsDLQTotal.WithLabelValues(vendor).Inc()
}

// SetAdmissionActiveSlots sets the admission-active-slots gauge.
func SetAdmissionActiveSlots(n int) {
	AdmissionActiveSlots.Set(float64(n))
}

// RecordAdmissionRejected increments the admission-rejected counter by reason.
func RecordAdmissionRejected(reason string) {
	AdmissionRejectedTotal.WithLabelValues(reason).Inc()
}

// SetDLQSize sets the DLQ-size gauge for vendor.
func SetDLQSize(vendor string, n int) {
	DLQSize.WithLabelValues(vendor).Set(float64(n))
}

// SetBrokerHealthy sets the broker-healthy gauge.
func SetBrokerHealthy(healthy bool) {
	if healthy {
		BrokerHealthy.Set(1)
	} else {
		BrokerHealthy.Set(0)
	}
}
