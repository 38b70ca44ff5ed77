// Package metrics exposes Prometheus counters for the auth flows.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	otpSends      *prometheus.CounterVec
	otpVerifies   *prometheus.CounterVec
	authEvents    *prometheus.CounterVec
	tasksDropped  prometheus.Counter
	tasksFailed   prometheus.Counter
	tokensSwept   prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
	gatherer      prometheus.Gatherer
}

// New registers the collectors on reg. Passing a fresh prometheus.Registry
// keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		otpSends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linksphere_otp_sends_total",
			Help: "OTP initiation outcomes",
		}, []string{"status"}),
		otpVerifies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linksphere_otp_verifications_total",
			Help: "OTP verification outcomes",
		}, []string{"status"}),
		authEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linksphere_auth_events_total",
			Help: "Account lifecycle events by operation and outcome",
		}, []string{"operation", "status"}),
		tasksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "linksphere_background_tasks_dropped_total",
			Help: "Background tasks dropped because the queue was full",
		}),
		tasksFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "linksphere_background_tasks_failed_total",
			Help: "Background tasks that returned an error",
		}),
		tokensSwept: f.NewCounter(prometheus.CounterOpts{
			Name: "linksphere_refresh_tokens_swept_total",
			Help: "Expired refresh tokens removed by the sweeper",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linksphere_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linksphere_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"method", "route"}),
		gatherer: reg,
	}
}

func (m *Metrics) OTPSend(status string) {
	if m == nil {
		return
	}
	m.otpSends.WithLabelValues(status).Inc()
}

func (m *Metrics) OTPVerify(ok bool) {
	if m == nil {
		return
	}
	m.otpVerifies.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) AuthEvent(operation string, err error) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(operation, outcome(err == nil)).Inc()
}

func (m *Metrics) TaskDropped() {
	if m == nil {
		return
	}
	m.tasksDropped.Inc()
}

func (m *Metrics) TaskFailed() {
	if m == nil {
		return
	}
	m.tasksFailed.Inc()
}

func (m *Metrics) TokensSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensSwept.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
