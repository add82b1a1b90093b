package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "influai_http_requests_total",
		Help: "Total HTTP requests processed by the control plane",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "influai_http_request_duration_seconds",
		Help:    "HTTP request duration, including the lifetime of streamed responses",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"method", "path"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "influai_automation_runs_total",
		Help: "Automation runs grouped by final outcome",
	}, []string{"outcome"})

	runsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "influai_automation_runs_in_flight",
		Help: "Automation runs currently executing in this process",
	})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "influai_automation_step_duration_seconds",
		Help:    "Duration of each automation step, excluding pacing delays",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"step", "status"})

	searchFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "influai_search_fallback_total",
		Help: "Searches that were answered with the built-in fallback list, by reason",
	}, []string{"reason"})

	negotiationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "influai_negotiation_requests_total",
		Help: "Negotiation model calls grouped by operation and status",
	}, []string{"operation", "status"})

	signedURLTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "influai_signed_url_requests_total",
		Help: "Voice-agent signed URL requests grouped by status",
	}, []string{"status"})
)

func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RunStarted increments the in-flight gauge and returns the func that records the outcome.
func RunStarted() func(outcome string) {
	runsInFlight.Inc()
	return func(outcome string) {
		runsInFlight.Dec()
		if outcome == "" {
			outcome = "unknown"
		}
		runsTotal.WithLabelValues(outcome).Inc()
	}
}

func ObserveStep(step string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	stepDuration.WithLabelValues(step, status).Observe(duration.Seconds())
}

func SearchFallback(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	searchFallbackTotal.WithLabelValues(reason).Inc()
}

func ObserveNegotiation(operation string, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	negotiationTotal.WithLabelValues(operation, status).Inc()
}

func ObserveSignedURL(status string) {
	signedURLTotal.WithLabelValues(status).Inc()
}
