package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests tracks handled deliveries by outcome
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Total number of webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// GateFailures tracks validation gate failures by gate name
	GateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_gate_failures_total",
			Help: "Total number of failed validation gates by gate",
		},
		[]string{"gate"},
	)

	// DeployDispatch tracks dispatch attempts by repository and status
	DeployDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_dispatch_total",
			Help: "Total number of deploy dispatches by repository and status",
		},
		[]string{"repository", "status"},
	)

	// DeployDuration tracks deployment command duration
	DeployDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deploy_duration_seconds",
			Help:    "Duration of deployment commands in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"repository", "status"},
	)

	// Revalidations tracks upstream cache revalidation calls
	Revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revalidate_total",
			Help: "Total number of cache revalidation calls by status",
		},
		[]string{"status"},
	)
)

// RecordRequest records a handled webhook delivery
func RecordRequest(outcome string) {
	WebhookRequests.WithLabelValues(outcome).Inc()
}

// RecordGateFailure records a failed validation gate
func RecordGateFailure(gate string) {
	GateFailures.WithLabelValues(gate).Inc()
}

// RecordDispatch records a deploy dispatch outcome
func RecordDispatch(repository, status string) {
	DeployDispatch.WithLabelValues(repository, status).Inc()
}

// RecordDeployDuration records how long a deployment command ran
func RecordDeployDuration(repository, status string, duration float64) {
	DeployDuration.WithLabelValues(repository, status).Observe(duration)
}

// RecordRevalidation records a revalidation call outcome
func RecordRevalidation(status string) {
	Revalidations.WithLabelValues(status).Inc()
}
