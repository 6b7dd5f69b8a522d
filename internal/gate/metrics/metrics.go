// Package metrics exposes Prometheus metrics for the liveness gate service.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gate tracks scan session and stage outcomes for the gate service.
type Gate struct {
	// Session metrics.
	ScansStarted prometheus.Counter
	ScanDuration prometheus.Histogram
	ScansFailed  *prometheus.CounterVec // labels: reason

	// Stage metrics.
	StageDuration *prometheus.HistogramVec // labels: stage
	StageFailures *prometheus.CounterVec   // labels: stage, reason
}

const namespace = "liveness_gate"

// New creates a new Gate instance with its collectors registered on the
// default registry.
func New() *Gate {
	return &Gate{
		ScansStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_started_total",
			Help:      "Total number of scan sessions started",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Time from session start to successful completion",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ScansFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_failed_total",
			Help:      "Total number of scan sessions that ended in a terminal failure",
		}, []string{"reason"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time a stage spent active before passing validation",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"stage"}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of failed stage attempts",
		}, []string{"stage", "reason"}),
	}
}

// IncScanStarted increments the count of started scan sessions.
func (g *Gate) IncScanStarted(ctx context.Context) { g.ScansStarted.Inc() }

// ObserveScanCompleted records the duration of a successful session.
func (g *Gate) ObserveScanCompleted(ctx context.Context, duration time.Duration) {
	g.ScanDuration.Observe(duration.Seconds())
}

// IncScanFailed increments terminal failures for the given reason.
func (g *Gate) IncScanFailed(ctx context.Context, reason string) {
	g.ScansFailed.WithLabelValues(reason).Inc()
}

// ObserveStageCompleted records the active duration of a passed stage.
func (g *Gate) ObserveStageCompleted(ctx context.Context, stage string, duration time.Duration) {
	g.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncStageFailure increments failed attempts for the given stage and reason.
func (g *Gate) IncStageFailure(ctx context.Context, stage string, reason string) {
	g.StageFailures.WithLabelValues(stage, reason).Inc()
}
