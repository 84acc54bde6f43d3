// Package metrics records batch assessment counters in a private Prometheus
// registry and writes them out in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/richinex/turbineopt/optimize"
)

// Batch holds the metrics of one process. A nil *Batch records nothing.
type Batch struct {
	registry    *prometheus.Registry
	assessments *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	duration    prometheus.Histogram
	lastRun     prometheus.Gauge
	results     prometheus.Counter
}

// NewBatch creates and registers the batch metrics.
func NewBatch() *Batch {
	b := &Batch{
		registry: prometheus.NewRegistry(),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbineopt_assessments_total",
			Help: "Turbine assessments by outcome status.",
		}, []string{"status"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbineopt_candidates_skipped_total",
			Help: "Candidate RPM setpoints that produced no score, by reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "turbineopt_assessment_duration_seconds",
			Help:    "Time to sweep and score one turbine.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "turbineopt_last_run_timestamp_seconds",
			Help: "Unix time at which the last batch run finished.",
		}),
		results: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turbineopt_results_persisted_total",
			Help: "Optimization results handed to result sinks.",
		}),
	}

	b.registry.MustRegister(
		b.assessments,
		b.skipped,
		b.duration,
		b.lastRun,
		b.results,
	)
	return b
}

// ObserveAssessment implements optimize.Recorder.
func (b *Batch) ObserveAssessment(a optimize.Assessment, elapsed time.Duration) {
	if b == nil {
		return
	}
	b.assessments.WithLabelValues(string(a.Status)).Inc()
	for _, s := range a.Evaluation.Skipped {
		b.skipped.WithLabelValues(string(s.Reason)).Inc()
	}
	b.duration.Observe(elapsed.Seconds())
}

// RunFinished records the completion of a batch and the number of results
// persisted.
func (b *Batch) RunFinished(at time.Time, persisted int) {
	if b == nil {
		return
	}
	b.lastRun.Set(float64(at.Unix()))
	b.results.Add(float64(persisted))
}

// WriteTextfile writes every metric to path atomically.
func (b *Batch) WriteTextfile(path string) error {
	if b == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, b.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

var _ optimize.Recorder = (*Batch)(nil)
