// Package metrics exposes Prometheus instruments for detection calls and
// recorded scan results.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fakebuster/fakebuster/internal/detect"
	"github.com/fakebuster/fakebuster/internal/model"
	"github.com/fakebuster/fakebuster/internal/pipeline"
)

// Namespace prefixes every metric name.
const Namespace = "fakebuster"

// Metrics holds the registered instruments.
type Metrics struct {
	DetectionRequests *prometheus.CounterVec
	DetectionDuration *prometheus.HistogramVec
	Scans             *prometheus.CounterVec
}

// New creates and registers the instruments on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		DetectionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "detection_requests_total",
				Help:      "Detection service calls by media type and outcome",
			},
			[]string{"media", "outcome"},
		),
		DetectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "detection_duration_seconds",
				Help:      "Latency of detection service calls",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"media"},
		),
		Scans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "scans_total",
				Help:      "Recorded scan results by classification and media type",
			},
			[]string{"classification", "media"},
		),
	}
}

// ObserveDetection implements detect.Observer.
func (m *Metrics) ObserveDetection(media model.MediaType, outcome detect.Outcome, latency time.Duration) {
	m.DetectionRequests.WithLabelValues(string(media), string(outcome)).Inc()
	if outcome != detect.OutcomeSkipped {
		m.DetectionDuration.WithLabelValues(string(media)).Observe(latency.Seconds())
	}
}

// Recorder counts every successfully recorded entry before returning the
// wrapped store's result.
type Recorder struct {
	next    pipeline.Recorder
	metrics *Metrics
}

// InstrumentRecorder wraps next so that recorded scans are counted.
func InstrumentRecorder(next pipeline.Recorder, m *Metrics) *Recorder {
	return &Recorder{next: next, metrics: m}
}

// RecordScan implements pipeline.Recorder.
func (r *Recorder) RecordScan(ctx context.Context, entry model.ScanHistoryEntry) (model.Counters, error) {
	counters, err := r.next.RecordScan(ctx, entry)
	if err != nil {
		return counters, err
	}
	r.metrics.Scans.WithLabelValues(string(entry.Classification), string(entry.MediaType)).Inc()
	return counters, nil
}

var (
	_ detect.Observer   = (*Metrics)(nil)
	_ pipeline.Recorder = (*Recorder)(nil)
)
