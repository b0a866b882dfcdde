// Package metrics exposes run counters and the detection latency
// distribution through a Prometheus registry.
//
// Metrics are updated by the output drain only, never by the generator or a
// detector, so instrumentation adds no work to the spinning paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "pacedetect"

// Metrics holds all collectors of one run.
type Metrics struct {
	Changes    prometheus.Counter
	Detections prometheus.Counter
	Latency    prometheus.Histogram
	Signals    prometheus.Gauge
	Detectors  prometheus.Gauge

	registry *prometheus.Registry
}

// New registers a fresh set of collectors labelled with the strategy in a
// private registry, so several runs can coexist in one process.
func New(strategy string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"strategy": strategy}

	return &Metrics{
		Changes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "changes_total",
			Help:        "Activating toggles emitted by the generator",
			ConstLabels: labels,
		}),
		Detections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "detections_total",
			Help:        "Activations observed by detectors",
			ConstLabels: labels,
		}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "detection_latency_microseconds",
			Help:        "Time between the generator's stamp and the detector's stamp",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 16),
		}),
		Signals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "signals",
			Help:        "Number of monitored signals",
			ConstLabels: labels,
		}),
		Detectors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "detectors",
			Help:        "Number of detector goroutines",
			ConstLabels: labels,
		}),
		registry: reg,
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Snapshot is a point-in-time copy of the run metrics.
type Snapshot struct {
	Changes     uint64  `json:"changes"`
	Detections  uint64  `json:"detections"`
	LatencyMean float64 `json:"latency_mean_us"`
	LatencyP50  float64 `json:"latency_p50_us"`
	LatencyP99  float64 `json:"latency_p99_us"`
}

// Snapshot reads the collectors back.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Changes:    uint64(counterValue(m.Changes)),
		Detections: uint64(counterValue(m.Detections)),
	}

	var pb dto.Metric
	if err := m.Latency.Write(&pb); err != nil || pb.Histogram == nil {
		return s
	}
	h := pb.Histogram
	if n := h.GetSampleCount(); n > 0 {
		s.LatencyMean = h.GetSampleSum() / float64(n)
		s.LatencyP50 = quantile(h, 0.50)
		s.LatencyP99 = quantile(h, 0.99)
	}
	return s
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil || pb.Counter == nil {
		return 0
	}
	return pb.Counter.GetValue()
}

// quantile returns the upper bound of the bucket containing quantile q.
// Samples past the last bucket report that bucket's bound.
func quantile(h *dto.Histogram, q float64) float64 {
	total := h.GetSampleCount()
	want := uint64(q * float64(total))
	if want == 0 {
		want = 1
	}
	var bound float64
	for _, b := range h.GetBucket() {
		bound = b.GetUpperBound()
		if b.GetCumulativeCount() >= want {
			return bound
		}
	}
	return bound
}
