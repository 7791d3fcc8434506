package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the operational counters exported by a pipeline.
type Metrics struct {
	Frames           prometheus.Counter
	InvalidFrames    prometheus.Counter
	DiscardedFrames  prometheus.Counter
	ConfigRejections prometheus.Counter

	HistogramOverflow prometheus.Counter
	DroppedRecords    prometheus.Counter
	InvalidRecords    prometheus.Counter

	ReadbackWaits   prometheus.Counter
	ReadbackLatency prometheus.Histogram

	OverflowRatio prometheus.Gauge
}

// Create and register the pipeline metrics with reg. A nil registerer
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Frames: factory.NewCounter(prometheus.CounterOpts{
			Name: "cir_stats_frames_total",
			Help: "Frames whose statistics were submitted for readback.",
		}),
		InvalidFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "cir_stats_invalid_frames_total",
			Help: "Frames whose statistics were invalidated by an allocation failure.",
		}),
		DiscardedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "cir_stats_discarded_frames_total",
			Help: "Frames discarded by a new frame before their data was read back.",
		}),
		ConfigRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "cir_stats_config_rejections_total",
			Help: "Rejected configuration updates.",
		}),
		HistogramOverflow: factory.NewCounter(prometheus.CounterOpts{
			Name: "cir_stats_histogram_overflow_total",
			Help: "Valid paths whose delay exceeded the histogram range.",
		}),
		DroppedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "cir_stats_dropped_records_total",
			Help: "Raw path records dropped because the collector was full.",
		}),
		InvalidRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "cir_stats_invalid_records_total",
			Help: "Path records rejected by the record filter.",
		}),
		ReadbackWaits: factory.NewCounter(prometheus.CounterOpts{
			Name: "cir_stats_readback_waits_total",
			Help: "Host waits on the frame readback fence.",
		}),
		ReadbackLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cir_stats_readback_latency_seconds",
			Help:    "Time spent waiting for frame data and building the snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		OverflowRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cir_stats_histogram_overflow_ratio",
			Help: "Fraction of valid paths that overflowed the histogram in the last frame.",
		}),
	}
}
