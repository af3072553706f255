package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/snarg/vcon-wtf/internal/transcribe"
)

// EngineState provides the collector access to the inference engine.
type EngineState interface {
	Stats() transcribe.EngineStats
	IsLoaded() bool
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	engine EngineState

	queueDepth  *prometheus.Desc
	inFlight    *prometheus.Desc
	modelLoaded *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// engine may be nil (metrics will report 0).
func NewCollector(engine EngineState) *Collector {
	return &Collector{
		engine: engine,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "inference", "queue_depth"),
			"Transcription jobs waiting for a worker.",
			nil, nil,
		),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "inference", "in_flight"),
			"Transcription jobs currently running upstream.",
			nil, nil,
		),
		modelLoaded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "model_loaded"),
			"1 when a model has completed a transcription.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.inFlight
	ch <- c.modelLoaded
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var stats transcribe.EngineStats
	var loaded float64
	if c.engine != nil {
		stats = c.engine.Stats()
		if c.engine.IsLoaded() {
			loaded = 1
		}
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(stats.Pending))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(stats.InFlight))
	ch <- prometheus.MustNewConstMetric(c.modelLoaded, prometheus.GaugeValue, loaded)
}
