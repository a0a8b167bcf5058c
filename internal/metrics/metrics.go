// Package metrics exposes read statistics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sweeney/am2120-sensor/internal/logic"
)

// Metrics holds the collectors for one sensor daemon. Each instance has its
// own registry so tests can create as many as they like.
type Metrics struct {
	registry     *prometheus.Registry
	reads        *prometheus.CounterVec
	readDuration prometheus.Histogram
	humidity     prometheus.Gauge
	temperature  prometheus.Gauge
	uploads      *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "am2120_reads_total",
			Help: "Sensor read attempts by outcome.",
		}, []string{"outcome"}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "am2120_read_duration_seconds",
			Help:    "Wall time of one full read sequence.",
			Buckets: []float64{0.002, 0.003, 0.004, 0.005, 0.0075, 0.01, 0.02, 0.05},
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "am2120_humidity_percent",
			Help: "Last decoded relative humidity.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "am2120_temperature_celsius",
			Help: "Last decoded temperature.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "am2120_uploads_total",
			Help: "Reading deliveries by sink and result.",
		}, []string{"sink", "result"}),
	}

	m.registry.MustRegister(m.reads, m.readDuration, m.humidity, m.temperature, m.uploads)

	for _, o := range logic.Outcomes {
		m.reads.WithLabelValues(string(o))
	}

	return m
}

// ObserveRead records one read attempt.
func (m *Metrics) ObserveRead(e logic.Event, took time.Duration) {
	m.reads.WithLabelValues(string(e.Outcome)).Inc()
	m.readDuration.Observe(took.Seconds())
	if e.Outcome == logic.OutcomeOK {
		m.humidity.Set(e.Reading.HumidityPercent())
		m.temperature.Set(e.Reading.TemperatureCelsius())
	}
}

// ObserveUpload records a delivery to sink.
func (m *Metrics) ObserveUpload(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.uploads.WithLabelValues(sink, result).Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
