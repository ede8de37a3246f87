// Package metrics exposes Prometheus metrics for the relay.
//
// Metrics:
//   - gemrelay_relay_streams_total: completed client streams by model and outcome
//   - gemrelay_relay_frames_total: downstream frames written by kind
//   - gemrelay_relay_upstream_responses_total: upstream response status codes
//   - gemrelay_relay_stream_duration_seconds: stream duration histogram by model
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "gemrelay"
	subsystem = "relay"
)

// streamDurationBuckets are tuned for LLM streams (100ms - 5m).
var streamDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// Collector owns a private registry and the relay's metric vectors.
type Collector struct {
	registry *prometheus.Registry

	streamsTotal     *prometheus.CounterVec
	framesTotal      *prometheus.CounterVec
	upstreamStatuses *prometheus.CounterVec
	streamDuration   *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics. If registry is
// nil a fresh one is created so collectors never collide in tests.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "streams_total",
				Help:      "Total number of client streams relayed",
			},
			[]string{"model", "outcome"},
		),
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "frames_total",
				Help:      "Total number of SSE frames written to clients",
			},
			[]string{"kind"},
		),
		upstreamStatuses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "upstream_responses_total",
				Help:      "Total number of upstream responses by HTTP status code",
			},
			[]string{"code"},
		),
		streamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stream_duration_seconds",
				Help:      "Duration of client streams in seconds",
				Buckets:   streamDurationBuckets,
			},
			[]string{"model"},
		),
	}

	registry.MustRegister(
		c.streamsTotal,
		c.framesTotal,
		c.upstreamStatuses,
		c.streamDuration,
	)

	return c
}

// RecordStream records a completed stream.
func (c *Collector) RecordStream(model, outcome string, duration time.Duration) {
	c.streamsTotal.WithLabelValues(model, outcome).Inc()
	c.streamDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordFrames adds n frames of the given kind.
func (c *Collector) RecordFrames(kind string, n int) {
	if n <= 0 {
		return
	}
	c.framesTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordUpstreamStatus counts one upstream response with the given status.
func (c *Collector) RecordUpstreamStatus(code int) {
	c.upstreamStatuses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an http.Handler serving the registry in the Prometheus
// exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
