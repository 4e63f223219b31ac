// Package metrics exposes the hub's Prometheus surface: active session
// counts, Frame/Control Rail publish and drop counters, and Recorder Task
// bytes written, scraped at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its own registry so the process can run multiple
// collectors in tests without colliding on the global default registry.
type Collector struct {
	registry *prometheus.Registry

	sessionsActive   *prometheus.GaugeVec
	railPublishTotal *prometheus.CounterVec
	railDropTotal    *prometheus.CounterVec
	recorderBytes    *prometheus.CounterVec
	discoveryUp      prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{registry: reg}

	c.sessionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camhub_sessions_active",
		Help: "Current number of connected sessions, by peer kind",
	}, []string{"kind"}) // "viewer" or "camera"
	reg.MustRegister(c.sessionsActive)

	c.railPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camhub_rail_publish_total",
		Help: "Total values published onto a rail",
	}, []string{"rail"}) // "frame" or "control"
	reg.MustRegister(c.railPublishTotal)

	c.railDropTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camhub_rail_drop_total",
		Help: "Total rail publishes a subscriber was not waiting to observe",
	}, []string{"rail"})
	reg.MustRegister(c.railDropTotal)

	c.recorderBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "camhub_recorder_bytes_written_total",
		Help: "Total bytes written to recording files, by camera_id",
	}, []string{"camera_id"})
	reg.MustRegister(c.recorderBytes)

	c.discoveryUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camhub_discovery_up",
		Help: "Whether the WS-Discovery (ONVIF) scanner is currently running",
	})
	reg.MustRegister(c.discoveryUp)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SessionConnected/SessionDisconnected track the Session Supervisor's
// lifecycle; kind is "viewer" or "camera".
func (c *Collector) SessionConnected(kind string) {
	c.sessionsActive.WithLabelValues(kind).Inc()
}

func (c *Collector) SessionDisconnected(kind string) {
	c.sessionsActive.WithLabelValues(kind).Dec()
}

// RailPublish/RailSubscriberSkipped record a rail's Publish calls and the
// publishes a given subscriber missed because it wasn't waiting in Await.
func (c *Collector) RailPublish(rail string) {
	c.railPublishTotal.WithLabelValues(rail).Inc()
}

func (c *Collector) RailSubscriberSkipped(rail string) {
	c.railDropTotal.WithLabelValues(rail).Inc()
}

func (c *Collector) RecorderBytesWritten(cameraID string, n int) {
	c.recorderBytes.WithLabelValues(cameraID).Add(float64(n))
}

func (c *Collector) SetDiscoveryUp(up bool) {
	if up {
		c.discoveryUp.Set(1)
		return
	}
	c.discoveryUp.Set(0)
}
