// Package metrics exposes Prometheus instrumentation for the canvas.
//
// Everything is registered on a private registry rather than the global
// default one, so tests can build as many instances as they like.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/pixelboard/internal/model"
)

const namespace = "pixelboard"

type Metrics struct {
	registry *prometheus.Registry

	pixels       *prometheus.CounterVec
	comments     *prometheus.CounterVec
	adminActions *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	sockets      prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pixels: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pixel_updates_total",
			Help:      "Pixel update submissions by outcome.",
		}, []string{"outcome"}),
		comments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_total",
			Help:      "Comment submissions by outcome.",
		}, []string{"outcome"}),
		adminActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_actions_total",
			Help:      "Administrative messages handled, by message type.",
		}, []string{"action"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_frames_total",
			Help:      "Outbound frames dropped because a socket's queue was full.",
		}, []string{"type"}),
		sockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sockets_open",
			Help:      "Currently open WebSocket connections.",
		}),
	}
}

// Registry is exposed for tests and for registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PixelOutcome(outcome string) {
	if m == nil {
		return
	}
	m.pixels.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CommentOutcome(outcome string) {
	if m == nil {
		return
	}
	m.comments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AdminAction(action string) {
	if m == nil {
		return
	}
	m.adminActions.WithLabelValues(action).Inc()
}

func (m *Metrics) FrameDropped(msgType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(msgType).Inc()
}

func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.sockets.Inc()
}

func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.sockets.Dec()
}

// StatsSource is the read side of the stats store.
type StatsSource interface {
	All() []model.Stat
}

// RegisterStats exports every stat as a gauge labelled by key and kind.
func (m *Metrics) RegisterStats(src StatsSource) error {
	return m.registry.Register(&statsCollector{src: src})
}

type statsCollector struct {
	src StatsSource
}

var statDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "stat"),
	"Current value of a canvas stat.",
	[]string{"key", "kind"}, nil,
)

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- statDesc
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.src.All() {
		ch <- prometheus.MustNewConstMetric(statDesc, prometheus.GaugeValue, float64(st.Value), st.Key, st.Kind.String())
	}
}
