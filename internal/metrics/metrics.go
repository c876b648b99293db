// Package metrics exposes the sidecar's Prometheus text-format metrics
// (spec §6 "External interfaces" / SPEC_FULL §2 DOMAIN STACK): request
// counts, connection duration, TCP byte counters, the router-capacity
// gauge, and the sensor bus's dropped-event count.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry (rather than the global default) so
// multiple Applications in the same test binary don't collide on
// registration.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal       *prometheus.CounterVec
	connectionDuration *prometheus.HistogramVec
	tcpBytes           *prometheus.CounterVec
	routerSize         *prometheus.GaugeVec
	retries            *prometheus.CounterVec
	droppedEvents      prometheus.Counter
	lastDropped        atomic.Uint64
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olla_sidecar",
			Name:      "request_total",
			Help:      "Requests dispatched by the transparent server, by direction, authority and outcome status.",
		}, []string{"direction", "authority", "status"}),
		connectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "olla_sidecar",
			Name:      "connection_duration_seconds",
			Help:      "Wall-clock duration of a proxied connection, from accept to close.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		tcpBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olla_sidecar",
			Name:      "tcp_bytes_total",
			Help:      "Bytes spliced between client and upstream, by direction and flow.",
		}, []string{"direction", "flow"}), // flow: "in" or "out"
		routerSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "olla_sidecar",
			Name:      "router_resident_keys",
			Help:      "Number of service keys currently resident in the router, by direction.",
		}, []string{"direction"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olla_sidecar",
			Name:      "endpoint_reconnect_total",
			Help:      "Endpoint reconnect attempts recorded by the stack's reconnect layer, by outcome.",
		}, []string{"outcome"}), // outcome: "success" or "failure"
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "olla_sidecar",
			Name:      "sensor_events_dropped_total",
			Help:      "Telemetry events dropped by the sensor bus because a subscriber's buffer was full.",
		}),
	}

	reg.MustRegister(
		m.requestTotal,
		m.connectionDuration,
		m.tcpBytes,
		m.routerSize,
		m.retries,
		m.droppedEvents,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the /metrics HTTP handler for the metrics listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(direction, authority, status string) {
	m.requestTotal.WithLabelValues(direction, authority, status).Inc()
}

func (m *Metrics) ObserveConnectionDuration(direction string, seconds float64) {
	m.connectionDuration.WithLabelValues(direction).Observe(seconds)
}

func (m *Metrics) AddTCPBytes(direction, flow string, n float64) {
	m.tcpBytes.WithLabelValues(direction, flow).Add(n)
}

func (m *Metrics) SetRouterSize(direction string, n float64) {
	m.routerSize.WithLabelValues(direction).Set(n)
}

func (m *Metrics) IncReconnect(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.retries.WithLabelValues(outcome).Inc()
}

// SetDroppedEvents syncs the counter to the sensor bus's running total.
// Prometheus counters only move forward, so this is called periodically
// with the bus's monotonic DroppedCount rather than incremented per-drop.
func (m *Metrics) SetDroppedEvents(total uint64) {
	for {
		prev := m.lastDropped.Load()
		if total <= prev {
			return
		}
		if m.lastDropped.CompareAndSwap(prev, total) {
			m.droppedEvents.Add(float64(total - prev))
			return
		}
	}
}
