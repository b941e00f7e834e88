// Package metrics exposes prometheus collectors for the ingestion engine.
package metrics

import (
	"net/http"

	"github.com/lit-response/triageboard/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triageboard"

// Collectors groups every metric the engine updates. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	registry *prometheus.Registry

	framesReceived   prometheus.Counter
	framesMalformed  prometheus.Counter
	eventsNormalized *prometheus.CounterVec
	connected        prometheus.Gauge
	reconnects       prometheus.Counter
	registrySize     *prometheus.GaugeVec
	dispatchRequests prometheus.Counter
	dispatchFailures *prometheus.CounterVec
}

func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Websocket frames read from the event source",
		}),
		framesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_malformed_total",
			Help:      "Frames dropped because the envelope was not a JSON object",
		}),
		eventsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_normalized_total",
			Help:      "Events published after normalization",
		}, []string{"severity"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 while the event source connection is live",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_attempts_total",
			Help:      "Dial attempts after the first",
		}),
		registrySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "calls",
			Help:      "Calls currently held, by severity",
		}, []string{"severity"}),
		dispatchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Dispatch approvals requested by operators",
		}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "send_failures_total",
			Help:      "Approval messages that could not be transmitted",
		}, []string{"reason"}),
	}
	c.registry.MustRegister(
		c.framesReceived, c.framesMalformed, c.eventsNormalized, c.connected,
		c.reconnects, c.registrySize, c.dispatchRequests, c.dispatchFailures,
	)
	return c
}

// Registry returns the underlying gatherer, mainly for tests.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) FrameReceived() {
	if c != nil {
		c.framesReceived.Inc()
	}
}

func (c *Collectors) FrameMalformed() {
	if c != nil {
		c.framesMalformed.Inc()
	}
}

func (c *Collectors) EventNormalized(s event.Severity) {
	if c != nil {
		c.eventsNormalized.WithLabelValues(string(s)).Inc()
	}
}

func (c *Collectors) SetConnected(up bool) {
	if c == nil {
		return
	}
	if up {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

func (c *Collectors) Reconnect() {
	if c != nil {
		c.reconnects.Inc()
	}
}

// SetRegistrySize overwrites the per-severity gauges. Severities missing from
// counts are reported as zero.
func (c *Collectors) SetRegistrySize(counts map[event.Severity]int) {
	if c == nil {
		return
	}
	for _, s := range event.Severities {
		c.registrySize.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

func (c *Collectors) DispatchRequested() {
	if c != nil {
		c.dispatchRequests.Inc()
	}
}

func (c *Collectors) DispatchSendFailed(reason string) {
	if c != nil {
		c.dispatchFailures.WithLabelValues(reason).Inc()
	}
}
