// ABOUTME: Prometheus metrics for realtime connections, sends and deliveries
// ABOUTME: Each Collector owns its registry; a nil *Collector records nothing

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery kinds used as label values.
const (
	KindThread       = "thread"
	KindBroadcast    = "broadcast"
	KindNotification = "notification"
	KindPresence     = "presence"
	KindSnapshot     = "snapshot"
)

// Collector holds all Prometheus metrics for the gateway.
type Collector struct {
	registry *prometheus.Registry

	// Realtime
	Connections   *prometheus.GaugeVec
	OnlineMembers prometheus.Gauge
	ActiveGroups  prometheus.Gauge
	JoinFailures  prometheus.Counter

	// Messaging
	MessagesSent   prometheus.Counter
	SendsRejected  *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	DeliveryDrops  *prometheus.CounterVec
	PersistLatency prometheus.Histogram

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a collector whose metric names carry namespace.
// Go runtime and process collectors are registered alongside.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connections",
				Help:      "Open realtime connections by hub",
			},
			[]string{"hub"},
		),
		OnlineMembers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "online_members",
				Help:      "Members with at least one open connection",
			},
		),
		ActiveGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_conversation_groups",
				Help:      "Conversation groups with at least one joined connection",
			},
		),
		JoinFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "join_failures_total",
				Help:      "Conversation joins aborted because membership could not be persisted",
			},
		),
		MessagesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Messages persisted from realtime sends",
			},
		),
		SendsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sends_rejected_total",
				Help:      "Realtime sends rejected by reason",
			},
			[]string{"reason"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Events queued to connections by kind",
			},
			[]string{"kind"},
		),
		DeliveryDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_drops_total",
				Help:      "Events that could not be queued to a connection by kind",
			},
			[]string{"kind"},
		),
		PersistLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_persist_duration_seconds",
				Help:      "Time spent persisting a sent message",
				Buckets:   prometheus.DefBuckets,
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Connections,
		c.OnlineMembers,
		c.ActiveGroups,
		c.JoinFailures,
		c.MessagesSent,
		c.SendsRejected,
		c.Deliveries,
		c.DeliveryDrops,
		c.PersistLatency,
		c.HTTPRequests,
		c.HTTPDuration,
	)

	return c
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ConnectionOpened increments the open connection gauge for hub.
func (c *Collector) ConnectionOpened(hub string) {
	if c == nil {
		return
	}
	c.Connections.WithLabelValues(hub).Inc()
}

// ConnectionClosed decrements the open connection gauge for hub.
func (c *Collector) ConnectionClosed(hub string) {
	if c == nil {
		return
	}
	c.Connections.WithLabelValues(hub).Dec()
}

// SetPresence records the current online member and group counts.
func (c *Collector) SetPresence(onlineMembers, activeGroups int) {
	if c == nil {
		return
	}
	c.OnlineMembers.Set(float64(onlineMembers))
	c.ActiveGroups.Set(float64(activeGroups))
}

// JoinFailed counts an aborted conversation join.
func (c *Collector) JoinFailed() {
	if c == nil {
		return
	}
	c.JoinFailures.Inc()
}

// MessageSent records a persisted message and how long persisting took.
func (c *Collector) MessageSent(persistTook time.Duration) {
	if c == nil {
		return
	}
	c.MessagesSent.Inc()
	c.PersistLatency.Observe(persistTook.Seconds())
}

// SendRejected counts a rejected send.
func (c *Collector) SendRejected(reason string) {
	if c == nil {
		return
	}
	c.SendsRejected.WithLabelValues(reason).Inc()
}

// Delivered counts an event queued to a connection.
func (c *Collector) Delivered(kind string) {
	if c == nil {
		return
	}
	c.Deliveries.WithLabelValues(kind).Inc()
}

// DeliveryDropped counts an event that could not be queued.
func (c *Collector) DeliveryDropped(kind string) {
	if c == nil {
		return
	}
	c.DeliveryDrops.WithLabelValues(kind).Inc()
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and durations under route.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
