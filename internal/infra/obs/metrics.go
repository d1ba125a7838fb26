package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported on /metrics. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	deliveries     *prometheus.CounterVec
	undelivered    *prometheus.CounterVec
	commands       *prometheus.CounterVec
	connections    prometheus.Gauge
	outboxFailures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zedflip_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zedflip_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zedflip_realtime_deliveries_total",
			Help: "Frames handed to live connections, by event",
		}, []string{"event"}),
		undelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zedflip_realtime_undelivered_total",
			Help: "Fan-out events that reached no connection, by event",
		}, []string{"event"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zedflip_commands_total",
			Help: "Dispatched commands, by key and outcome",
		}, []string{"command", "outcome"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zedflip_realtime_connections",
			Help: "Open websocket connections",
		}),
		outboxFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zedflip_outbox_publish_failures_total",
			Help: "Outbox records that failed to publish, by event",
		}, []string{"event"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveDelivery records one fan-out event and how many connections took it.
func (m *Metrics) ObserveDelivery(event string, delivered int) {
	if m == nil {
		return
	}
	if delivered == 0 {
		m.undelivered.WithLabelValues(event).Inc()
		return
	}
	m.deliveries.WithLabelValues(event).Add(float64(delivered))
}

func (m *Metrics) ObserveCommand(key string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commands.WithLabelValues(key, outcome).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) OutboxFailed(event string) {
	if m != nil {
		m.outboxFailures.WithLabelValues(event).Inc()
	}
}
