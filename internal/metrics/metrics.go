// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes recorded by RecordLogin.
const (
	LoginOK            = "ok"
	LoginInvalid       = "invalid_credentials"
	LoginSessionActive = "session_active"
	LoginRateLimited   = "rate_limited"
	LoginError         = "error"
)

// Recorder is what services, the hub and the gateway report to.
type Recorder interface {
	RecordLogin(outcome string)
	RecordHandshakeRejected()
	ConnectionOpened()
	ConnectionClosed()
	RecordDelivered(n int)
	RecordDropped()
	RecordBroadcastFailure()
	RecordOrderCreated()
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	logins        *prometheus.CounterVec
	rejected      prometheus.Counter
	connections   prometheus.Gauge
	delivered     prometheus.Counter
	dropped       prometheus.Counter
	broadcastFail prometheus.Counter
	ordersCreated prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderhub_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderhub_ws_handshake_rejected_total",
			Help: "WebSocket handshakes closed with 4001.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderhub_ws_connections",
			Help: "Authenticated WebSocket connections.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderhub_broadcast_delivered_total",
			Help: "Broadcast frames queued to connections.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderhub_broadcast_dropped_total",
			Help: "Broadcast frames dropped for slow or failed connections.",
		}),
		broadcastFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderhub_broadcast_failures_total",
			Help: "Broadcasts rejected because the fanout transport was unavailable.",
		}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderhub_orders_created_total",
			Help: "Orders persisted.",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.rejected,
		c.connections,
		c.delivered,
		c.dropped,
		c.broadcastFail,
		c.ordersCreated,
	)
	return c
}

func (c *Collector) RecordLogin(outcome string) { c.logins.WithLabelValues(outcome).Inc() }
func (c *Collector) RecordHandshakeRejected()   { c.rejected.Inc() }
func (c *Collector) ConnectionOpened()          { c.connections.Inc() }
func (c *Collector) ConnectionClosed()          { c.connections.Dec() }
func (c *Collector) RecordDelivered(n int)      { c.delivered.Add(float64(n)) }
func (c *Collector) RecordDropped()             { c.dropped.Inc() }
func (c *Collector) RecordBroadcastFailure()    { c.broadcastFail.Inc() }
func (c *Collector) RecordOrderCreated()        { c.ordersCreated.Inc() }

// Nop discards everything.
type Nop struct{}

func (Nop) RecordLogin(string)       {}
func (Nop) RecordHandshakeRejected() {}
func (Nop) ConnectionOpened()        {}
func (Nop) ConnectionClosed()        {}
func (Nop) RecordDelivered(int)      {}
func (Nop) RecordDropped()           {}
func (Nop) RecordBroadcastFailure()  {}
func (Nop) RecordOrderCreated()      {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
