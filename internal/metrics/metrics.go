// Package metrics exports membership and broadcast counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

const namespace = "roomcast"

// Collector owns its registry so tests and multiple servers don't collide on
// the process-wide default.
type Collector struct {
	reg *prometheus.Registry

	rooms       *prometheus.GaugeVec
	memberships *prometheus.GaugeVec
	broadcasts  *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

func New() *Collector {
	labels := []string{"nsp"}
	c := &Collector{
		reg: prometheus.NewRegistry(),
		rooms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Non-empty rooms.",
		}, labels),
		memberships: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memberships",
			Help:      "Endpoint-room pairs.",
		}, labels),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcasts handled by this node.",
		}, labels),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Packets handed to endpoints.",
		}, labels),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Reliable deliveries refused by a saturated endpoint.",
		}, labels),
	}
	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.rooms, c.memberships, c.broadcasts, c.deliveries, c.dropped,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler exposes the collector registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collector) ObserveBroadcast(nsp string, res core.PublishResult) {
	c.broadcasts.WithLabelValues(nsp).Inc()
	c.deliveries.WithLabelValues(nsp).Add(float64(res.Dispatched))
	c.dropped.WithLabelValues(nsp).Add(float64(len(res.Dropped)))
}

// ForNamespace returns an adapter observer keeping the gauges of nsp current.
func (c *Collector) ForNamespace(nsp string) core.Observer {
	rooms := c.rooms.WithLabelValues(nsp)
	members := c.memberships.WithLabelValues(nsp)
	return core.ObserverFuncs{
		RoomCreated: func(domain.Room) { rooms.Inc() },
		RoomDeleted: func(domain.Room) { rooms.Dec() },
		Join:        func(domain.EndpointID, domain.Room) { members.Inc() },
		Leave:       func(domain.EndpointID, domain.Room) { members.Dec() },
	}
}
