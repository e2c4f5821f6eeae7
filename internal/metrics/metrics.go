// Package metrics exposes trader lifecycle counters in Prometheus format.
//
//   - gatebot_trader_events_total{kind}
//   - gatebot_entries_rejected_total{reason}
//   - gatebot_positions_closed_total{reason,side}
//   - gatebot_open_tasks
//   - gatebot_rate_window_entries{horizon} / gatebot_rate_window_max{horizon}
//   - gatebot_heartbeat_messages_total{kind}, gatebot_heartbeat_goroutines
package metrics

import (
	"net/http"
	"time"

	"gatebot/internal/heartbeat"
	"gatebot/internal/ratewindow"
	"gatebot/internal/trader"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	closed         *prometheus.CounterVec
	openTasks      prometheus.Gauge
	heartbeats     *prometheus.CounterVec
	heartbeatGorts prometheus.Gauge
}

var _ trader.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "gatebot_trader_events_total", Help: "Trader lifecycle events by kind"},
			[]string{"kind"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "gatebot_entries_rejected_total", Help: "Signals rejected at admission"},
			[]string{"reason"},
		),
		closed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "gatebot_positions_closed_total", Help: "Positions closed by exit reason and side"},
			[]string{"reason", "side"},
		),
		openTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "gatebot_open_tasks", Help: "Tasks currently held in the queue"},
		),
		heartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "gatebot_heartbeat_messages_total", Help: "Heartbeat worker messages by kind"},
			[]string{"kind"},
		),
		heartbeatGorts: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "gatebot_heartbeat_goroutines", Help: "Goroutines at the last heartbeat"},
		),
	}
	m.registry.MustRegister(
		m.events, m.rejected, m.closed, m.openTasks, m.heartbeats, m.heartbeatGorts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Observe(evt trader.Event) {
	m.events.WithLabelValues(string(evt.Kind)).Inc()
	m.openTasks.Set(float64(evt.QueueLen))
	switch evt.Kind {
	case trader.KindEntryRejected:
		m.rejected.WithLabelValues(evt.Reason).Inc()
	case trader.KindPositionClosed:
		m.closed.WithLabelValues(evt.Reason, string(evt.Side)).Inc()
	}
}

func (m *Metrics) ObserveHeartbeat(msg heartbeat.Message) {
	m.heartbeats.WithLabelValues(string(msg.Kind)).Inc()
	if msg.Kind == heartbeat.MsgHeartbeat {
		m.heartbeatGorts.Set(float64(msg.Goroutines))
	}
}

// WatchRateWindow exports live per-horizon counts read at scrape time.
func (m *Metrics) WatchRateWindow(c *ratewindow.Counter) {
	m.registry.MustRegister(&windowCollector{counter: c, now: time.Now})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

var (
	windowCountDesc = prometheus.NewDesc("gatebot_rate_window_entries", "Entries recorded in the sliding window", []string{"horizon"}, nil)
	windowMaxDesc   = prometheus.NewDesc("gatebot_rate_window_max", "Configured maximum for the sliding window", []string{"horizon"}, nil)
)

type windowCollector struct {
	counter *ratewindow.Counter
	now     func() time.Time
}

func (w *windowCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- windowCountDesc
	ch <- windowMaxDesc
}

func (w *windowCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range w.counter.Status(w.now()) {
		ch <- prometheus.MustNewConstMetric(windowCountDesc, prometheus.GaugeValue, float64(st.Count), st.Horizon)
		ch <- prometheus.MustNewConstMetric(windowMaxDesc, prometheus.GaugeValue, float64(st.Max), st.Horizon)
	}
}
