// Package stats exposes engine counters as Prometheus metrics.
package stats

import (
	"net/http"

	"github.com/msalah0e/canopy/internal/disclosure"
	"github.com/msalah0e/canopy/internal/interact"
	"github.com/msalah0e/canopy/internal/layout"
	"github.com/msalah0e/canopy/internal/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Summary holds aggregated counts read back from the registry.
type Summary struct {
	Ticks     int
	Expands   int
	Collapses int
	Clicks    int
	Drags     int
	Misses    int
	Frames    int
	Skipped   int
	Reloads   int
	Clients   int
}

// Metrics owns a private registry so several engines can run in one process.
type Metrics struct {
	reg *prometheus.Registry

	ticks        prometheus.Counter
	tickDuration prometheus.Histogram
	alpha        prometheus.Gauge
	energy       prometheus.Gauge
	nodes        prometheus.Gauge
	links        prometheus.Gauge
	live         prometheus.Gauge

	toggles  *prometheus.CounterVec
	gestures *prometheus.CounterVec

	frames  prometheus.Counter
	skipped prometheus.Counter
	clients prometheus.Gauge
	reloads *prometheus.CounterVec
}

// New returns metrics registered on a fresh registry. withRuntime adds the Go
// runtime and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "canopy_ticks_total",
			Help: "Simulation ticks run",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "canopy_tick_duration_seconds",
			Help:    "Wall time of one simulation tick",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50µs to ~100ms
		}),
		alpha: f.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_alpha",
			Help: "Current simulation alpha",
		}),
		energy: f.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_kinetic_energy",
			Help: "Sum of squared velocities of free nodes",
		}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_visible_nodes",
			Help: "Nodes in the visible graph",
		}),
		links: f.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_visible_links",
			Help: "Links in the visible graph",
		}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_simulation_live",
			Help: "1 while the simulation is running, 0 once settled",
		}),
		toggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_toggles_total",
			Help: "Disclosure transitions by action",
		}, []string{"action"}),
		gestures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_gestures_total",
			Help: "Completed pointer gestures by outcome",
		}, []string{"outcome"}),
		frames: f.NewCounter(prometheus.CounterOpts{
			Name: "canopy_frames_total",
			Help: "Frames projected for viewers",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "canopy_skipped_links_total",
			Help: "Links dropped at render because an endpoint was missing",
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_clients",
			Help: "Connected viewers",
		}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "canopy_reloads_total",
			Help: "Input reloads by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveTick records one layout step. Register it with layout.Engine.OnTick.
func (m *Metrics) ObserveTick(t layout.Tick) {
	m.ticks.Inc()
	m.tickDuration.Observe(t.Duration.Seconds())
	m.alpha.Set(t.Alpha)
	m.energy.Set(t.Energy)
	m.nodes.Set(float64(t.Nodes))
	m.links.Set(float64(t.Links))
	if t.Live {
		m.live.Set(1)
	} else {
		m.live.Set(0)
	}
}

// ObserveChange records a disclosure transition. No-op transitions are ignored.
func (m *Metrics) ObserveChange(c disclosure.Change) {
	if c.Action == disclosure.ActionNone {
		return
	}
	m.toggles.WithLabelValues(c.Action.String()).Inc()
}

// ObserveOutcome records a completed gesture.
func (m *Metrics) ObserveOutcome(o interact.Outcome) {
	label := "miss"
	switch o.Kind {
	case interact.OutcomeToggle:
		label = "click"
	case interact.OutcomeDrag:
		label = "drag"
	}
	m.gestures.WithLabelValues(label).Inc()
}

// ObserveFrame records a projected frame and any links it had to skip.
func (m *Metrics) ObserveFrame(f render.Frame) {
	m.frames.Inc()
	m.skipped.Add(float64(len(f.Skipped)))
}

func (m *Metrics) ClientConnected()    { m.clients.Inc() }
func (m *Metrics) ClientDisconnected() { m.clients.Dec() }

// ObserveReload records an input reload attempt.
func (m *Metrics) ObserveReload(err error) {
	if err != nil {
		m.reloads.WithLabelValues("error").Inc()
		return
	}
	m.reloads.WithLabelValues("ok").Inc()
}

// Summarize gathers the registry and folds the canopy series into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}

	s := &Summary{}
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			label := ""
			if pairs := metric.GetLabel(); len(pairs) > 0 {
				label = pairs[0].GetValue()
			}
			counter := int(metric.GetCounter().GetValue())

			switch fam.GetName() {
			case "canopy_ticks_total":
				s.Ticks = counter
			case "canopy_frames_total":
				s.Frames = counter
			case "canopy_skipped_links_total":
				s.Skipped = counter
			case "canopy_clients":
				s.Clients = int(metric.GetGauge().GetValue())
			case "canopy_reloads_total":
				s.Reloads += counter
			case "canopy_toggles_total":
				switch label {
				case "expand":
					s.Expands = counter
				case "collapse":
					s.Collapses = counter
				}
			case "canopy_gestures_total":
				switch label {
				case "click":
					s.Clicks = counter
				case "drag":
					s.Drags = counter
				case "miss":
					s.Misses = counter
				}
			}
		}
	}
	return s, nil
}
