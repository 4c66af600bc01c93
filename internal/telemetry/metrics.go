package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beltline.dev/internal/editor/store"
)

const namespace = "beltline"

// Metrics is the process metrics registry. It counts placement gestures and
// store commits and exposes gauges backed by callbacks.
type Metrics struct {
	reg      *prometheus.Registry
	gestures *prometheus.CounterVec
	commits  *prometheus.CounterVec
	resets   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		gestures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gestures_total",
			Help:      "Placement gestures by name and outcome.",
		}, []string{"gesture", "accepted"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_commits_total",
			Help:      "Blueprint store commits by operation tag.",
		}, []string{"tag"}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_resets_total",
			Help:      "Whole-collection replacements (loads and restores).",
		}),
	}
	reg.MustRegister(
		m.gestures,
		m.commits,
		m.resets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Gesture implements placement.Metrics.
func (m *Metrics) Gesture(name string, accepted bool) {
	m.gestures.WithLabelValues(name, strconv.FormatBool(accepted)).Inc()
}

// OnCommit implements store.Observer.
func (m *Metrics) OnCommit(ev store.Event) {
	if ev.Reset {
		m.resets.Inc()
		return
	}
	tag := ev.Tag
	if tag == "" {
		tag = "none"
	}
	m.commits.WithLabelValues(tag).Inc()
}

// Gauge registers a gauge read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, labels prometheus.Labels, fn func() float64) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn))
}

// Counter registers a monotonically increasing value read from fn.
func (m *Metrics) Counter(name, help string, labels prometheus.Labels, fn func() float64) error {
	return m.reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

var _ store.Observer = (*Metrics)(nil)
