package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process counters, exported through a private Prometheus
// registry. Hot paths bump atomics; Prometheus reads them lazily.
type Metrics struct {
	TicksRun       atomic.Uint64
	AlarmsRaised   atomic.Uint64
	FramesProduced atomic.Uint64
	FrameReads     atomic.Uint64
	StreamClients  atomic.Int64

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trafficmon_ticks_total",
			Help: "Monitor loop ticks executed",
		},
		func() float64 { return float64(m.TicksRun.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trafficmon_alarms_raised_total",
			Help: "Alarms raised by the violation engine",
		},
		func() float64 { return float64(m.AlarmsRaised.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trafficmon_frames_produced_total",
			Help: "Frames written to the frame buffer",
		},
		func() float64 { return float64(m.FramesProduced.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trafficmon_frame_reads_total",
			Help: "Frame copies handed to streaming consumers",
		},
		func() float64 { return float64(m.FrameReads.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trafficmon_stream_clients",
			Help: "Connected video stream consumers",
		},
		func() float64 { return float64(m.StreamClients.Load()) },
	))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
