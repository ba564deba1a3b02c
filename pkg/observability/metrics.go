package observability

import (
	"context"

	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge collectors.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	Connected        *prometheus.GaugeVec
	RelayFallbacks   prometheus.Counter
	FramesDropped    *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	Snapshots        prometheus.Counter
	Plots            prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plotbridge_connection_transitions_total",
				Help: "Connection state transitions",
			},
			[]string{"from", "to"},
		),
		Connected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plotbridge_connection_connected",
				Help: "1 while the backend is connected over the labelled transport",
			},
			[]string{"transport"},
		),
		RelayFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plotbridge_relay_fallbacks_total",
			Help: "Direct attempts abandoned in favour of the relay",
		}),
		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plotbridge_frames_dropped_total",
				Help: "Backend frames dropped as malformed",
			},
			[]string{"reason"},
		),
		DeliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plotbridge_surface_delivery_failures_total",
				Help: "Broadcast deliveries a surface rejected",
			},
			[]string{"surface"},
		),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plotbridge_snapshots_total",
			Help: "Plot list snapshots reconciled",
		}),
		Plots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plotbridge_plots",
			Help: "Plots in the current list",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Connected, m.RelayFallbacks, m.FramesDropped,
			m.DeliveryFailures, m.Snapshots, m.Plots)
	}
	return m
}

// Hooks records lifecycle events into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, from, to domain.ConnectionState) {
			m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
			for _, t := range []domain.Transport{domain.TransportDirect, domain.TransportRelay} {
				v := 0.0
				if to.Connected() && to.Transport == t {
					v = 1
				}
				m.Connected.WithLabelValues(string(t)).Set(v)
			}
		},
		OnSnapshot: func(_ context.Context, plots domain.PlotList) {
			m.Snapshots.Inc()
			m.Plots.Set(float64(len(plots)))
		},
		OnFrameDropped: func(_ context.Context, reason string) {
			m.FramesDropped.WithLabelValues(reason).Inc()
		},
		OnDeliveryFailure: func(_ context.Context, surfaceID string, _ error) {
			m.DeliveryFailures.WithLabelValues(surfaceID).Inc()
		},
		OnRelayFallback: func(context.Context, int) {
			m.RelayFallbacks.Inc()
		},
	}
}
