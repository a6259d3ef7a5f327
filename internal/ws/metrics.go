package ws

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks gateway load. A nil *Metrics records nothing.
type Metrics struct {
	Connections prometheus.Gauge
	OnlineUsers prometheus.Gauge
	Frames      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_ws_connections",
			Help: "Open websocket connections",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_ws_online_users",
			Help: "Users with at least one authenticated connection",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_ws_frames_total",
			Help: "Inbound frames by event",
		}, []string{"event"}),
	}
	reg.MustRegister(m.Connections, m.OnlineUsers, m.Frames)
	return m
}

func (m *Metrics) observe(r *Registry) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(r.ConnCount()))
	m.OnlineUsers.Set(float64(r.OnlineCount()))
}

func (m *Metrics) frame(event string) {
	if m != nil {
		m.Frames.WithLabelValues(event).Inc()
	}
}
