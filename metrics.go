package edgetunnel

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 的方法 在 nil 接收者上也可以调用.
type Metrics struct {
	Sessions          *prometheus.CounterVec //protocol, result
	Active            prometheus.Gauge
	Bytes             *prometheus.CounterVec //protocol, direction
	HandshakeFailures *prometheus.CounterVec //stage
}

// NewMetrics 创建并注册到 reg; reg 为nil时 只创建不注册.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgetunnel_sessions_total",
			Help: "Finished sessions by protocol and result.",
		}, []string{"protocol", "result"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgetunnel_active_sessions",
			Help: "Sessions currently being served.",
		}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgetunnel_relay_bytes_total",
			Help: "Relayed bytes by protocol and direction.",
		}, []string{"protocol", "direction"}),
		HandshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgetunnel_handshake_failures_total",
			Help: "Sessions that failed before relaying, by stage.",
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sessions, m.Active, m.Bytes, m.HandshakeFailures)
	}
	return m
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.Active.Inc()
}

func (m *Metrics) sessionEnded(s *Session) {
	if m == nil {
		return
	}
	m.Active.Dec()

	result := "ok"
	if s.State() == StateFailed {
		result = "failed"
		m.HandshakeFailures.WithLabelValues(failureStage(s)).Inc()
	}
	proto := s.Protocol.String()
	m.Sessions.WithLabelValues(proto, result).Inc()

	if s.Protocol != 0 {
		m.Bytes.WithLabelValues(proto, "up").Add(float64(s.Traffic.Up.Load()))
		m.Bytes.WithLabelValues(proto, "down").Add(float64(s.Traffic.Down.Load()))
	}
}

// 失败时所处的阶段
func failureStage(s *Session) string {
	return s.failedAt.String()
}
