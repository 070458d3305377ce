package statistics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BridgeStatistics tracks connection counters for the health endpoint
// and exports them to the Prometheus registry.
type BridgeStatistics struct {
	startTime time.Time

	totalConnections  atomic.Int64
	activeConnections atomic.Int64
	totalErrors       atomic.Int64

	registry *prometheus.Registry
}

// Snapshot is the counters frozen at one instant, shaped for the
// health reply.
type Snapshot struct {
	TotalConnections  int64   `json:"total_connections"`
	ActiveConnections int64   `json:"active_connections"`
	TotalErrors       int64   `json:"total_errors"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

func NewBridgeStatistics() *BridgeStatistics {
	s := &BridgeStatistics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
	}

	s.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pgbridge_connections_total",
			Help: "Connections accepted since start.",
		}, func() float64 { return float64(s.totalConnections.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgbridge_connections_active",
			Help: "Connections currently open.",
		}, func() float64 { return float64(s.activeConnections.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pgbridge_errors_total",
			Help: "Errors returned to clients since start.",
		}, func() float64 { return float64(s.totalErrors.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pgbridge_uptime_seconds",
			Help: "Seconds since the gateway started.",
		}, func() float64 { return time.Since(s.startTime).Seconds() }),
	)
	return s
}

// ConnectionOpened records an accepted connection.
func (s *BridgeStatistics) ConnectionOpened() {
	s.totalConnections.Add(1)
	s.activeConnections.Add(1)
}

// ConnectionClosed balances a prior ConnectionOpened.
func (s *BridgeStatistics) ConnectionClosed() {
	s.activeConnections.Add(-1)
}

func (s *BridgeStatistics) ErrorOccurred() {
	s.totalErrors.Add(1)
}

func (s *BridgeStatistics) ActiveConnections() int64 {
	return s.activeConnections.Load()
}

func (s *BridgeStatistics) StartTime() time.Time {
	return s.startTime
}

// Registry exposes the metric set for the admin HTTP handler.
func (s *BridgeStatistics) Registry() *prometheus.Registry {
	return s.registry
}

func (s *BridgeStatistics) Snapshot() Snapshot {
	return Snapshot{
		TotalConnections:  s.totalConnections.Load(),
		ActiveConnections: s.activeConnections.Load(),
		TotalErrors:       s.totalErrors.Load(),
		UptimeSeconds:     time.Since(s.startTime).Seconds(),
	}
}
