package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the connection runtime
// updates. NewMetrics registers every collector unconditionally; the
// caller decides whether to increment them, and the connection runtime
// does so only for apps with the statistics-enabled flag set (spec.md
// §4.C). The collectors themselves are process-global since Prometheus
// has no concept of "this app opted out".
type Metrics struct {
	ConnectionsTotal   prometheus.Counter
	ConnectionsActive  prometheus.Gauge
	ConnectionsFailed  prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
	MessagesReceived   prometheus.Counter
	MessagesSent       prometheus.Counter
	BytesReceived      prometheus.Counter
	BytesSent          prometheus.Counter
	DispatchErrors     *prometheus.CounterVec
}

// NewMetrics constructs and registers every collector against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastsocket_connections_total",
			Help: "Total number of WebSocket connections established.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fastsocket_connections_active",
			Help: "Current number of live WebSocket connections.",
		}),
		ConnectionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastsocket_connections_failed_total",
			Help: "Total number of upgrade attempts that failed.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fastsocket_connections_rejected_total",
			Help: "Total number of upgrade attempts rejected, by reason.",
		}, []string{"reason"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastsocket_messages_received_total",
			Help: "Total number of text/binary frames received from clients.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastsocket_messages_sent_total",
			Help: "Total number of frames sent to clients.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastsocket_bytes_received_total",
			Help: "Total number of bytes received from clients.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fastsocket_bytes_sent_total",
			Help: "Total number of bytes sent to clients.",
		}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fastsocket_dispatch_errors_total",
			Help: "Total number of message-fatal dispatch errors, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.ConnectionsFailed,
		m.ConnectionsRejected,
		m.MessagesReceived,
		m.MessagesSent,
		m.BytesReceived,
		m.BytesSent,
		m.DispatchErrors,
	)

	return m
}
