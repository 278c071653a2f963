package monitoring

import (
	"eventsphere/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics.
type PrometheusCollector struct {
	sessionsActive    *prometheus.GaugeVec
	sessionsTotal     *prometheus.CounterVec
	handshakeRejected *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec

	roomDeliveries *prometheus.CounterVec
	roomRecipients *prometheus.HistogramVec

	busReceived      *prometheus.CounterVec
	busDropped       *prometheus.CounterVec
	busPublishFailed *prometheus.CounterVec

	requestDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the fabric metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eventsphere_sessions_active",
			Help: "Number of connected sessions on this instance",
		}, []string{"role"}),

		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsphere_sessions_total",
			Help: "Total number of accepted sessions",
		}, []string{"role"}),

		handshakeRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsphere_handshake_rejected_total",
			Help: "Handshakes rejected before a session was created",
		}, []string{"code"}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsphere_frames_dropped_total",
			Help: "Frames dropped because a session outbound queue was full",
		}, []string{"event"}),

		roomDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsphere_room_deliveries_total",
			Help: "Room emissions by room scope",
		}, []string{"scope"}),

		roomRecipients: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventsphere_room_recipients",
			Help:    "Sessions reached per room emission",
			Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000},
		}, []string{"scope"}),

		busReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsphere_bus_messages_received_total",
			Help: "Channel messages received from the bus",
		}, []string{"channel"}),

		busDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsphere_bus_messages_dropped_total",
			Help: "Channel messages dropped without delivery",
		}, []string{"channel", "reason"}),

		busPublishFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsphere_bus_publish_failed_total",
			Help: "Publishes that failed after every retry",
		}, []string{"channel"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventsphere_request_duration_seconds",
			Help:    "Client request handling time",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"event", "code"}),
	}
}

func (p *PrometheusCollector) SessionOpened(role domain.Role) {
	p.sessionsActive.WithLabelValues(string(role)).Inc()
	p.sessionsTotal.WithLabelValues(string(role)).Inc()
}

func (p *PrometheusCollector) SessionClosed(role domain.Role) {
	p.sessionsActive.WithLabelValues(string(role)).Dec()
}

func (p *PrometheusCollector) HandshakeRejected(code string) {
	p.handshakeRejected.WithLabelValues(code).Inc()
}

func (p *PrometheusCollector) FrameDropped(event string) {
	p.framesDropped.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) RoomDelivered(scope string, recipients int) {
	p.roomDeliveries.WithLabelValues(scope).Inc()
	p.roomRecipients.WithLabelValues(scope).Observe(float64(recipients))
}

func (p *PrometheusCollector) BusMessageReceived(channel domain.Channel) {
	p.busReceived.WithLabelValues(string(channel)).Inc()
}

func (p *PrometheusCollector) BusMessageDropped(channel domain.Channel, reason string) {
	p.busDropped.WithLabelValues(string(channel), reason).Inc()
}

func (p *PrometheusCollector) BusPublishFailed(channel domain.Channel) {
	p.busPublishFailed.WithLabelValues(string(channel)).Inc()
}

// RequestHandled records a client request. An empty code counts as OK.
func (p *PrometheusCollector) RequestHandled(event, code string, seconds float64) {
	if code == "" {
		code = "OK"
	}
	p.requestDuration.WithLabelValues(event, code).Observe(seconds)
}
