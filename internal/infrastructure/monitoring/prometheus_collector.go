package monitoring

import (
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	connectionsActive  prometheus.Gauge
	participantsActive prometheus.Gauge
	meetingsActive     prometheus.Gauge

	// Counters
	connectionsTotal *prometheus.CounterVec
	meetingsCreated  prometheus.Counter
	meetingsEnded    *prometheus.CounterVec
	signalsRelayed   *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	meetingErrors    *prometheus.CounterVec
	handlerPanics    prometheus.Counter

	// Histograms
	eventDuration *prometheus.HistogramVec
}

var _ ports.SignalingMetrics = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the signaling metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetsignal_connections_active",
			Help: "Number of open signaling connections",
		}),

		participantsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetsignal_participants_active",
			Help: "Number of participants currently in a meeting",
		}),

		meetingsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "meetsignal_meetings_active",
			Help: "Number of meetings in the session directory",
		}),

		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetsignal_connections_total",
			Help: "Signaling connections opened and closed",
		}, []string{"event"}),

		meetingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetsignal_meetings_created_total",
			Help: "Total number of meetings created",
		}),

		meetingsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetsignal_meetings_ended_total",
			Help: "Total number of meetings removed, by reason (empty or sweep)",
		}, []string{"reason"}),

		signalsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetsignal_signals_relayed_total",
			Help: "Negotiation envelopes delivered to their target",
		}, []string{"kind"}),

		deliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetsignal_signal_delivery_failures_total",
			Help: "Negotiation envelopes dropped because the target was unreachable",
		}, []string{"kind"}),

		meetingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetsignal_meeting_errors_total",
			Help: "meeting-error frames sent to clients, by code",
		}, []string{"code"}),

		handlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetsignal_handler_panics_total",
			Help: "Panics recovered while handling a single event",
		}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetsignal_event_duration_seconds",
			Help:    "Time spent handling one inbound event on the dispatch loop",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"type"}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.WithLabelValues("opened").Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
	p.connectionsTotal.WithLabelValues("closed").Inc()
}

func (p *PrometheusCollector) SetParticipants(n int) {
	p.participantsActive.Set(float64(n))
}

func (p *PrometheusCollector) SetMeetings(n int) {
	p.meetingsActive.Set(float64(n))
}

func (p *PrometheusCollector) MeetingCreated() {
	p.meetingsCreated.Inc()
}

func (p *PrometheusCollector) MeetingEnded(reason string) {
	p.meetingsEnded.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) SignalRelayed(kind domain.SignalKind) {
	p.signalsRelayed.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) DeliveryFailed(kind domain.SignalKind) {
	p.deliveryFailures.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) MeetingError(code string) {
	p.meetingErrors.WithLabelValues(code).Inc()
}

func (p *PrometheusCollector) HandlerPanic() {
	p.handlerPanics.Inc()
}

// ObserveEvent records handling time. Only known event types get their own label so a client
// cannot grow the label set.
func (p *PrometheusCollector) ObserveEvent(eventType domain.EventType, d time.Duration) {
	label := "unknown"
	switch eventType {
	case domain.EventJoinMeeting, domain.EventLeaveMeeting, domain.EventCallUser, domain.EventMakeAnswer,
		domain.EventICECandidate, domain.EventScreenSharingStarted, domain.EventPing:
		label = string(eventType)
	}
	p.eventDuration.WithLabelValues(label).Observe(d.Seconds())
}
