package services

import (
	"sync"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
)

// MetricsSnapshot is a point-in-time copy of MetricsService counters.
type MetricsSnapshot struct {
	Connections     int                          `json:"connections"`
	Participants    int                          `json:"participants"`
	Meetings        int                          `json:"meetings"`
	MeetingsCreated int                          `json:"meetings_created"`
	MeetingsEnded   map[string]int               `json:"meetings_ended"`
	SignalsRelayed  map[domain.SignalKind]int    `json:"signals_relayed"`
	DeliveryFailed  map[domain.SignalKind]int    `json:"delivery_failed"`
	MeetingErrors   map[string]int               `json:"meeting_errors"`
	HandlerPanics   int                          `json:"handler_panics"`
	EventsHandled   map[domain.EventType]int     `json:"events_handled"`
	EventTime       map[domain.EventType]float64 `json:"event_time_seconds"`
}

// MetricsService keeps signaling counters in process. It backs the core when Prometheus is
// disabled and doubles as an assertion target in tests.
type MetricsService struct {
	mu sync.RWMutex

	connections     int
	participants    int
	meetings        int
	meetingsCreated int
	meetingsEnded   map[string]int
	signalsRelayed  map[domain.SignalKind]int
	deliveryFailed  map[domain.SignalKind]int
	meetingErrors   map[string]int
	handlerPanics   int
	eventsHandled   map[domain.EventType]int
	eventTime       map[domain.EventType]time.Duration
}

var _ ports.SignalingMetrics = (*MetricsService)(nil)

func NewMetricsService() *MetricsService {
	return &MetricsService{
		meetingsEnded:  make(map[string]int),
		signalsRelayed: make(map[domain.SignalKind]int),
		deliveryFailed: make(map[domain.SignalKind]int),
		meetingErrors:  make(map[string]int),
		eventsHandled:  make(map[domain.EventType]int),
		eventTime:      make(map[domain.EventType]time.Duration),
	}
}

func (m *MetricsService) ConnectionOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections++
}

func (m *MetricsService) ConnectionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections > 0 {
		m.connections--
	}
}

func (m *MetricsService) SetParticipants(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants = n
}

func (m *MetricsService) SetMeetings(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetings = n
}

func (m *MetricsService) MeetingCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetingsCreated++
}

func (m *MetricsService) MeetingEnded(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetingsEnded[reason]++
}

func (m *MetricsService) SignalRelayed(kind domain.SignalKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalsRelayed[kind]++
}

func (m *MetricsService) DeliveryFailed(kind domain.SignalKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveryFailed[kind]++
}

func (m *MetricsService) MeetingError(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetingErrors[code]++
}

func (m *MetricsService) HandlerPanic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlerPanics++
}

func (m *MetricsService) ObserveEvent(eventType domain.EventType, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsHandled[eventType]++
	m.eventTime[eventType] += d
}

func (m *MetricsService) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MetricsSnapshot{
		Connections:     m.connections,
		Participants:    m.participants,
		Meetings:        m.meetings,
		MeetingsCreated: m.meetingsCreated,
		MeetingsEnded:   make(map[string]int, len(m.meetingsEnded)),
		SignalsRelayed:  make(map[domain.SignalKind]int, len(m.signalsRelayed)),
		DeliveryFailed:  make(map[domain.SignalKind]int, len(m.deliveryFailed)),
		MeetingErrors:   make(map[string]int, len(m.meetingErrors)),
		HandlerPanics:   m.handlerPanics,
		EventsHandled:   make(map[domain.EventType]int, len(m.eventsHandled)),
		EventTime:       make(map[domain.EventType]float64, len(m.eventTime)),
	}
	for k, v := range m.meetingsEnded {
		s.MeetingsEnded[k] = v
	}
	for k, v := range m.signalsRelayed {
		s.SignalsRelayed[k] = v
	}
	for k, v := range m.deliveryFailed {
		s.DeliveryFailed[k] = v
	}
	for k, v := range m.meetingErrors {
		s.MeetingErrors[k] = v
	}
	for k, v := range m.eventsHandled {
		s.EventsHandled[k] = v
	}
	for k, v := range m.eventTime {
		s.EventTime[k] = v.Seconds()
	}
	return s
}
