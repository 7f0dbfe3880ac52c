package ports

import (
	"context"
	"time"

	"meetsignal/internal/core/domain"
)

// EventPublisher fans lifecycle events out to other systems. Publish must not block.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LifecycleEvent)
	Close() error
}

// IdentityResolver turns a connect-time token into a connection identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}

// SignalingMetrics is the metrics surface the signaling core reports to.
type SignalingMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	SetParticipants(n int)
	SetMeetings(n int)
	MeetingCreated()
	MeetingEnded(reason string)
	SignalRelayed(kind domain.SignalKind)
	DeliveryFailed(kind domain.SignalKind)
	MeetingError(code string)
	HandlerPanic()
	ObserveEvent(eventType domain.EventType, d time.Duration)
}
