package services

import (
	"context"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"

	"go.uber.org/zap"
)

// LifecycleService garbage-collects meetings left empty by any path that skipped eager cleanup.
type LifecycleService struct {
	meetings ports.SessionDirectory
	events   ports.EventPublisher
	metrics  ports.SignalingMetrics
	now      func() time.Time
	logger   *zap.SugaredLogger
}

func NewLifecycleService(meetings ports.SessionDirectory, events ports.EventPublisher, metrics ports.SignalingMetrics, logger *zap.SugaredLogger) *LifecycleService {
	return &LifecycleService{
		meetings: meetings,
		events:   events,
		metrics:  metrics,
		now:      time.Now,
		logger:   logger,
	}
}

// Sweep removes every empty meeting. Must run on the dispatch loop.
func (s *LifecycleService) Sweep(ctx context.Context) []domain.MeetingID {
	removed := s.meetings.SweepEmpty()
	for _, id := range removed {
		s.metrics.MeetingEnded(ReasonSweep)
		s.events.Publish(ctx, domain.LifecycleEvent{
			Type:      domain.LifecycleMeetingEnded,
			MeetingID: id,
			Reason:    ReasonSweep,
			Timestamp: s.now(),
		})
	}
	if len(removed) > 0 {
		s.logger.Infow("swept empty meetings", "count", len(removed), "meeting_ids", removed)
	}
	return removed
}
