package events

import (
	"context"

	"meetsignal/internal/core/domain"
)

// NopPublisher discards lifecycle events. Used when redis is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.LifecycleEvent) {}

func (NopPublisher) Close() error { return nil }
