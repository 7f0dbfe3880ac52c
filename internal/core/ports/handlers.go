package ports

import (
	"context"

	"meetsignal/internal/core/domain"
)

// SignalingHandler is what the connection gateway drives.
type SignalingHandler interface {
	Connect(ctx context.Context, conn domain.Connection, sink FrameSink) error
	Message(ctx context.Context, connID domain.ConnectionID, raw []byte) error
	Disconnect(ctx context.Context, connID domain.ConnectionID) error
}
