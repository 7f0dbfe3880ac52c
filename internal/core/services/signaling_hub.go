package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
	apperrors "meetsignal/pkg/errors"
	"meetsignal/pkg/logger"
	"meetsignal/pkg/tracing"

	"go.uber.org/zap"
)

type eventHandler func(ctx context.Context, connID domain.ConnectionID, payload json.RawMessage) error

// HubStats is a consistent snapshot taken on the dispatch loop.
type HubStats struct {
	Connections  int                     `json:"connections"`
	Participants int                     `json:"participants"`
	Meetings     []domain.MeetingSummary `json:"meetings"`
}

type HubConfig struct {
	Presence PresenceConfig
}

// SignalingHub is the entry point for the connection gateway. Every inbound event runs on the
// dispatcher, and each event kind maps to one handler in a flat table.
type SignalingHub struct {
	dispatcher   *Dispatcher
	participants ports.ParticipantRegistry
	meetings     ports.SessionDirectory
	metrics      ports.SignalingMetrics
	presence     *PresenceService
	relay        *RelayService
	lifecycle    *LifecycleService
	notify       *notifier
	log          *logger.ContextLogger
	handlers     map[domain.EventType]eventHandler
}

var _ ports.SignalingHandler = (*SignalingHub)(nil)

func NewSignalingHub(
	dispatcher *Dispatcher,
	participants ports.ParticipantRegistry,
	meetings ports.SessionDirectory,
	events ports.EventPublisher,
	metrics ports.SignalingMetrics,
	cfg HubConfig,
	log *zap.Logger,
) *SignalingHub {
	sugar := log.Sugar()
	h := &SignalingHub{
		dispatcher:   dispatcher,
		participants: participants,
		meetings:     meetings,
		metrics:      metrics,
		presence:     NewPresenceService(participants, meetings, events, metrics, cfg.Presence, sugar),
		relay:        NewRelayService(participants, meetings, metrics, sugar),
		lifecycle:    NewLifecycleService(meetings, events, metrics, sugar),
		notify:       &notifier{participants: participants, meetings: meetings, logger: sugar},
		log:          logger.NewContextLogger(log),
	}
	h.handlers = map[domain.EventType]eventHandler{
		domain.EventJoinMeeting:          h.handleJoin,
		domain.EventLeaveMeeting:         h.handleLeave,
		domain.EventCallUser:             h.handleCallUser,
		domain.EventMakeAnswer:           h.handleMakeAnswer,
		domain.EventICECandidate:         h.handleICECandidate,
		domain.EventScreenSharingStarted: h.handleScreenSharing,
		domain.EventPing:                 h.handlePing,
	}
	return h
}

// Connect registers a freshly accepted connection.
func (h *SignalingHub) Connect(ctx context.Context, conn domain.Connection, sink ports.FrameSink) error {
	var err error
	doErr := h.dispatcher.Do(ctx, func() {
		_, err = h.presence.Register(ctx, conn, sink)
		h.refreshGauges()
	})
	if doErr != nil {
		return doErr
	}
	if err != nil {
		return fmt.Errorf("register connection %s: %w", conn.ID, err)
	}
	h.log.Sugar(logger.WithConnectionID(ctx, string(conn.ID))).Infow("connection registered",
		"remote_addr", conn.RemoteAddr,
		"authenticated", !conn.Identity.IsZero(),
	)
	return nil
}

// Message handles one raw inbound frame. Client-facing failures are answered on the
// connection; the returned error only reports that the event could not be dispatched.
func (h *SignalingHub) Message(ctx context.Context, connID domain.ConnectionID, raw []byte) error {
	return h.dispatcher.Do(ctx, func() {
		h.handleMessage(ctx, connID, raw)
	})
}

// Disconnect runs the single cleanup path for a closed connection. Calling it twice is harmless.
func (h *SignalingHub) Disconnect(ctx context.Context, connID domain.ConnectionID) error {
	var removed bool
	err := h.dispatcher.Do(ctx, func() {
		ctx, span := tracing.TraceLifecycle(ctx, "disconnect")
		defer span.End()
		removed = h.presence.Unregister(ctx, connID)
		h.refreshGauges()
	})
	if err == nil && removed {
		h.log.Sugar(logger.WithConnectionID(ctx, string(connID))).Infow("connection unregistered")
	}
	return err
}

// Sweep removes empty meetings.
func (h *SignalingHub) Sweep(ctx context.Context) ([]domain.MeetingID, error) {
	var removed []domain.MeetingID
	err := h.dispatcher.Do(ctx, func() {
		ctx, span := tracing.TraceLifecycle(ctx, "sweep")
		defer span.End()
		removed = h.lifecycle.Sweep(ctx)
		h.refreshGauges()
	})
	return removed, err
}

// RunSweeper calls Sweep every interval until ctx is done.
func (h *SignalingHub) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.Sweep(ctx); err != nil && ctx.Err() == nil {
				h.log.LogError(ctx, err, "meeting sweep failed")
			}
		}
	}
}

// Stats returns a snapshot of the registries.
func (h *SignalingHub) Stats(ctx context.Context) (HubStats, error) {
	var stats HubStats
	err := h.dispatcher.Do(ctx, func() {
		stats = HubStats{
			Connections:  h.participants.Count(),
			Participants: h.participants.CountInMeetings(),
			Meetings:     h.meetings.List(),
		}
	})
	return stats, err
}

// Notify sends a server frame to one connection outside the dispatch table, for example a
// rate limit rejection decided by the gateway.
func (h *SignalingHub) Notify(ctx context.Context, connID domain.ConnectionID, appErr *apperrors.AppError) error {
	return h.dispatcher.Do(ctx, func() {
		h.replyError(ctx, connID, appErr)
	})
}

func (h *SignalingHub) handleMessage(ctx context.Context, connID domain.ConnectionID, raw []byte) {
	start := time.Now()
	ctx = logger.WithConnectionID(ctx, string(connID))

	frame, err := domain.DecodeFrame(raw)
	if err != nil {
		h.replyError(ctx, connID, apperrors.NewMalformedPayloadError(err))
		return
	}

	ctx, span := tracing.TraceSignalEvent(ctx, string(frame.Type), string(connID))
	defer span.End()

	handler, ok := h.handlers[frame.Type]
	if !ok {
		h.replyError(ctx, connID, apperrors.NewMalformedPayloadError(fmt.Errorf("unknown event type %q", frame.Type)))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.metrics.HandlerPanic()
			h.log.Sugar(ctx).Errorw("recovered panic in event handler", "type", frame.Type, "panic", r)
			h.replyError(ctx, connID, apperrors.NewInternalError("internal error while handling event"))
		}
		h.metrics.ObserveEvent(frame.Type, time.Since(start))
		h.refreshGauges()
	}()

	if err := handler(ctx, connID, frame.Payload); err != nil {
		tracing.RecordError(ctx, err)
		h.replyError(ctx, connID, err)
	}
}

func (h *SignalingHub) replyError(ctx context.Context, connID domain.ConnectionID, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		h.log.LogError(ctx, err, "unexpected error while handling event")
		appErr = apperrors.NewInternalError("internal error while handling event")
	}
	h.metrics.MeetingError(string(appErr.Code))

	if appErr.Code == apperrors.ErrCodeInternal {
		h.log.Sugar(ctx).Errorw("event failed", "code", appErr.Code, "error", err)
	} else {
		h.log.Sugar(ctx).Debugw("event rejected", "code", appErr.Code, "message", appErr.Message)
	}

	sendErr := h.notify.sendTo(connID, domain.EventMeetingError, domain.MeetingErrorPayload{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
	if sendErr != nil {
		h.log.Sugar(ctx).Debugw("failed to deliver meeting-error", "error", sendErr)
	}
}

func (h *SignalingHub) refreshGauges() {
	h.metrics.SetParticipants(h.participants.CountInMeetings())
	h.metrics.SetMeetings(h.meetings.Count())
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.NewMalformedPayloadError(err)
	}
	return nil
}

func (h *SignalingHub) handleJoin(ctx context.Context, connID domain.ConnectionID, payload json.RawMessage) error {
	var req domain.JoinMeetingPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	return h.presence.Join(ctx, connID, req)
}

func (h *SignalingHub) handleLeave(ctx context.Context, connID domain.ConnectionID, _ json.RawMessage) error {
	return h.presence.Leave(ctx, connID, ReasonLeave)
}

func (h *SignalingHub) handleCallUser(ctx context.Context, connID domain.ConnectionID, payload json.RawMessage) error {
	var req domain.CallUserPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	return h.relay.Route(ctx, connID, domain.SignalEnvelope{Kind: domain.SignalOffer, TargetID: req.TargetID, Payload: req.SDPOffer})
}

func (h *SignalingHub) handleMakeAnswer(ctx context.Context, connID domain.ConnectionID, payload json.RawMessage) error {
	var req domain.MakeAnswerPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	return h.relay.Route(ctx, connID, domain.SignalEnvelope{Kind: domain.SignalAnswer, TargetID: req.TargetID, Payload: req.SDPAnswer})
}

func (h *SignalingHub) handleICECandidate(ctx context.Context, connID domain.ConnectionID, payload json.RawMessage) error {
	var req domain.ICECandidatePayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	return h.relay.Route(ctx, connID, domain.SignalEnvelope{Kind: domain.SignalICECandidate, TargetID: req.TargetID, Payload: req.Candidate})
}

func (h *SignalingHub) handleScreenSharing(ctx context.Context, connID domain.ConnectionID, payload json.RawMessage) error {
	var req domain.ScreenSharingPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	return h.relay.Route(ctx, connID, domain.SignalEnvelope{Kind: domain.SignalScreenShare, TargetID: req.TargetID, Payload: req.Signal})
}

func (h *SignalingHub) handlePing(ctx context.Context, connID domain.ConnectionID, _ json.RawMessage) error {
	return h.notify.sendTo(connID, domain.EventPong, nil)
}
