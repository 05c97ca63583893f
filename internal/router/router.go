package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yohannes-mesay/cursor-hackathon/internal/hub"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
)

// HandlerFunc processes one decoded client event for one connection.
type HandlerFunc func(ctx context.Context, conn *session.Conn, payload json.RawMessage) error

// EventRouter decodes the wire envelope and dispatches on the event name
// through a fixed, typed table. There is no dynamic handler registration:
// the full event surface is known at compile time.
type EventRouter struct {
	logger   *slog.Logger
	sessions session.Manager
	handlers map[string]HandlerFunc
}

func NewEventRouter(logger *slog.Logger, sessions session.Manager, h *hub.Hub) *EventRouter {
	return &EventRouter{
		logger:   logger.With(slog.String("component", "event_router")),
		sessions: sessions,
		handlers: map[string]HandlerFunc{
			protocol.EventAnnouncePresence: h.HandleAnnounce,

			protocol.EventJoinRoom:  h.HandleJoinRoom,
			protocol.EventLeaveRoom: h.HandleLeaveRoom,

			protocol.EventRoomMessage: h.HandleRoomMessage,
			protocol.EventTyping:      h.HandleTyping,

			protocol.EventJoinCall:     h.HandleJoinCall,
			protocol.EventLeaveCall:    h.HandleLeaveCall,
			protocol.EventCallOffer:    h.HandleCallOffer,
			protocol.EventCallAnswer:   h.HandleCallAnswer,
			protocol.EventICECandidate: h.HandleICECandidate,

			protocol.EventJoinDocRoom:    h.HandleJoinDocRoom,
			protocol.EventGetDocuments:   h.HandleGetDocuments,
			protocol.EventCreateDocument: h.HandleCreateDocument,
			protocol.EventSaveDocument:   h.HandleSaveDocument,
			protocol.EventDeleteDocument: h.HandleDeleteDocument,
			protocol.EventDocumentChange: h.HandleDocumentChange,
			protocol.EventCursorUpdate:   h.HandleCursorUpdate,
		},
	}
}

// HandleMessage is the transport's message callback.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}

	conn, ok := r.sessions.GetConnection(connID)
	if !ok {
		r.logger.Error("No session state for active connection", slog.String("connID", connID.String()))
		return
	}

	handler, ok := r.handlers[env.Event]
	if !ok {
		r.logger.Warn("Received unknown event", slog.String("event", env.Event), slog.String("connID", connID.String()))
		r.replyError(conn, "unknown-event", "no handler for event "+env.Event)
		return
	}

	r.logger.Debug("Dispatching event", slog.String("event", env.Event), slog.String("connID", connID.String()))
	if err := handler(ctx, conn, env.Payload); err != nil {
		r.logger.Warn("Event handler failed",
			slog.String("event", env.Event),
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
	}
}

func (r *EventRouter) replyError(conn *session.Conn, code, message string) {
	msg, err := protocol.Marshal(protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	conn.Transport.Send(msg)
}
