// Package hub implements the room/presence/signaling/document semantics on
// top of the session manager. All of its operations are best-effort
// broadcast primitives: they never report errors back for fan-out, only
// for malformed input at the call boundary.
package hub

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
)

type Config struct {
	// TypingTTL is the server-side backstop for stuck typing indicators.
	// Zero trusts the client debounce alone.
	TypingTTL time.Duration
}

type Hub struct {
	logger   *slog.Logger
	sessions session.Manager
	config   Config
}

func New(logger *slog.Logger, sessions session.Manager, config Config) *Hub {
	return &Hub{
		logger:   logger.With(slog.String("component", "hub")),
		sessions: sessions,
		config:   config,
	}
}

// identity resolves who a connection is: the announced identity, or the
// anonymous placeholder when announce never happened.
func (h *Hub) identity(connID uuid.UUID) protocol.Identity {
	if identity, ok := h.sessions.IdentityOf(connID); ok {
		return identity
	}
	return session.AnonymousIdentity(connID)
}

// sendTo delivers one event to one connection.
func (h *Hub) sendTo(conn *session.Conn, event string, payload any) {
	msg, err := protocol.Marshal(event, payload)
	if err != nil {
		h.logger.Error("Failed to marshal outbound event", slog.String("event", event), slog.Any("error", err))
		return
	}
	conn.Transport.Send(msg)
}

// broadcast fans an event out to every member of a room. Fan-out into a
// room with no members delivers nothing and is not an error.
func (h *Hub) broadcast(ns protocol.Namespace, roomID, event string, payload any) {
	h.fanOut(ns, roomID, event, payload, uuid.Nil)
}

// broadcastOthers fans an event out to every member except the origin.
func (h *Hub) broadcastOthers(origin uuid.UUID, ns protocol.Namespace, roomID, event string, payload any) {
	h.fanOut(ns, roomID, event, payload, origin)
}

func (h *Hub) fanOut(ns protocol.Namespace, roomID, event string, payload any, exclude uuid.UUID) {
	msg, err := protocol.Marshal(event, payload)
	if err != nil {
		h.logger.Error("Failed to marshal outbound event", slog.String("event", event), slog.Any("error", err))
		return
	}

	members := h.sessions.Members(ns, roomID)
	delivered := 0
	for _, member := range members {
		if member.ID == exclude {
			continue
		}
		member.Transport.Send(msg)
		delivered++
	}
	h.logger.Debug("Fanned out event",
		slog.String("event", event),
		slog.String("room", ns.Key(roomID)),
		slog.Int("delivered", delivered),
	)
}

// sendError reports a boundary validation failure to the origin only.
func (h *Hub) sendError(conn *session.Conn, code, message string) {
	h.sendTo(conn, protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
}
