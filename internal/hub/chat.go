package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
)

// HandleRoomMessage relays a chat message to every member of the room,
// sender included. Clients render an optimistic local copy and
// de-duplicate by message id. The payload is relayed verbatim so fields
// this server does not know about survive the round trip.
func (h *Hub) HandleRoomMessage(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var msg protocol.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("malformed room-message payload: %w", err)
	}
	if msg.RoomID == "" {
		h.sendError(conn, "invalid-message", "roomId is required")
		return nil
	}
	if strings.TrimSpace(msg.Message) == "" {
		h.sendError(conn, "invalid-message", "message text must not be empty")
		return nil
	}

	h.logger.Debug("Relaying chat message",
		slog.String("roomID", msg.RoomID),
		slog.String("messageID", msg.ID),
	)
	h.broadcast(protocol.NamespaceChat, msg.RoomID, protocol.EventRoomMessage, payload)
	return nil
}

// HandleTyping relays the typing indicator to the other room members. The
// server installs a TTL backstop so a client that never sends the
// trailing isTyping=false cannot leave a stuck indicator.
func (h *Hub) HandleTyping(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var signal protocol.TypingSignal
	if err := json.Unmarshal(payload, &signal); err != nil {
		return fmt.Errorf("malformed typing payload: %w", err)
	}
	if signal.RoomID == "" {
		return nil
	}
	if signal.UserID == "" {
		identity := h.identity(conn.ID)
		signal.UserID = identity.UserID
		signal.UserName = identity.UserName
	}

	h.broadcastOthers(conn.ID, protocol.NamespaceChat, signal.RoomID, protocol.EventUserTyping, signal)

	if !signal.IsTyping {
		h.sessions.ClearTypingTimer(signal.RoomID, signal.UserID)
		return nil
	}
	if h.config.TypingTTL <= 0 {
		return nil
	}

	expired := signal
	expired.IsTyping = false
	origin := conn.ID
	timer := time.AfterFunc(h.config.TypingTTL, func() {
		h.sessions.ClearTypingTimer(expired.RoomID, expired.UserID)
		h.broadcastOthers(origin, protocol.NamespaceChat, expired.RoomID, protocol.EventUserTyping, expired)
		h.logger.Debug("Typing indicator expired server-side",
			slog.String("roomID", expired.RoomID),
			slog.String("userID", expired.UserID),
		)
	})
	h.sessions.SetTypingTimer(signal.RoomID, signal.UserID, timer)
	return nil
}
