package hub

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
)

// HandleConnect runs once after a connection is registered: the fresh
// client gets the current roster without waiting for a presence change.
func (h *Hub) HandleConnect(conn *session.Conn) {
	h.SendRoster(conn)
}

// HandleDisconnect tears down everything a connection held. The abrupt
// network drop is the common case here, not an exception path: the client
// usually issued no leave events first. Each room the connection was in
// gets exactly one departure notification, and the roster is rebroadcast
// exactly once.
func (h *Hub) HandleDisconnect(connID uuid.UUID) {
	identity, announced, rooms, err := h.sessions.DeregisterConnection(connID)
	if err != nil {
		h.logger.Error("Failed to deregister connection", slog.String("connID", connID.String()), slog.Any("error", err))
		return
	}
	if !announced {
		identity = session.AnonymousIdentity(connID)
	}

	for _, ref := range rooms {
		switch ref.Namespace {
		case protocol.NamespaceChat:
			h.sessions.ClearTypingTimer(ref.RoomID, identity.UserID)
			h.broadcast(protocol.NamespaceChat, ref.RoomID, protocol.EventUserLeftRoom, protocol.RoomNotice{
				UserID:   identity.UserID,
				UserName: identity.UserName,
				RoomID:   ref.RoomID,
			})
		case protocol.NamespaceCall:
			h.broadcast(protocol.NamespaceCall, ref.RoomID, protocol.EventUserLeftCall, protocol.CallPeer{
				UserID: identity.UserID,
			})
		case protocol.NamespaceDoc:
			h.broadcast(protocol.NamespaceDoc, ref.RoomID, protocol.EventCollaboratorLeft, protocol.CallPeer{
				UserID: identity.UserID,
			})
		}
	}

	if announced {
		h.BroadcastRoster()
	}
	h.logger.Info("Connection cleaned up",
		slog.String("connID", connID.String()),
		slog.String("userID", identity.UserID),
		slog.Int("rooms", len(rooms)),
	)
}
