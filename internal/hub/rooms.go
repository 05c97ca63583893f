package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
)

// requestIdentity prefers the identity carried in the request payload and
// falls back to the connection's announced (or anonymous) identity. Some
// clients join rooms before announcing; notifications must still carry a
// usable display name.
func (h *Hub) requestIdentity(conn *session.Conn, userID, userName string) protocol.Identity {
	if userID != "" {
		if userName == "" {
			userName = "Anonymous"
		}
		return protocol.Identity{UserID: userID, UserName: userName}
	}
	return h.identity(conn.ID)
}

// HandleJoinRoom adds the connection to a chat room and tells the other
// members. Joining a room twice is a no-op.
func (h *Hub) HandleJoinRoom(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.RoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed join-room payload: %w", err)
	}
	if req.RoomID == "" {
		h.sendError(conn, "invalid-room", "roomId is required")
		return nil
	}

	already, err := h.sessions.Join(conn.ID, protocol.NamespaceChat, req.RoomID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	identity := h.requestIdentity(conn, req.UserID, req.UserName)
	h.logger.Info("User joined chat room",
		slog.String("roomID", req.RoomID),
		slog.String("userID", identity.UserID),
	)
	h.broadcastOthers(conn.ID, protocol.NamespaceChat, req.RoomID, protocol.EventUserJoinedRoom, protocol.RoomNotice{
		UserID:   identity.UserID,
		UserName: identity.UserName,
		RoomID:   req.RoomID,
	})
	return nil
}

// HandleLeaveRoom removes the membership and tells the remaining members.
func (h *Hub) HandleLeaveRoom(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.RoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed leave-room payload: %w", err)
	}
	if req.RoomID == "" {
		h.sendError(conn, "invalid-room", "roomId is required")
		return nil
	}

	if err := h.sessions.Leave(conn.ID, protocol.NamespaceChat, req.RoomID); err != nil {
		return err
	}

	identity := h.requestIdentity(conn, req.UserID, req.UserName)
	h.logger.Info("User left chat room",
		slog.String("roomID", req.RoomID),
		slog.String("userID", identity.UserID),
	)
	h.broadcast(protocol.NamespaceChat, req.RoomID, protocol.EventUserLeftRoom, protocol.RoomNotice{
		UserID:   identity.UserID,
		UserName: identity.UserName,
		RoomID:   req.RoomID,
	})
	return nil
}
