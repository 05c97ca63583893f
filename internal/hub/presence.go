package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
)

// HandleAnnounce registers or replaces the identity for a connection and
// rebroadcasts the roster to everyone. Repeated announces are idempotent.
func (h *Hub) HandleAnnounce(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var identity protocol.Identity
	if err := json.Unmarshal(payload, &identity); err != nil {
		return fmt.Errorf("malformed announce-presence payload: %w", err)
	}
	if identity.UserID == "" {
		identity = session.AnonymousIdentity(conn.ID)
	}

	if err := h.sessions.Announce(conn.ID, identity); err != nil {
		return err
	}
	h.logger.Info("Presence announced",
		slog.String("userID", identity.UserID),
		slog.String("userName", identity.UserName),
	)
	h.BroadcastRoster()
	return nil
}

// BroadcastRoster pushes the full online-user list to every connection.
func (h *Hub) BroadcastRoster() {
	roster := h.sessions.Roster()
	msg, err := protocol.Marshal(protocol.EventUsersOnline, roster)
	if err != nil {
		h.logger.Error("Failed to marshal roster", slog.Any("error", err))
		return
	}
	for _, conn := range h.sessions.AllConnections() {
		conn.Transport.Send(msg)
	}
	h.logger.Debug("Broadcast roster", slog.Int("online", len(roster)))
}

// SendRoster pushes the current roster to a single, freshly connected
// client so it does not have to wait for the next presence change.
func (h *Hub) SendRoster(conn *session.Conn) {
	h.sendTo(conn, protocol.EventUsersOnline, h.sessions.Roster())
}
