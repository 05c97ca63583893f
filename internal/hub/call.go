package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
)

// The call relay never interprets offer/answer/candidate contents. Only
// the routing field (roomId) is read out of the payload; the negotiation
// blobs pass through untouched, keeping the server media-agnostic.

// HandleJoinCall adds the connection to a call room and notifies the
// members that were already there. The rendezvous rule is asymmetric:
// whoever was already in the call offers to whoever just joined, so the
// newcomer is NOT told about the existing members.
func (h *Hub) HandleJoinCall(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.RoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed join-call payload: %w", err)
	}
	if req.RoomID == "" {
		h.sendError(conn, "invalid-room", "roomId is required")
		return nil
	}

	already, err := h.sessions.Join(conn.ID, protocol.NamespaceCall, req.RoomID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	identity := h.requestIdentity(conn, req.UserID, req.UserName)
	h.logger.Info("User joined call",
		slog.String("roomID", req.RoomID),
		slog.String("userID", identity.UserID),
	)
	// Only the members that were already in the call hear about the
	// newcomer; they initiate the offers.
	h.broadcastOthers(conn.ID, protocol.NamespaceCall, req.RoomID, protocol.EventUserJoinedCall, protocol.CallPeer{
		UserID:   identity.UserID,
		UserName: identity.UserName,
	})
	return nil
}

// HandleLeaveCall removes the membership and tells the remaining
// participants so they tear down their peer connection to the departed.
func (h *Hub) HandleLeaveCall(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.RoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed leave-call payload: %w", err)
	}
	if req.RoomID == "" {
		return nil
	}

	if err := h.sessions.Leave(conn.ID, protocol.NamespaceCall, req.RoomID); err != nil {
		return err
	}
	identity := h.requestIdentity(conn, req.UserID, req.UserName)
	h.logger.Info("User left call",
		slog.String("roomID", req.RoomID),
		slog.String("userID", identity.UserID),
	)
	h.broadcast(protocol.NamespaceCall, req.RoomID, protocol.EventUserLeftCall, protocol.CallPeer{
		UserID: identity.UserID,
	})
	return nil
}

// HandleCallOffer forwards an opaque offer to the other call members with
// the sender's identity attached.
func (h *Hub) HandleCallOffer(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	roomID, blob, err := signalingFields(payload, "offer")
	if err != nil {
		return fmt.Errorf("malformed call-offer payload: %w", err)
	}

	identity := h.identity(conn.ID)
	h.broadcastOthers(conn.ID, protocol.NamespaceCall, roomID, protocol.EventCallOffer, protocol.CallOffer{
		Offer:        blob,
		FromUserID:   identity.UserID,
		FromUserName: identity.UserName,
	})
	return nil
}

// HandleCallAnswer forwards an opaque answer to the other call members.
func (h *Hub) HandleCallAnswer(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	roomID, blob, err := signalingFields(payload, "answer")
	if err != nil {
		return fmt.Errorf("malformed call-answer payload: %w", err)
	}

	identity := h.identity(conn.ID)
	h.broadcastOthers(conn.ID, protocol.NamespaceCall, roomID, protocol.EventCallAnswer, protocol.CallAnswer{
		Answer:     blob,
		FromUserID: identity.UserID,
	})
	return nil
}

// HandleICECandidate forwards an opaque ICE candidate to the other call
// members.
func (h *Hub) HandleICECandidate(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	roomID, blob, err := signalingFields(payload, "candidate")
	if err != nil {
		return fmt.Errorf("malformed ice-candidate payload: %w", err)
	}

	identity := h.identity(conn.ID)
	h.broadcastOthers(conn.ID, protocol.NamespaceCall, roomID, protocol.EventICECandidate, protocol.ICECandidate{
		Candidate:  blob,
		FromUserID: identity.UserID,
	})
	return nil
}

// signalingFields pulls the routing roomId and the opaque negotiation
// blob out of a signaling payload without decoding the blob.
func signalingFields(payload json.RawMessage, field string) (string, json.RawMessage, error) {
	roomID := gjson.GetBytes(payload, "roomId")
	if !roomID.Exists() || roomID.String() == "" {
		return "", nil, fmt.Errorf("missing roomId")
	}
	blob := gjson.GetBytes(payload, field)
	if !blob.Exists() {
		return "", nil, fmt.Errorf("missing %s", field)
	}
	return roomID.String(), json.RawMessage(blob.Raw), nil
}
