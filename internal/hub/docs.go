package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
)

// docRoomID accepts both the {"roomId": "..."} object form and a bare
// JSON string, which some clients send for join-doc-room/get-documents.
func docRoomID(payload json.RawMessage) (string, error) {
	var ref protocol.RoomRef
	if err := json.Unmarshal(payload, &ref); err == nil && ref.RoomID != "" {
		return ref.RoomID, nil
	}
	var roomID string
	if err := json.Unmarshal(payload, &roomID); err == nil && roomID != "" {
		return roomID, nil
	}
	return "", fmt.Errorf("missing roomId")
}

// HandleJoinDocRoom adds the connection to a document room, hands it the
// room's current document list, and tells the other collaborators.
func (h *Hub) HandleJoinDocRoom(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	roomID, err := docRoomID(payload)
	if err != nil {
		return fmt.Errorf("malformed join-doc-room payload: %w", err)
	}

	already, err := h.sessions.Join(conn.ID, protocol.NamespaceDoc, roomID)
	if err != nil {
		return err
	}

	h.sendTo(conn, protocol.EventDocumentsList, h.sessions.Documents(roomID))

	if already {
		return nil
	}
	identity := h.identity(conn.ID)
	h.logger.Info("Collaborator joined doc room",
		slog.String("roomID", roomID),
		slog.String("userID", identity.UserID),
	)
	h.broadcastOthers(conn.ID, protocol.NamespaceDoc, roomID, protocol.EventCollaboratorJoined, protocol.CallPeer{
		UserID:   identity.UserID,
		UserName: identity.UserName,
	})
	return nil
}

// HandleGetDocuments returns the room's current document list to the
// requester only.
func (h *Hub) HandleGetDocuments(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	roomID, err := docRoomID(payload)
	if err != nil {
		return fmt.Errorf("malformed get-documents payload: %w", err)
	}
	h.sendTo(conn, protocol.EventDocumentsList, h.sessions.Documents(roomID))
	return nil
}

// HandleCreateDocument appends the document to the room's list and pushes
// the updated list to every doc-room member, creator included.
func (h *Hub) HandleCreateDocument(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.DocumentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed create-document payload: %w", err)
	}
	if req.RoomID == "" || req.Document.ID == "" {
		h.sendError(conn, "invalid-document", "roomId and document.id are required")
		return nil
	}

	list := h.sessions.CreateDocument(req.RoomID, req.Document)
	h.logger.Info("Document created",
		slog.String("roomID", req.RoomID),
		slog.String("docID", req.Document.ID),
	)
	h.broadcast(protocol.NamespaceDoc, req.RoomID, protocol.EventDocumentsList, list)
	return nil
}

// HandleSaveDocument replaces the stored document wholesale and pushes the
// updated document to every member. There is no merge and no version
// check: the last save wins. A save against an id the room has never seen
// changes nothing and is reported to the origin only.
func (h *Hub) HandleSaveDocument(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.DocumentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed save-document payload: %w", err)
	}
	if req.RoomID == "" || req.Document.ID == "" {
		h.sendError(conn, "invalid-document", "roomId and document.id are required")
		return nil
	}

	saved, ok := h.sessions.SaveDocument(req.RoomID, req.Document)
	if !ok {
		h.logger.Warn("Save dropped: unknown document id",
			slog.String("roomID", req.RoomID),
			slog.String("docID", req.Document.ID),
		)
		h.sendError(conn, "unknown-document", "no document with id "+req.Document.ID+" in room")
		return nil
	}

	h.broadcast(protocol.NamespaceDoc, req.RoomID, protocol.EventDocumentUpdated, saved)
	return nil
}

// HandleDeleteDocument removes the document and pushes the shrunken list
// to every member.
func (h *Hub) HandleDeleteDocument(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.DeleteDocumentRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed delete-document payload: %w", err)
	}
	if req.RoomID == "" || req.DocumentID == "" {
		h.sendError(conn, "invalid-document", "roomId and documentId are required")
		return nil
	}

	list := h.sessions.DeleteDocument(req.RoomID, req.DocumentID)
	h.logger.Info("Document deleted",
		slog.String("roomID", req.RoomID),
		slog.String("docID", req.DocumentID),
	)
	h.broadcast(protocol.NamespaceDoc, req.RoomID, protocol.EventDocumentsList, list)
	return nil
}

// HandleDocumentChange relays a live-typing edit to the OTHER members.
// The change is advisory: the stored document only moves on save.
func (h *Hub) HandleDocumentChange(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.DocumentChangeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed document-change payload: %w", err)
	}
	if req.RoomID == "" {
		return nil
	}
	if req.Change.Position < 0 || req.Change.Length < 0 {
		h.logger.Warn("Dropping edit event with out-of-range offsets",
			slog.String("roomID", req.RoomID),
			slog.Int("position", req.Change.Position),
			slog.Int("length", req.Change.Length),
		)
		return nil
	}

	h.broadcastOthers(conn.ID, protocol.NamespaceDoc, req.RoomID, protocol.EventDocumentChange, req.Change)
	return nil
}

// HandleCursorUpdate relays a cursor/selection position to the other
// members for the "collaborator is editing here" indicator.
func (h *Hub) HandleCursorUpdate(ctx context.Context, conn *session.Conn, payload json.RawMessage) error {
	var req protocol.CursorUpdate
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("malformed cursor-update payload: %w", err)
	}
	if req.RoomID == "" {
		return nil
	}

	identity := h.identity(conn.ID)
	h.broadcastOthers(conn.ID, protocol.NamespaceDoc, req.RoomID, protocol.EventCursorUpdate, protocol.CursorBroadcast{
		UserID:    identity.UserID,
		Cursor:    req.Cursor,
		Selection: req.Selection,
	})
	return nil
}
