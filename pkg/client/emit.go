package client

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
)

// Announce publishes the caller's identity to the presence registry.
func (c *Client) Announce(id protocol.Identity) error {
	return c.Emit(protocol.EventAnnouncePresence, id)
}

// JoinRoom enters a chat room.
func (c *Client) JoinRoom(roomID string) error {
	return c.Emit(protocol.EventJoinRoom, protocol.RoomRequest{
		RoomID:   roomID,
		UserID:   c.config.Identity.UserID,
		UserName: c.config.Identity.UserName,
	})
}

// LeaveRoom exits a chat room.
func (c *Client) LeaveRoom(roomID string) error {
	return c.Emit(protocol.EventLeaveRoom, protocol.RoomRequest{
		RoomID:   roomID,
		UserID:   c.config.Identity.UserID,
		UserName: c.config.Identity.UserName,
	})
}

// SendMessage fans a chat message out to everyone in its room,
// the sender included.
func (c *Client) SendMessage(msg protocol.ChatMessage) error {
	return c.Emit(protocol.EventRoomMessage, msg)
}

// SetTyping reports a typing state change to the other room members.
func (c *Client) SetTyping(roomID string, isTyping bool) error {
	return c.Emit(protocol.EventTyping, protocol.TypingSignal{
		RoomID:   roomID,
		UserID:   c.config.Identity.UserID,
		UserName: c.config.Identity.UserName,
		IsTyping: isTyping,
	})
}

// StartTyping emits isTyping=true and schedules the trailing
// isTyping=false once the caller stops invoking it. Call it on every
// keystroke; the stop signal fires TypingDebounce after the last one.
func (c *Client) StartTyping(roomID string) error {
	c.typingMu.Lock()
	if timer, ok := c.typingTimers[roomID]; ok {
		timer.Stop()
	}
	c.typingTimers[roomID] = time.AfterFunc(c.config.TypingDebounce, func() {
		c.typingMu.Lock()
		delete(c.typingTimers, roomID)
		c.typingMu.Unlock()
		if err := c.SetTyping(roomID, false); err != nil {
			c.logger.Warn("Failed to send trailing typing stop", slog.Any("error", err))
		}
	})
	c.typingMu.Unlock()

	return c.SetTyping(roomID, true)
}

// JoinCall enters a call room. Peers already present answer with
// user-joined-call driven offers.
func (c *Client) JoinCall(roomID string) error {
	return c.Emit(protocol.EventJoinCall, protocol.RoomRequest{
		RoomID:   roomID,
		UserID:   c.config.Identity.UserID,
		UserName: c.config.Identity.UserName,
	})
}

// LeaveCall exits a call room.
func (c *Client) LeaveCall(roomID string) error {
	return c.Emit(protocol.EventLeaveCall, protocol.RoomRequest{
		RoomID:   roomID,
		UserID:   c.config.Identity.UserID,
		UserName: c.config.Identity.UserName,
	})
}

type signalingPayload struct {
	RoomID string          `json:"roomId"`
	Offer  json.RawMessage `json:"offer,omitempty"`
	Answer json.RawMessage `json:"answer,omitempty"`
	Cand   json.RawMessage `json:"candidate,omitempty"`
}

// SendOffer relays an SDP offer to the other call members. The offer
// body is opaque to the server.
func (c *Client) SendOffer(roomID string, offer json.RawMessage) error {
	return c.Emit(protocol.EventCallOffer, signalingPayload{RoomID: roomID, Offer: offer})
}

// SendAnswer relays an SDP answer to the other call members.
func (c *Client) SendAnswer(roomID string, answer json.RawMessage) error {
	return c.Emit(protocol.EventCallAnswer, signalingPayload{RoomID: roomID, Answer: answer})
}

// SendICECandidate relays an ICE candidate to the other call members.
func (c *Client) SendICECandidate(roomID string, candidate json.RawMessage) error {
	return c.Emit(protocol.EventICECandidate, signalingPayload{RoomID: roomID, Cand: candidate})
}

// JoinDocRoom enters a document workspace; the server replies with the
// current documents-list.
func (c *Client) JoinDocRoom(roomID string) error {
	return c.Emit(protocol.EventJoinDocRoom, protocol.RoomRequest{
		RoomID:   roomID,
		UserID:   c.config.Identity.UserID,
		UserName: c.config.Identity.UserName,
	})
}

// GetDocuments asks for the room's current document list.
func (c *Client) GetDocuments(roomID string) error {
	return c.Emit(protocol.EventGetDocuments, protocol.RoomRef{RoomID: roomID})
}

// CreateDocument adds a document to the room's store.
func (c *Client) CreateDocument(roomID string, doc protocol.Document) error {
	return c.Emit(protocol.EventCreateDocument, protocol.DocumentRequest{
		RoomID:   roomID,
		Document: doc,
	})
}

// SaveDocument persists a full document snapshot, last write wins.
func (c *Client) SaveDocument(roomID string, doc protocol.Document) error {
	return c.Emit(protocol.EventSaveDocument, protocol.DocumentRequest{
		RoomID:   roomID,
		Document: doc,
	})
}

// DeleteDocument removes a document from the room's store.
func (c *Client) DeleteDocument(roomID, documentID string) error {
	return c.Emit(protocol.EventDeleteDocument, protocol.DeleteDocumentRequest{
		RoomID:     roomID,
		DocumentID: documentID,
	})
}

// SendDocumentChange streams one edit delta to the other collaborators.
func (c *Client) SendDocumentChange(roomID, documentID string, change protocol.DocumentChange) error {
	return c.Emit(protocol.EventDocumentChange, protocol.DocumentChangeRequest{
		RoomID:     roomID,
		DocumentID: documentID,
		Change:     change,
	})
}

// SendCursorUpdate shares the caller's cursor position with the other
// collaborators.
func (c *Client) SendCursorUpdate(roomID string, cursor int, selection protocol.Selection) error {
	return c.Emit(protocol.EventCursorUpdate, protocol.CursorUpdate{
		RoomID:    roomID,
		Cursor:    cursor,
		Selection: selection,
	})
}
