package protocol

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Identity is the client-supplied user identity. It is trusted as given;
// the server never validates it against any authority.
type Identity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// RoomRequest is the payload for join/leave events in the chat and call
// namespaces.
type RoomRequest struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// RoomNotice is broadcast to other room members when somebody joins or
// leaves.
type RoomNotice struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	RoomID   string `json:"roomId"`
}

// ChatMessage is relayed verbatim to every chat-room member, sender
// included. Clients de-duplicate by ID against their optimistic local copy.
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RoomID    string `json:"roomId"`
}

// TypingSignal carries the typing indicator both directions. The server
// never debounces; the liveness of the trailing isTyping=false is the
// client's job, with an optional server-side TTL as a backstop.
type TypingSignal struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

// CallPeer identifies a call participant in join/leave notifications.
type CallPeer struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// CallOffer, CallAnswer and ICECandidate are the relayed forms of the
// signaling events. The negotiation payloads are opaque to the server.
type CallOffer struct {
	Offer        json.RawMessage `json:"offer"`
	FromUserID   string          `json:"fromUserId"`
	FromUserName string          `json:"fromUserName"`
}

type CallAnswer struct {
	Answer     json.RawMessage `json:"answer"`
	FromUserID string          `json:"fromUserId"`
}

type ICECandidate struct {
	Candidate  json.RawMessage `json:"candidate"`
	FromUserID string          `json:"fromUserId"`
}

// Document is the authoritative unit of collaborative editing. Saves
// replace it wholesale; the most recent save wins.
type Document struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	LastModified   time.Time `json:"lastModified"`
	LastModifiedBy string    `json:"lastModifiedBy"`
}

// Document change kinds.
const (
	ChangeInsert  = "insert"
	ChangeDelete  = "delete"
	ChangeReplace = "replace"
)

// DocumentChange is an advisory live-typing event. It never mutates the
// stored document; only a save does.
type DocumentChange struct {
	Type      string    `json:"type"`
	Position  int       `json:"position"`
	Content   string    `json:"content"`
	Length    int       `json:"length"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentChangeRequest is the inbound document-change payload.
type DocumentChangeRequest struct {
	RoomID     string         `json:"roomId"`
	DocumentID string         `json:"documentId"`
	Change     DocumentChange `json:"change"`
}

// RoomRef is the payload for join-doc-room and get-documents.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// DocumentRequest is the inbound create-document / save-document payload.
type DocumentRequest struct {
	RoomID   string   `json:"roomId"`
	Document Document `json:"document"`
}

// DeleteDocumentRequest is the inbound delete-document payload.
type DeleteDocumentRequest struct {
	RoomID     string `json:"roomId"`
	DocumentID string `json:"documentId"`
}

// Selection is a character range in a document.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CursorUpdate is the inbound cursor position report.
type CursorUpdate struct {
	RoomID    string    `json:"roomId"`
	Cursor    int       `json:"cursor"`
	Selection Selection `json:"selection"`
}

// CursorBroadcast is the advisory cursor event fanned out to other
// doc-room members.
type CursorBroadcast struct {
	UserID    string    `json:"userId"`
	Cursor    int       `json:"cursor"`
	Selection Selection `json:"selection"`
}

// ErrorPayload is sent to the originating connection only, for boundary
// validation failures. Fan-out operations never produce it.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Marshal wraps a payload in an Envelope and encodes it.
func Marshal(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}
