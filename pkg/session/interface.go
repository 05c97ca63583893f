package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/transport"
)

// Manager holds all ephemeral server state: which connections exist, who
// they are, which rooms they joined, and each room's documents. It is pure
// state; broadcasting side effects belong to the hub. Implementations must
// be safe for concurrent use.
type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(conn *transport.Connection, ipAddr string) (*Conn, error)
	// DeregisterConnection removes the connection, its presence entry and
	// every room membership it held. It reports the identity the
	// connection had announced (ok=false if it never did) and the rooms it
	// was removed from, so the caller can broadcast departures.
	DeregisterConnection(connID uuid.UUID) (identity protocol.Identity, announced bool, rooms []RoomRef, err error)
	GetConnection(connID uuid.UUID) (*Conn, bool)
	CountConnectionsByIP(ipAddr string) int
	FindOldestConnectionByIP(ipAddr string) (*Conn, bool)
	AllConnections() []*Conn

	// --- Presence Registry ---
	// Announce registers or replaces the identity for a connection.
	Announce(connID uuid.UUID, identity protocol.Identity) error
	// IdentityOf returns the announced identity for a connection.
	IdentityOf(connID uuid.UUID) (protocol.Identity, bool)
	// Roster lists the user id of every announced connection. A user with
	// two connections appears twice.
	Roster() []string

	// --- Room Membership ---
	// Join adds the connection to the (namespace, roomId) group, creating
	// the group implicitly. Joining twice is a no-op, not an error.
	Join(connID uuid.UUID, ns protocol.Namespace, roomID string) (alreadyMember bool, err error)
	Leave(connID uuid.UUID, ns protocol.Namespace, roomID string) error
	// Members returns the current connections in the group; empty if the
	// group does not exist.
	Members(ns protocol.Namespace, roomID string) []*Conn
	// Rooms returns every membership held by a connection.
	Rooms(connID uuid.UUID) []RoomRef

	// --- Document Store ---
	Documents(roomID string) []protocol.Document
	// CreateDocument appends to the room's list and returns the new list.
	CreateDocument(roomID string, doc protocol.Document) []protocol.Document
	// SaveDocument replaces the stored document matching doc.ID wholesale.
	// ok=false means no document with that id exists and nothing changed.
	SaveDocument(roomID string, doc protocol.Document) (saved protocol.Document, ok bool)
	// DeleteDocument removes the matching document and returns the new list.
	DeleteDocument(roomID, documentID string) []protocol.Document

	// --- Typing Backstop Timers ---
	// SetTypingTimer installs a cleanup timer for a (room, user) typing
	// indicator, stopping any previous one.
	SetTypingTimer(roomID, userID string, timer *time.Timer)
	// ClearTypingTimer stops and removes the timer, if present.
	ClearTypingTimer(roomID, userID string)
}
