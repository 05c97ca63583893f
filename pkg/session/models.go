package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/transport"
)

// representation of a single transport-layer connection.
type Conn struct {
	ID        uuid.UUID
	IPAddress string
	Transport *transport.Connection // The actual connection for sending messages
	CreatedAt time.Time
}

// RoomRef identifies one membership: a room id within one namespace.
type RoomRef struct {
	Namespace protocol.Namespace
	RoomID    string
}

// Key returns the membership map key for this reference.
func (r RoomRef) Key() string {
	return r.Namespace.Key(r.RoomID)
}

// AnonymousIdentity synthesizes the placeholder identity used for
// connections that act before (or without) announcing who they are.
func AnonymousIdentity(connID uuid.UUID) protocol.Identity {
	return protocol.Identity{
		UserID:   "anon-" + connID.String()[:8],
		UserName: "Anonymous",
	}
}
