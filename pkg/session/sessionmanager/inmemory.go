package sessionmanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/session"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/transport"
)

// InMemoryManager keeps every piece of session state in process memory.
// Nothing survives a restart; that is the deployment contract.
type InMemoryManager struct {
	conns    map[uuid.UUID]*session.Conn
	presence map[uuid.UUID]protocol.Identity

	rooms       map[string]map[uuid.UUID]*session.Conn
	memberships map[uuid.UUID]map[string]session.RoomRef

	docs map[string][]protocol.Document

	typing map[typingKey]*time.Timer

	connMu   sync.RWMutex
	roomMu   sync.RWMutex
	docMu    sync.RWMutex
	typingMu sync.Mutex

	logger *slog.Logger
}

type typingKey struct {
	roomID string
	userID string
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:       make(map[uuid.UUID]*session.Conn),
		presence:    make(map[uuid.UUID]protocol.Identity),
		rooms:       make(map[string]map[uuid.UUID]*session.Conn),
		memberships: make(map[uuid.UUID]map[string]session.RoomRef),
		docs:        make(map[string][]protocol.Document),
		typing:      make(map[typingKey]*time.Timer),
		logger:      logger.With(slog.String("component", "session_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ session.Manager = (*InMemoryManager)(nil)

// --- Connection Lifecycle ---

func (m *InMemoryManager) RegisterConnection(conn *transport.Connection, ipAddr string) (*session.Conn, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := conn.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &session.Conn{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: conn,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (protocol.Identity, bool, []session.RoomRef, error) {
	m.connMu.Lock()
	_, ok := m.conns[connID]
	if !ok {
		// already deregistered
		m.connMu.Unlock()
		return protocol.Identity{}, false, nil, nil
	}
	delete(m.conns, connID)
	identity, announced := m.presence[connID]
	delete(m.presence, connID)
	m.connMu.Unlock()

	// Sweep all memberships the connection held.
	m.roomMu.Lock()
	held := m.memberships[connID]
	refs := make([]session.RoomRef, 0, len(held))
	for key, ref := range held {
		refs = append(refs, ref)
		m.detachLocked(connID, key)
	}
	delete(m.memberships, connID)
	m.roomMu.Unlock()

	m.logger.Debug("Connection deregistered",
		slog.String("connID", connID.String()),
		slog.Int("rooms", len(refs)),
	)
	return identity, announced, refs, nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*session.Conn, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) CountConnectionsByIP(ipAddr string) int {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	count := 0
	for _, conn := range m.conns {
		if conn.IPAddress == ipAddr {
			count++
		}
	}
	return count
}

func (m *InMemoryManager) FindOldestConnectionByIP(ipAddr string) (*session.Conn, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	var oldest *session.Conn
	for _, conn := range m.conns {
		if conn.IPAddress != ipAddr {
			continue
		}
		if oldest == nil || conn.CreatedAt.Before(oldest.CreatedAt) {
			oldest = conn
		}
	}
	return oldest, oldest != nil
}

func (m *InMemoryManager) AllConnections() []*session.Conn {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conns := make([]*session.Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// --- Presence Registry ---

func (m *InMemoryManager) Announce(connID uuid.UUID, identity protocol.Identity) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if _, ok := m.conns[connID]; !ok {
		return errors.New("cannot announce presence for unknown connection")
	}
	m.presence[connID] = identity
	m.logger.Debug("Presence announced",
		slog.String("connID", connID.String()),
		slog.String("userID", identity.UserID),
	)
	return nil
}

func (m *InMemoryManager) IdentityOf(connID uuid.UUID) (protocol.Identity, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	identity, ok := m.presence[connID]
	return identity, ok
}

// Roster projects the presence registry to user ids, one entry per
// connection. The same user with two tabs open appears twice.
func (m *InMemoryManager) Roster() []string {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	roster := make([]string, 0, len(m.presence))
	for _, identity := range m.presence {
		roster = append(roster, identity.UserID)
	}
	return roster
}

// --- Room Membership ---

func (m *InMemoryManager) Join(connID uuid.UUID, ns protocol.Namespace, roomID string) (bool, error) {
	m.connMu.RLock()
	conn, ok := m.conns[connID]
	m.connMu.RUnlock()
	if !ok {
		return false, errors.New("cannot join room: connection not found")
	}

	ref := session.RoomRef{Namespace: ns, RoomID: roomID}
	key := ref.Key()

	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	if _, member := m.memberships[connID][key]; member {
		return true, nil
	}

	// Find or create the room; rooms exist only as membership sets.
	room, exists := m.rooms[key]
	if !exists {
		room = make(map[uuid.UUID]*session.Conn)
		m.rooms[key] = room
	}
	room[connID] = conn

	held, exists := m.memberships[connID]
	if !exists {
		held = make(map[string]session.RoomRef)
		m.memberships[connID] = held
	}
	held[key] = ref

	m.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("room", key))
	return false, nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, ns protocol.Namespace, roomID string) error {
	key := ns.Key(roomID)

	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	m.detachLocked(connID, key)
	if held, ok := m.memberships[connID]; ok {
		delete(held, key)
		if len(held) == 0 {
			delete(m.memberships, connID)
		}
	}
	m.logger.Debug("Connection left room", slog.String("connID", connID.String()), slog.String("room", key))
	return nil
}

// detachLocked removes the connection from one room set and reaps the
// room when it empties. Caller holds roomMu.
func (m *InMemoryManager) detachLocked(connID uuid.UUID, key string) {
	room, ok := m.rooms[key]
	if !ok {
		return
	}
	delete(room, connID)
	// For memory hygiene, remove the room if it's now empty.
	if len(room) == 0 {
		delete(m.rooms, key)
		m.logger.Debug("Removed empty room", slog.String("room", key))
	}
}

func (m *InMemoryManager) Members(ns protocol.Namespace, roomID string) []*session.Conn {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room := m.rooms[ns.Key(roomID)]
	members := make([]*session.Conn, 0, len(room))
	for _, conn := range room {
		members = append(members, conn)
	}
	return members
}

func (m *InMemoryManager) Rooms(connID uuid.UUID) []session.RoomRef {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	held := m.memberships[connID]
	refs := make([]session.RoomRef, 0, len(held))
	for _, ref := range held {
		refs = append(refs, ref)
	}
	return refs
}

// --- Document Store ---

func (m *InMemoryManager) Documents(roomID string) []protocol.Document {
	m.docMu.RLock()
	defer m.docMu.RUnlock()
	return copyDocs(m.docs[roomID])
}

func (m *InMemoryManager) CreateDocument(roomID string, doc protocol.Document) []protocol.Document {
	m.docMu.Lock()
	defer m.docMu.Unlock()

	m.docs[roomID] = append(m.docs[roomID], doc)
	m.logger.Debug("Document created", slog.String("roomID", roomID), slog.String("docID", doc.ID))
	return copyDocs(m.docs[roomID])
}

func (m *InMemoryManager) SaveDocument(roomID string, doc protocol.Document) (protocol.Document, bool) {
	m.docMu.Lock()
	defer m.docMu.Unlock()

	list := m.docs[roomID]
	for i := range list {
		if list[i].ID == doc.ID {
			// Wholesale replacement; the last save wins.
			list[i] = doc
			return doc, true
		}
	}
	return protocol.Document{}, false
}

func (m *InMemoryManager) DeleteDocument(roomID, documentID string) []protocol.Document {
	m.docMu.Lock()
	defer m.docMu.Unlock()

	list := m.docs[roomID]
	filtered := list[:0]
	for _, doc := range list {
		if doc.ID != documentID {
			filtered = append(filtered, doc)
		}
	}
	m.docs[roomID] = filtered
	return copyDocs(filtered)
}

func copyDocs(list []protocol.Document) []protocol.Document {
	out := make([]protocol.Document, len(list))
	copy(out, list)
	return out
}

// --- Typing Backstop Timers ---

func (m *InMemoryManager) SetTypingTimer(roomID, userID string, timer *time.Timer) {
	m.typingMu.Lock()
	defer m.typingMu.Unlock()

	key := typingKey{roomID: roomID, userID: userID}
	if prev, ok := m.typing[key]; ok && prev != nil {
		prev.Stop()
	}
	m.typing[key] = timer
}

func (m *InMemoryManager) ClearTypingTimer(roomID, userID string) {
	m.typingMu.Lock()
	defer m.typingMu.Unlock()

	key := typingKey{roomID: roomID, userID: userID}
	if timer, ok := m.typing[key]; ok {
		if timer != nil {
			timer.Stop()
		}
		delete(m.typing, key)
	}
}
