package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yohannes-mesay/cursor-hackathon/internal/server"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/client"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/config"
	"github.com/yohannes-mesay/cursor-hackathon/pkg/protocol"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func defaultTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:         ":0",
			ConnectionLimit: config.ConnectionLimitConfig{MaxPerIP: 100, Mode: "reject"},
		},
		Transport: config.TransportConfig{ReadTimeout: time.Minute},
		Chat:      config.ChatConfig{},
		Log:       config.LogConfig{Level: "error"},
	}
}

// newTestServer serves the full app over httptest and returns the ws URL.
func newTestServer(t *testing.T, cfg *config.Config) string {
	t.Helper()
	app := server.NewApp(newTestLogger(), context.Background(), cfg)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialClient(t *testing.T, url string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), client.Config{
		URL:               url,
		ReconnectAttempts: 1,
		Logger:            newTestLogger(),
	})
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// collect buffers every delivery of one event so tests can assert on
// fan-out membership without racing the receive loop.
func collect(c *client.Client, event string) <-chan json.RawMessage {
	ch := make(chan json.RawMessage, 32)
	c.On(event, func(p json.RawMessage) {
		select {
		case ch <- p:
		default:
		}
	})
	return ch
}

func waitEvent(t *testing.T, ch <-chan json.RawMessage, what string) json.RawMessage {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(3 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
		return nil
	}
}

// waitMatch drains the channel until a delivery satisfies the predicate.
func waitMatch(t *testing.T, ch <-chan json.RawMessage, what string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case p := <-ch:
			if match(p) {
				return p
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %s", what)
			return nil
		}
	}
}

func expectQuiet(t *testing.T, ch <-chan json.RawMessage, what string) {
	t.Helper()
	select {
	case p := <-ch:
		t.Fatalf("Unexpected %s: %s", what, p)
	case <-time.After(300 * time.Millisecond):
	}
}

// syncPoint round-trips a get-documents request. Events from one
// connection are handled in order, so once the reply arrives every
// earlier emit from the same client has been processed.
func syncPoint(t *testing.T, c *client.Client, room string) {
	t.Helper()
	done := make(chan struct{}, 8)
	c.On(protocol.EventDocumentsList, func(json.RawMessage) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	if err := c.GetDocuments(room); err != nil {
		t.Fatalf("get-documents sync failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for get-documents sync reply")
	}
}

func rosterOf(t *testing.T, p json.RawMessage) []string {
	t.Helper()
	var roster []string
	if err := json.Unmarshal(p, &roster); err != nil {
		t.Fatalf("Failed to decode roster payload %s: %v", p, err)
	}
	return roster
}

func countIn(roster []string, userID string) int {
	n := 0
	for _, id := range roster {
		if id == userID {
			n++
		}
	}
	return n
}

// --- Presence ---

func TestPresenceRosterFanout(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	roster1 := collect(c1, protocol.EventUsersOnline)
	roster2 := collect(c2, protocol.EventUsersOnline)

	// An announce reaches every connection, announced or not.
	if err := c2.Announce(protocol.Identity{UserID: "u2", UserName: "Bea"}); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	waitMatch(t, roster1, "roster with u2 on c1", func(p json.RawMessage) bool {
		return countIn(rosterOf(t, p), "u2") == 1
	})

	if err := c1.Announce(protocol.Identity{UserID: "u1", UserName: "Avi"}); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	waitMatch(t, roster2, "roster with u1 and u2 on c2", func(p json.RawMessage) bool {
		r := rosterOf(t, p)
		return countIn(r, "u1") == 1 && countIn(r, "u2") == 1
	})

	// A second tab of the same user is a second roster entry.
	c3 := dialClient(t, url)
	if err := c3.Announce(protocol.Identity{UserID: "u2", UserName: "Bea"}); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	waitMatch(t, roster1, "roster with duplicate u2", func(p json.RawMessage) bool {
		return countIn(rosterOf(t, p), "u2") == 2
	})
}

// --- Chat ---

func TestRoomMessageFanOutIncludesSender(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())
	room := "general"

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	outsider := dialClient(t, url)

	c1.Announce(protocol.Identity{UserID: "u1", UserName: "Avi"})
	c2.Announce(protocol.Identity{UserID: "u2", UserName: "Bea"})

	joined1 := collect(c1, protocol.EventUserJoinedRoom)
	msgs1 := collect(c1, protocol.EventRoomMessage)
	msgs2 := collect(c2, protocol.EventRoomMessage)
	msgsOut := collect(outsider, protocol.EventRoomMessage)

	c1.JoinRoom(room)
	syncPoint(t, c1, room)
	c2.JoinRoom(room)

	// c1 was already a member, so it hears about c2.
	notice := waitEvent(t, joined1, "user-joined-room on c1")
	var joined protocol.RoomNotice
	if err := json.Unmarshal(notice, &joined); err != nil {
		t.Fatalf("Failed to decode join notice: %v", err)
	}
	if joined.UserID != "u2" || joined.RoomID != room {
		t.Errorf("Unexpected join notice: %+v", joined)
	}

	// Messages reach every member, the sender included.
	sent := protocol.ChatMessage{ID: "m1", UserID: "u1", UserName: "Avi", Message: "hello", RoomID: room}
	if err := c1.SendMessage(sent); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	for name, ch := range map[string]<-chan json.RawMessage{"sender": msgs1, "peer": msgs2} {
		var got protocol.ChatMessage
		if err := json.Unmarshal(waitEvent(t, ch, "room-message on "+name), &got); err != nil {
			t.Fatalf("Failed to decode message on %s: %v", name, err)
		}
		if got.ID != sent.ID || got.Message != sent.Message {
			t.Errorf("Message relayed to %s was altered: %+v", name, got)
		}
	}

	// Non-members hear nothing.
	expectQuiet(t, msgsOut, "room-message on a non-member")
}

func TestEmptyMessageRejectedToOriginOnly(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())
	room := "general"

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	errs1 := collect(c1, protocol.EventError)
	msgs2 := collect(c2, protocol.EventRoomMessage)

	c1.JoinRoom(room)
	c2.JoinRoom(room)
	syncPoint(t, c2, room)

	c1.SendMessage(protocol.ChatMessage{ID: "m1", RoomID: room, Message: "   "})

	var e protocol.ErrorPayload
	if err := json.Unmarshal(waitEvent(t, errs1, "error on origin"), &e); err != nil {
		t.Fatalf("Failed to decode error payload: %v", err)
	}
	if e.Code != "invalid-message" {
		t.Errorf("Expected invalid-message error, got %+v", e)
	}
	expectQuiet(t, msgs2, "relay of a rejected message")
}

func TestTypingExcludesSenderAndExpires(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Chat.TypingTTL = 300 * time.Millisecond
	url := newTestServer(t, cfg)
	room := "general"

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	c1.Announce(protocol.Identity{UserID: "u1", UserName: "Avi"})

	typing1 := collect(c1, protocol.EventUserTyping)
	typing2 := collect(c2, protocol.EventUserTyping)

	c1.JoinRoom(room)
	c2.JoinRoom(room)
	syncPoint(t, c1, room)
	syncPoint(t, c2, room)

	c1.SetTyping(room, true)

	var sig protocol.TypingSignal
	if err := json.Unmarshal(waitEvent(t, typing2, "user-typing on peer"), &sig); err != nil {
		t.Fatalf("Failed to decode typing signal: %v", err)
	}
	if !sig.IsTyping || sig.UserID != "u1" {
		t.Errorf("Unexpected typing signal: %+v", sig)
	}
	expectQuiet(t, typing1, "echo of own typing signal")

	// The server-side backstop clears the indicator even though the
	// client never sent isTyping=false.
	waitMatch(t, typing2, "typing expiry on peer", func(p json.RawMessage) bool {
		var s protocol.TypingSignal
		return json.Unmarshal(p, &s) == nil && !s.IsTyping && s.UserID == "u1"
	})
}

// --- Calls ---

func TestCallRendezvousDirection(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())
	room := "standup"

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	c1.Announce(protocol.Identity{UserID: "u1", UserName: "Avi"})
	c2.Announce(protocol.Identity{UserID: "u2", UserName: "Bea"})

	joined1 := collect(c1, protocol.EventUserJoinedCall)
	joined2 := collect(c2, protocol.EventUserJoinedCall)

	c1.JoinCall(room)
	syncPoint(t, c1, room)
	c2.JoinCall(room)

	// Existing members hear about the newcomer and initiate offers.
	var peer protocol.CallPeer
	if err := json.Unmarshal(waitEvent(t, joined1, "user-joined-call on existing member"), &peer); err != nil {
		t.Fatalf("Failed to decode call peer: %v", err)
	}
	if peer.UserID != "u2" {
		t.Errorf("Expected newcomer u2 in notification, got %+v", peer)
	}
	// The newcomer is told nothing; it waits for offers.
	expectQuiet(t, joined2, "user-joined-call on the newcomer")
}

func TestSignalingRelay(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())
	room := "standup"

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	c1.Announce(protocol.Identity{UserID: "u1", UserName: "Avi"})

	offers1 := collect(c1, protocol.EventCallOffer)
	offers2 := collect(c2, protocol.EventCallOffer)

	c1.JoinCall(room)
	c2.JoinCall(room)
	syncPoint(t, c1, room)
	syncPoint(t, c2, room)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0 fake"}`)
	if err := c1.SendOffer(room, offer); err != nil {
		t.Fatalf("SendOffer failed: %v", err)
	}

	var relayed protocol.CallOffer
	if err := json.Unmarshal(waitEvent(t, offers2, "call-offer on peer"), &relayed); err != nil {
		t.Fatalf("Failed to decode relayed offer: %v", err)
	}
	if relayed.FromUserID != "u1" {
		t.Errorf("Expected fromUserId u1, got %+v", relayed)
	}
	if string(relayed.Offer) != string(offer) {
		t.Errorf("Offer blob was not passed through untouched: %s", relayed.Offer)
	}
	// Signaling is never echoed to its sender.
	expectQuiet(t, offers1, "echo of own offer")
}

func TestSignalingToEmptyRoomIsSilentlyDropped(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())

	c := dialClient(t, url)
	errs := collect(c, protocol.EventError)

	c.JoinCall("lonely")
	if err := c.SendICECandidate("lonely", json.RawMessage(`{"candidate":"x"}`)); err != nil {
		t.Fatalf("SendICECandidate failed: %v", err)
	}
	syncPoint(t, c, "lonely")
	expectQuiet(t, errs, "error for signaling into an empty room")
}

// --- Documents ---

func TestDocumentCollaborationFlow(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())
	room := "workspace"

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	c1.Announce(protocol.Identity{UserID: "u1", UserName: "Avi"})
	c2.Announce(protocol.Identity{UserID: "u2", UserName: "Bea"})

	lists1 := collect(c1, protocol.EventDocumentsList)
	lists2 := collect(c2, protocol.EventDocumentsList)
	collab1 := collect(c1, protocol.EventCollaboratorJoined)
	updated1 := collect(c1, protocol.EventDocumentUpdated)
	updated2 := collect(c2, protocol.EventDocumentUpdated)
	errs2 := collect(c2, protocol.EventError)

	// Joining hands the current (empty) list to the joiner.
	c1.JoinDocRoom(room)
	if got := waitEvent(t, lists1, "documents-list on first joiner"); string(got) != "[]" {
		var docs []protocol.Document
		json.Unmarshal(got, &docs)
		if len(docs) != 0 {
			t.Fatalf("Expected empty document list, got %s", got)
		}
	}

	c2.JoinDocRoom(room)
	waitEvent(t, lists2, "documents-list on second joiner")
	var peer protocol.CallPeer
	if err := json.Unmarshal(waitEvent(t, collab1, "collaborator-joined on c1"), &peer); err != nil {
		t.Fatalf("Failed to decode collaborator notice: %v", err)
	}
	if peer.UserID != "u2" {
		t.Errorf("Expected collaborator u2, got %+v", peer)
	}

	// Create fans the updated list out to everyone, creator included.
	c1.CreateDocument(room, protocol.Document{ID: "d1", Title: "Notes"})
	for name, ch := range map[string]<-chan json.RawMessage{"creator": lists1, "peer": lists2} {
		waitMatch(t, ch, "documents-list with d1 on "+name, func(p json.RawMessage) bool {
			var docs []protocol.Document
			return json.Unmarshal(p, &docs) == nil && len(docs) == 1 && docs[0].ID == "d1"
		})
	}

	// Save broadcasts the replacement document to everyone.
	c2.SaveDocument(room, protocol.Document{ID: "d1", Title: "Notes", Content: "hello", LastModifiedBy: "u2"})
	for name, ch := range map[string]<-chan json.RawMessage{"saver": updated2, "peer": updated1} {
		var doc protocol.Document
		if err := json.Unmarshal(waitEvent(t, ch, "document-updated on "+name), &doc); err != nil {
			t.Fatalf("Failed to decode updated document: %v", err)
		}
		if doc.Content != "hello" {
			t.Errorf("Expected saved content on %s, got %+v", name, doc)
		}
	}

	// A save against an unknown id changes nothing and errors to origin.
	c2.SaveDocument(room, protocol.Document{ID: "ghost", Content: "x"})
	var e protocol.ErrorPayload
	if err := json.Unmarshal(waitEvent(t, errs2, "unknown-document error"), &e); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	if e.Code != "unknown-document" {
		t.Errorf("Expected unknown-document error, got %+v", e)
	}
	expectQuiet(t, updated1, "broadcast for a dropped save")

	// Delete fans the shrunken list out.
	c1.DeleteDocument(room, "d1")
	waitMatch(t, lists2, "empty documents-list after delete", func(p json.RawMessage) bool {
		var docs []protocol.Document
		return json.Unmarshal(p, &docs) == nil && len(docs) == 0
	})
}

func TestDocumentChangeAndCursorExcludeSender(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())
	room := "workspace"

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	c1.Announce(protocol.Identity{UserID: "u1", UserName: "Avi"})

	changes1 := collect(c1, protocol.EventDocumentChange)
	changes2 := collect(c2, protocol.EventDocumentChange)
	cursors2 := collect(c2, protocol.EventCursorUpdate)

	c1.JoinDocRoom(room)
	c2.JoinDocRoom(room)
	syncPoint(t, c1, room)
	syncPoint(t, c2, room)

	c1.SendDocumentChange(room, "d1", protocol.DocumentChange{
		Type: protocol.ChangeInsert, Position: 4, Content: "x", UserID: "u1",
	})
	var change protocol.DocumentChange
	if err := json.Unmarshal(waitEvent(t, changes2, "document-change on peer"), &change); err != nil {
		t.Fatalf("Failed to decode change: %v", err)
	}
	if change.Type != protocol.ChangeInsert || change.Position != 4 {
		t.Errorf("Unexpected change relay: %+v", change)
	}
	expectQuiet(t, changes1, "echo of own change")

	c1.SendCursorUpdate(room, 12, protocol.Selection{Start: 10, End: 12})
	var cursor protocol.CursorBroadcast
	if err := json.Unmarshal(waitEvent(t, cursors2, "cursor-update on peer"), &cursor); err != nil {
		t.Fatalf("Failed to decode cursor broadcast: %v", err)
	}
	if cursor.UserID != "u1" || cursor.Cursor != 12 {
		t.Errorf("Unexpected cursor broadcast: %+v", cursor)
	}
}

// --- Lifecycle ---

func TestDisconnectSweepsRoomsAndRoster(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())
	room := "general"

	c1 := dialClient(t, url)
	c2 := dialClient(t, url)
	c1.Announce(protocol.Identity{UserID: "u1", UserName: "Avi"})
	c2.Announce(protocol.Identity{UserID: "u2", UserName: "Bea"})

	left1 := collect(c1, protocol.EventUserLeftRoom)
	roster1 := collect(c1, protocol.EventUsersOnline)

	c1.JoinRoom(room)
	c2.JoinRoom(room)
	syncPoint(t, c1, room)
	syncPoint(t, c2, room)

	c2.Close()

	var notice protocol.RoomNotice
	if err := json.Unmarshal(waitEvent(t, left1, "user-left-room after disconnect"), &notice); err != nil {
		t.Fatalf("Failed to decode leave notice: %v", err)
	}
	if notice.UserID != "u2" || notice.RoomID != room {
		t.Errorf("Unexpected leave notice: %+v", notice)
	}
	waitMatch(t, roster1, "roster without u2", func(p json.RawMessage) bool {
		return countIn(rosterOf(t, p), "u2") == 0
	})
}

func TestUnknownEventReturnsError(t *testing.T) {
	url := newTestServer(t, defaultTestConfig())

	c := dialClient(t, url)
	errs := collect(c, protocol.EventError)

	if err := c.Emit("warp-drive", map[string]any{}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	var e protocol.ErrorPayload
	if err := json.Unmarshal(waitEvent(t, errs, "unknown-event error"), &e); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	if e.Code != "unknown-event" {
		t.Errorf("Expected unknown-event error, got %+v", e)
	}
}
