package relay

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func newTestConn(id string) *Connection {
	return &Connection{
		UserID:       id,
		SessionCode:  "AB12CD",
		Send:         make(chan []byte, 16),
		valueWatches: make(map[int64]string),
		childWatches: make(map[int64]string),
	}
}

func recvEvent(t *testing.T, conn *Connection) *Event {
	t.Helper()
	select {
	case data := <-conn.Send:
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatal(err)
		}
		if frame.Ev == nil {
			t.Fatalf("frame carries no event: %s", data)
		}
		return frame.Ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	return nil
}

func TestHub_UnregisterRemovesOwnDisconnectPaths(t *testing.T) {
	h := NewHub()
	h.tree.set("sessions/AB12CD/users/user_a", []byte(`{"name":"Alice"}`))
	h.tree.set("sessions/AB12CD/users/user_b", []byte(`{"name":"Brie"}`))

	alice := newTestConn("user_a")
	alice.disconnects = []string{"sessions/AB12CD/users/user_a"}
	bob := newTestConn("user_b")
	bob.valueWatches[7] = "sessions/AB12CD/users"

	h.Register(alice)
	h.Register(bob)
	h.Unregister(alice)

	// The removal fans out to the surviving watcher.
	ev := recvEvent(t, bob)
	if ev.Event != EventValue || ev.Watch != 7 {
		t.Fatalf("event = %+v, want value event for watch 7", ev)
	}
	if bytes.Contains(ev.Value, []byte("Alice")) {
		t.Errorf("roster event still contains the removed entry: %s", ev.Value)
	}
	if !bytes.Contains(ev.Value, []byte("Brie")) {
		t.Errorf("roster event lost an unrelated entry: %s", ev.Value)
	}

	// Exactly the registered path is gone from the tree.
	if got := h.tree.get("sessions/AB12CD/users/user_a"); got != nil {
		t.Errorf("registered path survived disconnect: %s", got)
	}
	if got := h.tree.get("sessions/AB12CD/users/user_b"); got == nil {
		t.Error("unrelated path was removed on disconnect")
	}

	select {
	case _, ok := <-alice.Send:
		if ok {
			t.Error("removed connection still receives events")
		}
	default:
		t.Error("removed connection's send channel left open")
	}
}
