package relay

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
)

// Hub tracks connected booth clients and fans mutation events out to their
// watches. It owns the relay's session tree.
type Hub struct {
	tree *tree

	register   chan *Connection
	unregister chan *Connection
	mutations  chan mutation

	mu    sync.RWMutex
	conns map[*Connection]bool
}

// Connection is one connected booth client.
type Connection struct {
	UserID      string
	SessionCode string
	Send        chan []byte

	mu           sync.Mutex
	valueWatches map[int64]string
	childWatches map[int64]string
	disconnects  []string
}

type mutation struct {
	changed string // path whose subtree changed (set/remove)
	pushed  string // log path for push events, empty otherwise
	key     string
	value   []byte
}

// NewHub creates a hub and starts its event loop.
func NewHub() *Hub {
	h := &Hub{
		tree:       newTree(),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		mutations:  make(chan mutation, 256),
		conns:      make(map[*Connection]bool),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn] = true
			h.mu.Unlock()
			log.Printf("client %s connected (session %s)", conn.UserID, conn.SessionCode)

		case conn := <-h.unregister:
			h.mu.Lock()
			if h.conns[conn] {
				delete(h.conns, conn)
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("client %s disconnected", conn.UserID)
			// Any disconnect, graceful or not, executes the client's
			// registered removals.
			conn.mu.Lock()
			paths := conn.disconnects
			conn.disconnects = nil
			conn.mu.Unlock()
			for _, p := range paths {
				changed := h.tree.remove(p)
				h.fanOut(mutation{changed: changed})
			}

		case m := <-h.mutations:
			h.fanOut(m)
		}
	}
}

// Register adds a connection.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection and runs its disconnect cleanup.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Notify queues a mutation for fan-out.
func (h *Hub) Notify(m mutation) {
	h.mutations <- m
}

func watchRelated(watched, changed string) bool {
	return watched == changed ||
		strings.HasPrefix(changed, watched+"/") ||
		strings.HasPrefix(watched, changed+"/")
}

func (h *Hub) fanOut(m mutation) {
	changed := m.changed
	if m.pushed != "" {
		changed = m.pushed + "/" + m.key
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.mu.Lock()
		var events []*Event
		if m.pushed != "" {
			for id, path := range conn.childWatches {
				if path == m.pushed {
					events = append(events, &Event{
						Event: EventChild,
						Watch: id,
						Path:  path,
						Key:   m.key,
						Value: json.RawMessage(m.value),
					})
				}
			}
		}
		for id, path := range conn.valueWatches {
			if watchRelated(path, changed) {
				events = append(events, &Event{
					Event: EventValue,
					Watch: id,
					Path:  path,
					Value: json.RawMessage(h.tree.valueAt(path)),
				})
			}
		}
		conn.mu.Unlock()

		for _, ev := range events {
			data, err := json.Marshal(Frame{Ev: ev})
			if err != nil {
				continue
			}
			select {
			case conn.Send <- data:
			default:
				// Drop when the client's buffer is full.
			}
		}
	}
}
