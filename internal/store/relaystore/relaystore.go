// Package relaystore implements the session store over a booth relay
// connection: true push notification and true disconnect cleanup, spoken
// through the relay's websocket protocol.
package relaystore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
	"github.com/kaushikasemwal/vintage-photobooth/internal/transport/relay"
)

const requestTimeout = 10 * time.Second

// Store is a relay-backed store.Store.
type Store struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu         sync.Mutex
	nextID     int64
	pending    map[int64]chan *relay.Response
	valueWatch map[int64]*valueWatch
	childWatch map[int64]*childWatch
	closed     bool
}

type valueWatch struct {
	owner *Store
	id    int64
	fn    store.ValueFunc
}

type childWatch struct {
	owner *Store
	id    int64
	fn    store.ChildFunc
	seen  map[string]bool
}

// Dial obtains a session-scoped token from the relay and opens the
// websocket store connection. Failure here is the BackendUnavailable case.
func Dial(ctx context.Context, baseURL, sessionCode, userID string) (*Store, error) {
	token, err := fetchToken(ctx, baseURL, sessionCode, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/v1/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	s := &Store{
		conn:       conn,
		pending:    make(map[int64]chan *relay.Response),
		valueWatch: make(map[int64]*valueWatch),
		childWatch: make(map[int64]*childWatch),
	}
	go s.readLoop()
	return s, nil
}

func fetchToken(ctx context.Context, baseURL, sessionCode, userID string) (string, error) {
	body, err := json.Marshal(relay.TokenRequest{SessionCode: sessionCode, UserID: userID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request rejected: %s", resp.Status)
	}
	var tr relay.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	return tr.Token, nil
}

func (s *Store) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.failPending(err)
			return
		}
		var frame relay.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch {
		case frame.Response != nil:
			s.mu.Lock()
			ch := s.pending[frame.Response.ID]
			delete(s.pending, frame.Response.ID)
			s.mu.Unlock()
			if ch != nil {
				ch <- frame.Response
			}
		case frame.Ev != nil:
			s.dispatchEvent(frame.Ev)
		}
	}
}

func (s *Store) dispatchEvent(ev *relay.Event) {
	switch ev.Event {
	case relay.EventValue:
		s.mu.Lock()
		w := s.valueWatch[ev.Watch]
		s.mu.Unlock()
		if w != nil {
			w.fn(ev.Value)
		}
	case relay.EventChild:
		s.mu.Lock()
		w := s.childWatch[ev.Watch]
		var dup bool
		if w != nil {
			dup = w.seen[ev.Key]
			w.seen[ev.Key] = true
		}
		s.mu.Unlock()
		if w != nil && !dup {
			w.fn(ev.Key, ev.Value)
		}
	}
}

func (s *Store) failPending(err error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[int64]chan *relay.Response)
	s.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

func (s *Store) request(ctx context.Context, req *relay.Request) (*relay.Response, error) {
	ch := make(chan *relay.Response, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("store connection closed")
	}
	if req.ID == 0 {
		s.nextID++
		req.ID = s.nextID
	}
	s.pending[req.ID] = ch
	s.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", req.Op, err)
	}

	timeout := time.NewTimer(requestTimeout)
	defer timeout.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection lost during %s", req.Op)
		}
		if !resp.OK {
			return nil, fmt.Errorf("relay rejected %s: %s", req.Op, resp.Error)
		}
		return resp, nil
	case <-timeout.C:
		return nil, fmt.Errorf("timed out waiting for %s", req.Op)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.request(ctx, &relay.Request{Op: relay.OpGet, Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (s *Store) GetChildren(ctx context.Context, path string) (map[string][]byte, error) {
	resp, err := s.request(ctx, &relay.Request{Op: relay.OpChildren, Path: path})
	if err != nil {
		return nil, err
	}
	children := make(map[string][]byte, len(resp.Children))
	for k, v := range resp.Children {
		children[k] = v
	}
	return children, nil
}

func (s *Store) Set(ctx context.Context, path string, value []byte) error {
	_, err := s.request(ctx, &relay.Request{Op: relay.OpSet, Path: path, Value: value})
	return err
}

func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	resp, err := s.request(ctx, &relay.Request{Op: relay.OpPush, Path: path, Value: value})
	if err != nil {
		return "", err
	}
	return resp.Key, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	_, err := s.request(ctx, &relay.Request{Op: relay.OpRemove, Path: path})
	return err
}

func (s *Store) WatchValue(ctx context.Context, path string, fn store.ValueFunc) (store.Watch, error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	w := &valueWatch{owner: s, id: id, fn: fn}
	s.valueWatch[id] = w
	s.mu.Unlock()

	resp, err := s.request(ctx, &relay.Request{ID: id, Op: relay.OpWatchValue, Path: path})
	if err != nil {
		s.mu.Lock()
		delete(s.valueWatch, id)
		s.mu.Unlock()
		return nil, err
	}
	fn(resp.Value)
	return w, nil
}

func (s *Store) WatchChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Watch, error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	w := &childWatch{owner: s, id: id, fn: fn, seen: make(map[string]bool)}
	s.childWatch[id] = w
	s.mu.Unlock()

	resp, err := s.request(ctx, &relay.Request{ID: id, Op: relay.OpWatchChild, Path: path})
	if err != nil {
		s.mu.Lock()
		delete(s.childWatch, id)
		s.mu.Unlock()
		return nil, err
	}

	keys := make([]string, 0, len(resp.Children))
	for k := range resp.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.mu.Lock()
		dup := w.seen[k]
		w.seen[k] = true
		s.mu.Unlock()
		if !dup {
			fn(k, resp.Children[k])
		}
	}
	return w, nil
}

func (s *Store) RemoveOnDisconnect(ctx context.Context, path string) error {
	_, err := s.request(ctx, &relay.Request{Op: relay.OpOnDisconnect, Path: path})
	return err
}

func (s *Store) ServerNow(ctx context.Context) (int64, error) {
	resp, err := s.request(ctx, &relay.Request{Op: relay.OpTime})
	if err != nil {
		return 0, err
	}
	return resp.Now, nil
}

// Close ends the connection. The relay executes this client's registered
// disconnect removals on any connection end, graceful included.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (w *valueWatch) Cancel() {
	s := w.owner
	s.mu.Lock()
	delete(s.valueWatch, w.id)
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.request(ctx, &relay.Request{Op: relay.OpUnwatch, Watch: w.id})
}

func (w *childWatch) Cancel() {
	s := w.owner
	s.mu.Lock()
	delete(s.childWatch, w.id)
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.request(ctx, &relay.Request{Op: relay.OpUnwatch, Watch: w.id})
}
