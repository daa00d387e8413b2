package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kaushikasemwal/vintage-photobooth/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20 // photos ride this connection
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler serves the relay's HTTP surface: token issuance, the websocket
// store endpoint, and a health check.
type Handler struct {
	hub     *Hub
	authSvc *service.AuthService
}

// NewHandler creates a relay handler.
func NewHandler(hub *Hub, authSvc *service.AuthService) *Handler {
	return &Handler{hub: hub, authSvc: authSvc}
}

// Router builds the relay's route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/token", h.Token).Methods(http.MethodPost)
	r.HandleFunc("/v1/ws", h.WS).Methods(http.MethodGet)
	r.HandleFunc("/v1/healthz", h.Healthz).Methods(http.MethodGet)
	return r
}

// Healthz handles GET /v1/healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Token handles POST /v1/token. Identity is anonymous and claimed, not
// verified; the token only scopes a connection to one session.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionCode == "" || req.UserID == "" {
		http.Error(w, "sessionCode and userId are required", http.StatusBadRequest)
		return
	}
	token, err := h.authSvc.GenerateParticipantToken(req.SessionCode, req.UserID)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TokenResponse{Token: token})
}

// WS handles GET /v1/ws?token=...
func (h *Handler) WS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.authSvc.ValidateParticipantToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		UserID:       claims.UserID,
		SessionCode:  claims.SessionCode,
		Send:         make(chan []byte, 256),
		valueWatches: make(map[int64]string),
		childWatches: make(map[int64]string),
	}
	h.hub.Register(conn)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		resp := h.execute(conn, &req)
		frame, err := json.Marshal(Frame{Response: resp})
		if err != nil {
			continue
		}
		select {
		case conn.Send <- frame:
		default:
		}
	}
}

// execute runs one store operation. The relay applies the op verbatim; all
// protocol decisions stay client-side.
func (h *Handler) execute(conn *Connection, req *Request) *Response {
	resp := &Response{ID: req.ID, OK: true}
	switch req.Op {
	case OpGet:
		resp.Value = json.RawMessage(h.hub.tree.get(req.Path))

	case OpChildren:
		children := h.hub.tree.children(req.Path)
		resp.Children = make(map[string]json.RawMessage, len(children))
		for k, v := range children {
			resp.Children[k] = json.RawMessage(v)
		}

	case OpSet:
		changed, err := h.hub.tree.set(req.Path, req.Value)
		if err != nil {
			resp.OK = false
			resp.Error = err.Error()
			break
		}
		h.hub.Notify(mutation{changed: changed})

	case OpPush:
		key := h.hub.tree.push(req.Path, req.Value)
		resp.Key = key
		h.hub.Notify(mutation{pushed: req.Path, key: key, value: req.Value})

	case OpRemove:
		changed := h.hub.tree.remove(req.Path)
		h.hub.Notify(mutation{changed: changed})

	case OpWatchValue:
		conn.mu.Lock()
		conn.valueWatches[req.ID] = req.Path
		conn.mu.Unlock()
		resp.Value = json.RawMessage(h.hub.tree.valueAt(req.Path))

	case OpWatchChild:
		conn.mu.Lock()
		conn.childWatches[req.ID] = req.Path
		conn.mu.Unlock()
		children := h.hub.tree.children(req.Path)
		resp.Children = make(map[string]json.RawMessage, len(children))
		for k, v := range children {
			resp.Children[k] = json.RawMessage(v)
		}

	case OpUnwatch:
		conn.mu.Lock()
		delete(conn.valueWatches, req.Watch)
		delete(conn.childWatches, req.Watch)
		conn.mu.Unlock()

	case OpOnDisconnect:
		conn.mu.Lock()
		conn.disconnects = append(conn.disconnects, req.Path)
		conn.mu.Unlock()

	case OpTime:
		resp.Now = time.Now().UnixMilli()

	default:
		resp.OK = false
		resp.Error = "unknown op: " + req.Op
	}
	return resp
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
