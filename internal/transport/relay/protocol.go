package relay

import "encoding/json"

// Wire protocol between booth clients and the relay. Requests carry a
// client-assigned id; the response echoes it. Watch requests keep their id
// as the subscription handle, and events reference it.

// Op names.
const (
	OpGet          = "get"
	OpChildren     = "children"
	OpSet          = "set"
	OpPush         = "push"
	OpRemove       = "remove"
	OpWatchValue   = "watchValue"
	OpWatchChild   = "watchChild"
	OpUnwatch      = "unwatch"
	OpOnDisconnect = "onDisconnect"
	OpTime         = "time"
)

// Request is one client operation.
type Request struct {
	ID    int64           `json:"id"`
	Op    string          `json:"op"`
	Path  string          `json:"path,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Watch int64           `json:"watch,omitempty"` // for unwatch
}

// Response answers one request.
type Response struct {
	ID       int64                      `json:"id"`
	OK       bool                       `json:"ok"`
	Error    string                     `json:"error,omitempty"`
	Value    json.RawMessage            `json:"value,omitempty"`
	Key      string                     `json:"key,omitempty"`
	Children map[string]json.RawMessage `json:"children,omitempty"`
	Now      int64                      `json:"now,omitempty"`
}

// Event kinds.
const (
	EventValue = "value"
	EventChild = "child"
)

// Event is a push notification for one active watch.
type Event struct {
	Event string          `json:"event"`
	Watch int64           `json:"watch"`
	Path  string          `json:"path"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Frame is the server-to-client envelope: exactly one of Response or Event.
type Frame struct {
	Response *Response `json:"response,omitempty"`
	Ev       *Event    `json:"event,omitempty"`
}

// TokenRequest asks the relay for a connection token.
type TokenRequest struct {
	SessionCode string `json:"sessionCode"`
	UserID      string `json:"userId"`
}

// TokenResponse carries the issued token.
type TokenResponse struct {
	Token string `json:"token"`
}
