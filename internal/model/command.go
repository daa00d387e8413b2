package model

// CommandType identifies a host control command.
type CommandType string

const (
	// CommandCapture tells participants to run a capture sequence.
	CommandCapture CommandType = "capture"
)

// Command is one entry in the session command log. Append-only, immutable
// once written, host-issued. Participants act on commands; the issuing host
// never reacts to its own (self-filtered by HostID comparison).
type Command struct {
	Type        CommandType `json:"type"`
	Timestamp   int64       `json:"timestamp"`
	HostID      string      `json:"hostId"`
	TotalPhotos int         `json:"totalPhotos,omitempty"`
}
