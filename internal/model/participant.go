package model

import (
	"strings"

	"github.com/google/uuid"
)

// Participant is one roster entry under users/{userId}. Each client writes
// only its own entry; the host flag is assigned at join time.
type Participant struct {
	Name          string `json:"name"`
	JoinedAt      int64  `json:"joinedAt"`
	LastActive    int64  `json:"lastActive"`
	PhotoCount    int    `json:"photoCount"`
	CurrentFilter string `json:"currentFilter"`
	IsHost        bool   `json:"isHost"`
}

// NewUserID generates a quasi-unique participant identity. Not
// cryptographically unique; collision probability is low and unhandled,
// matching the protocol's advisory identity model.
func NewUserID() string {
	return "user_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
}

// NewGuestName generates a default display name for anonymous participants.
func NewGuestName() string {
	return "Guest_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
}
