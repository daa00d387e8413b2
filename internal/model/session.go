package model

import (
	"crypto/rand"
	"math/big"
)

// MaxParticipants is the session capacity, host included.
const MaxParticipants = 4

// SessionCodeLength is the fixed length of a session code.
const SessionCodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Session is one client's live view of a collaborative session as read from
// the store. It is a snapshot cache, not an authoritative record.
type Session struct {
	Code     string                  `json:"code"`
	HostID   string                  `json:"hostId"`
	HostName string                  `json:"hostName"`
	Users    map[string]*Participant `json:"users"`
}

// ParticipantCount returns the current roster size.
func (s *Session) ParticipantCount() int {
	if s == nil {
		return 0
	}
	return len(s.Users)
}

// IsMember reports whether the given identity already has a roster entry.
func (s *Session) IsMember(userID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Users[userID]
	return ok
}

// GenerateSessionCode returns a fresh 6-character code, uppercase
// alphanumeric, each character drawn uniformly. Uniqueness is not checked
// against the store; the 36^6 space makes collisions rare and the creating
// host clears the path before writing anyway.
func GenerateSessionCode() string {
	code := make([]byte, SessionCodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand fails only when the platform source is broken.
			code[i] = codeAlphabet[0]
			continue
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code)
}

// SessionEnd marks a session as ended by one participant. Written once to the
// sessionEnded slot; advisory, never enforced.
type SessionEnd struct {
	EndedBy     string `json:"endedBy"`
	EndedByName string `json:"endedByName"`
	Timestamp   int64  `json:"timestamp"`
}
