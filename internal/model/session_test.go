package model

import (
	"regexp"
	"testing"
)

func TestGenerateSessionCode_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code := GenerateSessionCode()
		if !pattern.MatchString(code) {
			t.Fatalf("GenerateSessionCode() = %q, want 6 uppercase alphanumerics", code)
		}
		seen[code] = true
	}
	// 200 draws from a 36^6 space should essentially never collide.
	if len(seen) < 190 {
		t.Errorf("got %d distinct codes out of 200, generator looks biased", len(seen))
	}
}

func TestNewUserID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^user_[0-9a-f]{9}$`)
	a, b := NewUserID(), NewUserID()
	if !pattern.MatchString(a) {
		t.Errorf("NewUserID() = %q, want user_ plus 9 hex chars", a)
	}
	if a == b {
		t.Errorf("NewUserID() returned duplicate %q", a)
	}
}

func TestNewGuestName_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^Guest_[0-9a-f]{4}$`)
	if name := NewGuestName(); !pattern.MatchString(name) {
		t.Errorf("NewGuestName() = %q, want Guest_ plus 4 hex chars", name)
	}
}

func TestSession_ParticipantCount(t *testing.T) {
	s := &Session{
		Code:   "AB12CD",
		HostID: "user_000000001",
		Users: map[string]*Participant{
			"user_000000001": {Name: "Ada", IsHost: true},
			"user_000000002": {Name: "Brie"},
		},
	}
	if got := s.ParticipantCount(); got != 2 {
		t.Errorf("ParticipantCount() = %d, want 2", got)
	}
	if !s.IsMember("user_000000002") {
		t.Error("IsMember() = false for a present user")
	}
	if s.IsMember("user_000000009") {
		t.Error("IsMember() = true for an absent user")
	}
}
