package store

import (
	"bytes"
	"testing"
	"time"
)

func TestSetField(t *testing.T) {
	doc := []byte(`{"name":"Ada","photoCount":1}`)

	out, err := SetField(doc, "photoCount", []byte(`2`))
	if err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	got, ok := GetField(out, "photoCount")
	if !ok {
		t.Fatal("GetField() reported photoCount absent")
	}
	if !bytes.Equal(got, []byte(`2`)) {
		t.Errorf("photoCount = %s, want 2", got)
	}
	if name, _ := GetField(out, "name"); !bytes.Equal(name, []byte(`"Ada"`)) {
		t.Errorf("name = %s, sibling fields must survive", name)
	}
}

func TestSetField_EmptyDoc(t *testing.T) {
	out, err := SetField(nil, "lastActive", []byte(`123`))
	if err != nil {
		t.Fatalf("SetField() on empty doc error = %v", err)
	}
	got, ok := GetField(out, "lastActive")
	if !ok {
		t.Fatal("GetField() reported lastActive absent")
	}
	if !bytes.Equal(got, []byte(`123`)) {
		t.Errorf("lastActive = %s, want 123", got)
	}
}

func TestDeleteField(t *testing.T) {
	doc := []byte(`{"a":1,"b":2}`)
	out, present, err := DeleteField(doc, "a")
	if err != nil {
		t.Fatalf("DeleteField() error = %v", err)
	}
	if !present {
		t.Error("DeleteField() reported a absent")
	}
	if _, ok := GetField(out, "a"); ok {
		t.Error("field a still present after delete")
	}
	if got, _ := GetField(out, "b"); !bytes.Equal(got, []byte(`2`)) {
		t.Errorf("field b = %s, want 2", got)
	}

	if _, present, err = DeleteField(out, "missing"); err != nil || present {
		t.Errorf("DeleteField(missing) = (%v, %v), want absent and no error", present, err)
	}
}

func TestNewPushKey_Ordered(t *testing.T) {
	now := time.Now()
	prev := ""
	for i := 0; i < 100; i++ {
		key := NewPushKey(now)
		if len(key) != 26 {
			t.Fatalf("NewPushKey() = %q, want 26-char ULID", key)
		}
		if key <= prev {
			t.Fatalf("keys out of order: %q after %q", key, prev)
		}
		prev = key
	}
}

func TestPaths(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{SessionPath("AB12CD"), "sessions/AB12CD"},
		{UsersPath("AB12CD"), "sessions/AB12CD/users"},
		{UserPath("AB12CD", "user_1"), "sessions/AB12CD/users/user_1"},
		{LastActivePath("AB12CD", "user_1"), "sessions/AB12CD/users/user_1/lastActive"},
		{CommandsPath("AB12CD"), "sessions/AB12CD/commands"},
		{PhotosPath("AB12CD"), "sessions/AB12CD/photos"},
		{StripPath("AB12CD"), "sessions/AB12CD/collaborativeStrip"},
		{SessionEndedPath("AB12CD"), "sessions/AB12CD/sessionEnded"},
		{HostIDPath("AB12CD"), "sessions/AB12CD/hostId"},
		{HostNamePath("AB12CD"), "sessions/AB12CD/hostName"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("path = %q, want %q", tt.got, tt.want)
		}
	}
}
