package relay

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestTree_SetGet(t *testing.T) {
	tr := newTree()

	if _, err := tr.set("sessions/AB12CD/hostId", []byte(`"user_1"`)); err != nil {
		t.Fatal(err)
	}
	if got := tr.get("sessions/AB12CD/hostId"); !bytes.Equal(got, []byte(`"user_1"`)) {
		t.Errorf("get() = %s, want \"user_1\"", got)
	}
	if got := tr.get("sessions/AB12CD/missing"); got != nil {
		t.Errorf("get(missing) = %s, want nil", got)
	}
}

func TestTree_FieldMerge(t *testing.T) {
	tr := newTree()

	if _, err := tr.set("sessions/AB12CD/users/user_1", []byte(`{"name":"Ada","photoCount":0}`)); err != nil {
		t.Fatal(err)
	}

	// A write inside a JSON leaf merges instead of shadowing.
	changed, err := tr.set("sessions/AB12CD/users/user_1/photoCount", []byte(`3`))
	if err != nil {
		t.Fatal(err)
	}
	if changed != "sessions/AB12CD/users/user_1" {
		t.Errorf("changed path = %q, want the parent leaf", changed)
	}
	if got := tr.get("sessions/AB12CD/users/user_1/photoCount"); !bytes.Equal(got, []byte(`3`)) {
		t.Errorf("field read = %s, want 3", got)
	}
	if got := tr.get("sessions/AB12CD/users/user_1/name"); !bytes.Equal(got, []byte(`"Ada"`)) {
		t.Errorf("sibling field = %s, want \"Ada\"", got)
	}
}

func TestTree_PushOrdering(t *testing.T) {
	tr := newTree()

	k1 := tr.push("sessions/AB12CD/commands", []byte(`{"n":1}`))
	k2 := tr.push("sessions/AB12CD/commands", []byte(`{"n":2}`))
	if k1 >= k2 {
		t.Errorf("push keys not ordered: %q then %q", k1, k2)
	}

	children := tr.children("sessions/AB12CD/commands")
	if len(children) != 2 {
		t.Fatalf("children = %d entries, want 2", len(children))
	}
	if !bytes.Equal(children[k1], []byte(`{"n":1}`)) {
		t.Errorf("child %q = %s", k1, children[k1])
	}
}

func TestTree_RemoveSubtree(t *testing.T) {
	tr := newTree()

	tr.set("sessions/AB12CD/hostId", []byte(`"user_1"`))
	tr.set("sessions/AB12CD/users/user_1", []byte(`{"name":"Ada"}`))
	tr.push("sessions/AB12CD/photos", []byte(`{}`))

	tr.remove("sessions/AB12CD")

	if got := tr.get("sessions/AB12CD/hostId"); got != nil {
		t.Errorf("hostId survives subtree removal: %s", got)
	}
	if got := tr.children("sessions/AB12CD/photos"); len(got) != 0 {
		t.Errorf("photos survive subtree removal: %d entries", len(got))
	}
}

func TestTree_RemoveField(t *testing.T) {
	tr := newTree()
	tr.set("sessions/AB12CD/users/user_1", []byte(`{"name":"Ada","lastActive":99}`))

	changed := tr.remove("sessions/AB12CD/users/user_1/lastActive")
	if changed != "sessions/AB12CD/users/user_1" {
		t.Errorf("changed path = %q, want the parent leaf", changed)
	}
	if got := tr.get("sessions/AB12CD/users/user_1/lastActive"); got != nil {
		t.Errorf("field survives removal: %s", got)
	}
	if got := tr.get("sessions/AB12CD/users/user_1/name"); !bytes.Equal(got, []byte(`"Ada"`)) {
		t.Errorf("sibling field lost: %s", got)
	}
}

func TestTree_ValueAtAssemblesChildren(t *testing.T) {
	tr := newTree()
	tr.set("sessions/AB12CD/users/user_1", []byte(`{"name":"Ada"}`))
	tr.set("sessions/AB12CD/users/user_2", []byte(`{"name":"Brie"}`))

	raw := tr.valueAt("sessions/AB12CD/users")
	var users map[string]json.RawMessage
	if err := json.Unmarshal(raw, &users); err != nil {
		t.Fatalf("valueAt() produced invalid JSON: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("assembled object has %d users, want 2", len(users))
	}
	if _, ok := users["user_1"]; !ok {
		t.Error("user_1 missing from assembled roster")
	}
}
