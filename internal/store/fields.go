package store

import "encoding/json"

// Field helpers let backends treat a JSON object leaf as one more level of
// the tree, so writes like users/{id}/lastActive land inside the stored
// participant object the same way they would in a real replicated tree.

// SetField returns obj with field set to val. A nil obj starts a new object.
func SetField(obj []byte, field string, val []byte) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(obj) > 0 {
		if err := json.Unmarshal(obj, &fields); err != nil {
			return nil, err
		}
	}
	fields[field] = json.RawMessage(val)
	return json.Marshal(fields)
}

// DeleteField returns obj without field, reporting whether it was present.
func DeleteField(obj []byte, field string) ([]byte, bool, error) {
	if len(obj) == 0 {
		return obj, false, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil, false, err
	}
	if _, ok := fields[field]; !ok {
		return obj, false, nil
	}
	delete(fields, field)
	out, err := json.Marshal(fields)
	return out, true, err
}

// GetField extracts field from obj, reporting whether it was present.
func GetField(obj []byte, field string) ([]byte, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(obj, &fields); err != nil {
		return nil, false
	}
	val, ok := fields[field]
	return val, ok
}
