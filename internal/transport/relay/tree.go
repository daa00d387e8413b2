package relay

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
)

// tree is the relay's session state: a flat path-to-value map guarded by one
// mutex. The relay never interprets values; it only stores and fans out.
type tree struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newTree() *tree {
	return &tree{values: make(map[string][]byte)}
}

func splitPath(path string) (dir, base string, ok bool) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

func (t *tree) get(path string) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.values[path]; ok {
		return append([]byte(nil), v...)
	}
	if dir, field, ok := splitPath(path); ok {
		if obj, ok := t.values[dir]; ok {
			if v, ok := store.GetField(obj, field); ok {
				return append([]byte(nil), v...)
			}
		}
	}
	return nil
}

func (t *tree) children(path string) map[string][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.childrenLocked(path)
}

func (t *tree) childrenLocked(path string) map[string][]byte {
	children := make(map[string][]byte)
	prefix := path + "/"
	for p, v := range t.values {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if strings.Contains(rest, "/") {
			continue
		}
		children[rest] = append([]byte(nil), v...)
	}
	return children
}

// set writes value at path, merging into a parent JSON leaf when the path
// addresses a field of one. Returns the path whose watchers must refresh.
func (t *tree) set(path string, value []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.values[path]; !exists {
		if dir, field, ok := splitPath(path); ok {
			if obj, isLeaf := t.values[dir]; isLeaf {
				merged, err := store.SetField(obj, field, value)
				if err != nil {
					return "", err
				}
				t.values[dir] = merged
				return dir, nil
			}
		}
	}
	t.values[path] = append([]byte(nil), value...)
	return path, nil
}

func (t *tree) push(path string, value []byte) string {
	key := store.NewPushKey(time.Now())
	t.mu.Lock()
	t.values[path+"/"+key] = append([]byte(nil), value...)
	t.mu.Unlock()
	return key
}

func (t *tree) remove(path string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := false
	if _, ok := t.values[path]; ok {
		delete(t.values, path)
		removed = true
	}
	prefix := path + "/"
	for p := range t.values {
		if strings.HasPrefix(p, prefix) {
			delete(t.values, p)
			removed = true
		}
	}
	if !removed {
		if dir, field, ok := splitPath(path); ok {
			if obj, isLeaf := t.values[dir]; isLeaf {
				if trimmed, had, err := store.DeleteField(obj, field); err == nil && had {
					t.values[dir] = trimmed
					return dir
				}
			}
		}
	}
	return path
}

// valueAt resolves what a value watcher observes at path.
func (t *tree) valueAt(path string) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.values[path]; ok {
		return append([]byte(nil), v...)
	}
	children := t.childrenLocked(path)
	if len(children) == 0 {
		if dir, field, ok := splitPath(path); ok {
			if obj, isLeaf := t.values[dir]; isLeaf {
				if v, ok := store.GetField(obj, field); ok {
					return append([]byte(nil), v...)
				}
			}
		}
		return nil
	}
	obj := make(map[string]json.RawMessage, len(children))
	for k, v := range children {
		obj[k] = json.RawMessage(v)
	}
	out, _ := json.Marshal(obj)
	return out
}
