// Package storetest provides a synchronized in-memory implementation of the
// store contract for tests. Watches, push ordering, field-level writes, and
// disconnect cleanup behave like the real backends, minus the network.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
)

// Memory is an in-memory store.Store. The zero value is not usable; call New.
type Memory struct {
	mu          sync.Mutex
	values      map[string][]byte
	valueWatch  map[string][]*memWatch
	childWatch  map[string][]*memChildWatch
	disconnects []string
	closed      bool

	// Now is the clock used for push keys and ServerNow. Replaceable in
	// tests that need deterministic ordering.
	Now func() time.Time

	// PushErr, when set, fails every Push. SetErrs fails Set for the given
	// exact paths. Both are for failure-path tests.
	PushErr error
	SetErrs map[string]error
}

type memWatch struct {
	owner *Memory
	path  string
	fn    store.ValueFunc
}

type memChildWatch struct {
	owner *Memory
	path  string
	fn    store.ChildFunc
}

// New returns an empty in-memory store.
func New() *Memory {
	return &Memory{
		values:     make(map[string][]byte),
		valueWatch: make(map[string][]*memWatch),
		childWatch: make(map[string][]*memChildWatch),
		Now:        time.Now,
	}
}

func parent(path string) (string, string, bool) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}

func (m *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[path]; ok {
		return append([]byte(nil), v...), nil
	}
	if dir, field, ok := parent(path); ok {
		if obj, ok := m.values[dir]; ok {
			if v, ok := store.GetField(obj, field); ok {
				return append([]byte(nil), v...), nil
			}
		}
	}
	return nil, nil
}

func (m *Memory) GetChildren(ctx context.Context, path string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.childrenLocked(path), nil
}

func (m *Memory) childrenLocked(path string) map[string][]byte {
	children := make(map[string][]byte)
	prefix := path + "/"
	for p, v := range m.values {
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

func (m *Memory) Set(ctx context.Context, path string, value []byte) error {
	m.mu.Lock()
	if err := m.SetErrs[path]; err != nil {
		m.mu.Unlock()
		return err
	}
	changed := path
	if _, exists := m.values[path]; !exists {
		if dir, field, ok := parent(path); ok {
			if obj, isLeaf := m.values[dir]; isLeaf {
				merged, err := store.SetField(obj, field, value)
				if err != nil {
					m.mu.Unlock()
					return err
				}
				m.values[dir] = merged
				changed = dir
			} else {
				m.values[path] = append([]byte(nil), value...)
			}
		} else {
			m.values[path] = append([]byte(nil), value...)
		}
	} else {
		m.values[path] = append([]byte(nil), value...)
	}
	notify := m.collectValueWatchesLocked(changed)
	m.mu.Unlock()
	deliver(notify)
	return nil
}

func (m *Memory) Push(ctx context.Context, path string, value []byte) (string, error) {
	m.mu.Lock()
	if m.PushErr != nil {
		err := m.PushErr
		m.mu.Unlock()
		return "", err
	}
	key := store.NewPushKey(m.Now())
	m.values[path+"/"+key] = append([]byte(nil), value...)
	var childFns []func()
	for _, w := range m.childWatch[path] {
		fn := w.fn
		v := append([]byte(nil), value...)
		childFns = append(childFns, func() { fn(key, v) })
	}
	notify := m.collectValueWatchesLocked(path + "/" + key)
	m.mu.Unlock()
	for _, fn := range childFns {
		fn()
	}
	deliver(notify)
	return key, nil
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	removed := false
	if _, ok := m.values[path]; ok {
		delete(m.values, path)
		removed = true
	}
	prefix := path + "/"
	for p := range m.values {
		if strings.HasPrefix(p, prefix) {
			delete(m.values, p)
			removed = true
		}
	}
	changed := path
	if !removed {
		if dir, field, ok := parent(path); ok {
			if obj, isLeaf := m.values[dir]; isLeaf {
				trimmed, had, err := store.DeleteField(obj, field)
				if err != nil {
					m.mu.Unlock()
					return err
				}
				if had {
					m.values[dir] = trimmed
					changed = dir
				}
			}
		}
	}
	notify := m.collectValueWatchesLocked(changed)
	m.mu.Unlock()
	deliver(notify)
	return nil
}

func (m *Memory) WatchValue(ctx context.Context, path string, fn store.ValueFunc) (store.Watch, error) {
	m.mu.Lock()
	w := &memWatch{owner: m, path: path, fn: fn}
	m.valueWatch[path] = append(m.valueWatch[path], w)
	initial := m.valueAtLocked(path)
	m.mu.Unlock()
	fn(initial)
	return w, nil
}

func (m *Memory) WatchChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Watch, error) {
	m.mu.Lock()
	w := &memChildWatch{owner: m, path: path, fn: fn}
	m.childWatch[path] = append(m.childWatch[path], w)
	existing := m.childrenLocked(path)
	m.mu.Unlock()

	keys := make([]string, 0, len(existing))
	for k := range existing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(k, existing[k])
	}
	return w, nil
}

func (m *Memory) RemoveOnDisconnect(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, path)
	return nil
}

func (m *Memory) ServerNow(ctx context.Context) (int64, error) {
	return m.Now().UnixMilli(), nil
}

// Close executes every registered disconnect removal, then drops all
// subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	paths := m.disconnects
	m.disconnects = nil
	m.mu.Unlock()

	for _, p := range paths {
		_ = m.Remove(context.Background(), p)
	}

	m.mu.Lock()
	m.valueWatch = make(map[string][]*memWatch)
	m.childWatch = make(map[string][]*memChildWatch)
	m.mu.Unlock()
	return nil
}

// valueAtLocked resolves the value a watcher at path observes: a leaf's
// bytes, an object assembled from direct children, or nil when absent.
func (m *Memory) valueAtLocked(path string) []byte {
	if v, ok := m.values[path]; ok {
		return append([]byte(nil), v...)
	}
	children := m.childrenLocked(path)
	if len(children) == 0 {
		if dir, field, ok := parent(path); ok {
			if obj, isLeaf := m.values[dir]; isLeaf {
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

// collectValueWatchesLocked gathers callbacks for every value watcher whose
// path contains, equals, or sits inside the changed path.
func (m *Memory) collectValueWatchesLocked(changed string) []func() {
	var fns []func()
	for path, ws := range m.valueWatch {
		related := path == changed ||
			strings.HasPrefix(changed, path+"/") ||
			strings.HasPrefix(path, changed+"/")
		if !related {
			continue
		}
		val := m.valueAtLocked(path)
		for _, w := range ws {
			fn := w.fn
			v := val
			fns = append(fns, func() { fn(v) })
		}
	}
	return fns
}

func deliver(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func (w *memWatch) Cancel() {
	m := w.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.valueWatch[w.path]
	for i, other := range ws {
		if other == w {
			m.valueWatch[w.path] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
}

func (w *memChildWatch) Cancel() {
	m := w.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := m.childWatch[w.path]
	for i, other := range ws {
		if other == w {
			m.childWatch[w.path] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
}
