// Package redisstore implements the session store on Redis: JSON values at
// namespaced keys, ULID-keyed append logs, and pub/sub change notification.
//
// Disconnect semantics: a path registered with RemoveOnDisconnect becomes
// volatile — every subsequent write to it carries a TTL, so the value
// disappears on its own when the owning client stops refreshing it. A
// graceful Close removes registered paths immediately.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
)

const (
	keyPrefix   = "booth:"
	changesChan = "booth:changes"

	// volatileTTL keeps a disconnect-registered path alive for three missed
	// 5-second heartbeats before the store self-corrects.
	volatileTTL = 15 * time.Second
)

// Store is a Redis-backed store.Store.
type Store struct {
	client *redis.Client

	mu          sync.Mutex
	volatile    map[string]bool
	disconnects []string
	valueWatch  []*valueWatch
	childWatch  []*childWatch
	pubsub      *redis.PubSub
	dispatching bool
	closed      bool
}

type changeEvent struct {
	Kind  string `json:"kind"` // "set", "remove", "push"
	Path  string `json:"path"`
	Key   string `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
}

type valueWatch struct {
	owner     *Store
	path      string
	fn        store.ValueFunc
	cancelled bool
}

type childWatch struct {
	owner     *Store
	path      string
	fn        store.ChildFunc
	seen      map[string]bool
	cancelled bool
}

// New wraps an existing Redis client. Callers ping before handing it over;
// connectivity failure at session init is the BackendUnavailable case.
func New(client *redis.Client) *Store {
	return &Store{
		client:   client,
		volatile: make(map[string]bool),
	}
}

func redisKey(path string) string {
	return keyPrefix + strings.ReplaceAll(path, "/", ":")
}

func pathOf(key string) string {
	return strings.ReplaceAll(strings.TrimPrefix(key, keyPrefix), ":", "/")
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(path)).Bytes()
	if err == redis.Nil {
		// The path may be a field inside a JSON leaf one level up.
		if i := strings.LastIndex(path, "/"); i > 0 {
			obj, perr := s.client.Get(ctx, redisKey(path[:i])).Bytes()
			if perr == redis.Nil {
				return nil, nil
			}
			if perr != nil {
				return nil, perr
			}
			if v, ok := store.GetField(obj, path[i+1:]); ok {
				return v, nil
			}
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) GetChildren(ctx context.Context, path string) (map[string][]byte, error) {
	keys, err := s.scanKeys(ctx, redisKey(path)+":*")
	if err != nil {
		return nil, err
	}
	children := make(map[string][]byte)
	overlays := make(map[string]map[string][]byte)
	prefix := path + "/"
	for _, key := range keys {
		rest := strings.TrimPrefix(pathOf(key), prefix)
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 1 {
			children[parts[0]] = data
			continue
		}
		// Grandchild keys (volatile fields) overlay the child's JSON.
		if !strings.Contains(parts[1], "/") {
			if overlays[parts[0]] == nil {
				overlays[parts[0]] = make(map[string][]byte)
			}
			overlays[parts[0]][parts[1]] = data
		}
	}
	for child, fields := range overlays {
		base := children[child]
		for f, v := range fields {
			merged, err := store.SetField(base, f, v)
			if err != nil {
				continue
			}
			base = merged
		}
		children[child] = base
	}
	return children, nil
}

func (s *Store) Set(ctx context.Context, path string, value []byte) error {
	ttl := time.Duration(0)
	s.mu.Lock()
	if s.volatile[path] {
		ttl = volatileTTL
	}
	s.mu.Unlock()
	if err := s.client.Set(ctx, redisKey(path), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	s.publish(ctx, changeEvent{Kind: "set", Path: path})
	return nil
}

func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	key := store.NewPushKey(time.Now())
	if err := s.client.Set(ctx, redisKey(path+"/"+key), value, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to push to %s: %w", path, err)
	}
	s.publish(ctx, changeEvent{Kind: "push", Path: path, Key: key, Value: value})
	return key, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	keys, err := s.scanKeys(ctx, redisKey(path)+":*")
	if err != nil {
		return err
	}
	keys = append(keys, redisKey(path))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	s.publish(ctx, changeEvent{Kind: "remove", Path: path})
	return nil
}

func (s *Store) WatchValue(ctx context.Context, path string, fn store.ValueFunc) (store.Watch, error) {
	if err := s.ensureDispatcher(ctx); err != nil {
		return nil, err
	}
	w := &valueWatch{owner: s, path: path, fn: fn}
	s.mu.Lock()
	s.valueWatch = append(s.valueWatch, w)
	s.mu.Unlock()
	initial, err := s.valueAt(ctx, path)
	if err != nil {
		return nil, err
	}
	fn(initial)
	return w, nil
}

func (s *Store) WatchChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Watch, error) {
	if err := s.ensureDispatcher(ctx); err != nil {
		return nil, err
	}
	w := &childWatch{owner: s, path: path, fn: fn, seen: make(map[string]bool)}
	s.mu.Lock()
	s.childWatch = append(s.childWatch, w)
	s.mu.Unlock()

	existing, err := s.GetChildren(ctx, path)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(existing))
	for k := range existing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.mu.Lock()
		dup := w.seen[k]
		w.seen[k] = true
		s.mu.Unlock()
		if !dup {
			fn(k, existing[k])
		}
	}
	return w, nil
}

func (s *Store) RemoveOnDisconnect(ctx context.Context, path string) error {
	s.mu.Lock()
	s.volatile[path] = true
	s.disconnects = append(s.disconnects, path)
	s.mu.Unlock()
	// A value may already exist at the path; make it volatile now.
	if err := s.client.Expire(ctx, redisKey(path), volatileTTL).Err(); err != nil {
		log.Printf("failed to expire %s: %v", path, err)
	}
	return nil
}

// ServerNow returns Redis server time in milliseconds, the store-assigned
// clock used to tie-break commands and photos.
func (s *Store) ServerNow(ctx context.Context) (int64, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read server time: %w", err)
	}
	return t.UnixMilli(), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	paths := s.disconnects
	s.disconnects = nil
	pubsub := s.pubsub
	s.pubsub = nil
	s.mu.Unlock()

	ctx := context.Background()
	for _, p := range paths {
		if err := s.Remove(ctx, p); err != nil {
			log.Printf("disconnect cleanup of %s failed: %v", p, err)
		}
	}
	if pubsub != nil {
		pubsub.Close()
	}
	return s.client.Close()
}

func (s *Store) publish(ctx context.Context, ev changeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, changesChan, data).Err(); err != nil {
		log.Printf("failed to publish change for %s: %v", ev.Path, err)
	}
}

func (s *Store) ensureDispatcher(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatching {
		return nil
	}
	pubsub := s.client.Subscribe(ctx, changesChan)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to changes: %w", err)
	}
	s.pubsub = pubsub
	s.dispatching = true
	go s.dispatch(pubsub.Channel())
	return nil
}

func (s *Store) dispatch(ch <-chan *redis.Message) {
	for msg := range ch {
		var ev changeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			continue
		}
		s.handleEvent(ev)
	}
}

func related(watched, changed string) bool {
	return watched == changed ||
		strings.HasPrefix(changed, watched+"/") ||
		strings.HasPrefix(watched, changed+"/")
}

func (s *Store) handleEvent(ev changeEvent) {
	ctx := context.Background()

	if ev.Kind == "push" {
		s.mu.Lock()
		var fns []func()
		for _, w := range s.childWatch {
			if w.cancelled || w.path != ev.Path || w.seen[ev.Key] {
				continue
			}
			w.seen[ev.Key] = true
			fn, key, val := w.fn, ev.Key, ev.Value
			fns = append(fns, func() { fn(key, val) })
		}
		s.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}

	changed := ev.Path
	if ev.Kind == "push" {
		changed = ev.Path + "/" + ev.Key
	}
	s.mu.Lock()
	var watchers []*valueWatch
	for _, w := range s.valueWatch {
		if !w.cancelled && related(w.path, changed) {
			watchers = append(watchers, w)
		}
	}
	s.mu.Unlock()
	for _, w := range watchers {
		val, err := s.valueAt(ctx, w.path)
		if err != nil {
			log.Printf("failed to refresh watch on %s: %v", w.path, err)
			continue
		}
		w.fn(val)
	}
}

// valueAt resolves what a value watcher observes: the leaf bytes, or an
// object assembled from the path's children, or nil.
func (s *Store) valueAt(ctx context.Context, path string) ([]byte, error) {
	if v, err := s.Get(ctx, path); err != nil || v != nil {
		return v, err
	}
	children, err := s.GetChildren(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, nil
	}
	obj := make(map[string]json.RawMessage, len(children))
	for k, v := range children {
		obj[k] = json.RawMessage(v)
	}
	return json.Marshal(obj)
}

func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	return keys, nil
}

func (w *valueWatch) Cancel() {
	s := w.owner
	s.mu.Lock()
	defer s.mu.Unlock()
	w.cancelled = true
	for i, other := range s.valueWatch {
		if other == w {
			s.valueWatch = append(s.valueWatch[:i], s.valueWatch[i+1:]...)
			break
		}
	}
}

func (w *childWatch) Cancel() {
	s := w.owner
	s.mu.Lock()
	defer s.mu.Unlock()
	w.cancelled = true
	for i, other := range s.childWatch {
		if other == w {
			s.childWatch = append(s.childWatch[:i], s.childWatch[i+1:]...)
			break
		}
	}
}
