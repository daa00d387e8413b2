// Package localstore implements the session store on a local sqlite file.
//
// This is the degraded fallback selected when the real backend cannot be
// reached at session init: notification is client-side polling on fixed
// intervals instead of push, and there is no disconnect-triggered cleanup —
// staleness is handled by a fixed 30-second window on roster entries.
// Coordination through this backend only works between clients sharing the
// same database file (same machine), which is all the original fallback
// offered too.
package localstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
)

const (
	// valuePollInterval drives roster and single-slot watches.
	valuePollInterval = 2 * time.Second
	// childPollInterval drives append-log watches.
	childPollInterval = 5 * time.Second
	// StaleAfter is how long a roster entry survives without a heartbeat
	// before this backend stops reporting it.
	StaleAfter = 30 * time.Second
)

// Store is a sqlite-backed store.Store.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	watches []*pollWatch
	closed  bool
}

type pollWatch struct {
	stop chan struct{}
	once sync.Once
}

func (w *pollWatch) Cancel() {
	w.once.Do(func() { close(w.stop) })
}

// Open opens (creating if needed) the shared session database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	// WAL lets a second booth process on the same machine poll while this
	// one writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		path TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE path = ?", path).Scan(&value)
	if err == sql.ErrNoRows {
		if i := strings.LastIndex(path, "/"); i > 0 {
			obj, perr := s.Get(ctx, path[:i])
			if perr != nil || obj == nil {
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
	return value, nil
}

func (s *Store) GetChildren(ctx context.Context, path string) (map[string][]byte, error) {
	prefix := path + "/"
	rows, err := s.db.QueryContext(ctx, "SELECT path, value FROM kv WHERE path LIKE ?", prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	children := make(map[string][]byte)
	for rows.Next() {
		var p string
		var v []byte
		if err := rows.Scan(&p, &v); err != nil {
			return nil, err
		}
		rest := p[len(prefix):]
		if strings.Contains(rest, "/") {
			continue
		}
		children[rest] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, "/users") {
		s.dropStale(children)
	}
	return children, nil
}

// dropStale removes roster entries whose lastActive heartbeat is older than
// the staleness window. Polling backends have no disconnect signal; this is
// the self-correction they get instead.
func (s *Store) dropStale(users map[string][]byte) {
	cutoff := time.Now().Add(-StaleAfter).UnixMilli()
	for id, raw := range users {
		var entry struct {
			LastActive int64 `json:"lastActive"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if entry.LastActive > 0 && entry.LastActive < cutoff {
			delete(users, id)
		}
	}
}

func (s *Store) Set(ctx context.Context, path string, value []byte) error {
	if i := strings.LastIndex(path, "/"); i > 0 {
		var exists int
		s.db.QueryRowContext(ctx, "SELECT 1 FROM kv WHERE path = ?", path).Scan(&exists)
		if exists == 0 {
			if obj, err := s.leaf(ctx, path[:i]); err == nil && obj != nil {
				merged, err := store.SetField(obj, path[i+1:], value)
				if err != nil {
					return err
				}
				return s.upsert(ctx, path[:i], merged)
			}
		}
	}
	return s.upsert(ctx, path, value)
}

func (s *Store) leaf(ctx context.Context, path string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE path = ?", path).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return value, err
}

func (s *Store) upsert(ctx context.Context, path string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (path, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

func (s *Store) Push(ctx context.Context, path string, value []byte) (string, error) {
	key := store.NewPushKey(time.Now())
	if err := s.upsert(ctx, path+"/"+key, value); err != nil {
		return "", fmt.Errorf("failed to push to %s: %w", path, err)
	}
	return key, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE path = ? OR path LIKE ?", path, path+"/%")
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if i := strings.LastIndex(path, "/"); i > 0 {
			obj, err := s.leaf(ctx, path[:i])
			if err != nil || obj == nil {
				return err
			}
			trimmed, had, err := store.DeleteField(obj, path[i+1:])
			if err != nil {
				return err
			}
			if had {
				return s.upsert(ctx, path[:i], trimmed)
			}
		}
	}
	return nil
}

func (s *Store) WatchValue(ctx context.Context, path string, fn store.ValueFunc) (store.Watch, error) {
	last, err := s.valueAt(ctx, path)
	if err != nil {
		return nil, err
	}
	fn(last)

	w := &pollWatch{stop: make(chan struct{})}
	s.track(w)
	go func() {
		ticker := time.NewTicker(valuePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				cur, err := s.valueAt(context.Background(), path)
				if err != nil {
					continue
				}
				if !bytes.Equal(cur, last) {
					last = cur
					fn(cur)
				}
			}
		}
	}()
	return w, nil
}

func (s *Store) WatchChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Watch, error) {
	seen := make(map[string]bool)
	deliver := func(children map[string][]byte) {
		keys := make([]string, 0, len(children))
		for k := range children {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			fn(k, children[k])
		}
	}

	existing, err := s.GetChildren(ctx, path)
	if err != nil {
		return nil, err
	}
	deliver(existing)

	w := &pollWatch{stop: make(chan struct{})}
	s.track(w)
	go func() {
		ticker := time.NewTicker(childPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				children, err := s.GetChildren(context.Background(), path)
				if err != nil {
					continue
				}
				deliver(children)
			}
		}
	}()
	return w, nil
}

// RemoveOnDisconnect is a no-op: a polling backend has no connection whose
// loss could trigger it. Staleness filtering on the roster stands in.
func (s *Store) RemoveOnDisconnect(ctx context.Context, path string) error {
	return nil
}

// ServerNow returns the local clock; in degraded mode there is no other one.
func (s *Store) ServerNow(ctx context.Context) (int64, error) {
	return time.Now().UnixMilli(), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watches := s.watches
	s.watches = nil
	s.mu.Unlock()

	for _, w := range watches {
		w.Cancel()
	}
	return s.db.Close()
}

func (s *Store) track(w *pollWatch) {
	s.mu.Lock()
	s.watches = append(s.watches, w)
	s.mu.Unlock()
}

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
