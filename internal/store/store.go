// Package store defines the replicated session store contract the
// coordination protocol is built on: a key-value tree with ordered append
// logs, change-notification watches, and disconnect-triggered cleanup.
//
// Consistency model: eventually consistent, last-write-wins per path.
// Watches deliver at-least-once to subscribers connected at notification
// time; entries committed before a subscription are delivered once as a
// synchronous initial batch.
package store

import "context"

// ValueFunc receives the value at a watched path. A nil value means the path
// is absent (or was removed).
type ValueFunc func(value []byte)

// ChildFunc receives one appended child of a watched log path.
type ChildFunc func(key string, value []byte)

// Watch is a cancellation handle for an active subscription. Cancel is
// idempotent and must release the subscription's resources synchronously.
type Watch interface {
	Cancel()
}

// Store is a client connection to the replicated session store. Values are
// opaque JSON; the store never interprets them.
type Store interface {
	// Get returns the value at path, or nil when absent.
	Get(ctx context.Context, path string) ([]byte, error)

	// GetChildren returns all direct children of path keyed by child name,
	// empty when the path has none.
	GetChildren(ctx context.Context, path string) (map[string][]byte, error)

	// Set writes the value at path, replacing any prior value.
	Set(ctx context.Context, path string, value []byte) error

	// Push appends value to the ordered log at path under a fresh
	// store-ordered key and returns that key.
	Push(ctx context.Context, path string, value []byte) (string, error)

	// Remove deletes the subtree rooted at path.
	Remove(ctx context.Context, path string) error

	// WatchValue invokes fn with the current value at path, then again on
	// every subsequent change, until cancelled.
	WatchValue(ctx context.Context, path string, fn ValueFunc) (Watch, error)

	// WatchChildAdded invokes fn once for every existing child of path in
	// key order, then for each newly appended child in commit order, until
	// cancelled.
	WatchChildAdded(ctx context.Context, path string, fn ChildFunc) (Watch, error)

	// RemoveOnDisconnect registers path for removal when this client's
	// connection ends without a graceful Close. A first-class registration,
	// not a side effect of any write.
	RemoveOnDisconnect(ctx context.Context, path string) error

	// ServerNow returns the store's current time in milliseconds. Used for
	// the server-assigned timestamps that tie-break commands and photos.
	ServerNow(ctx context.Context) (int64, error)

	// Close releases the connection and executes any graceful-side cleanup.
	Close() error
}
