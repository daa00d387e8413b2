package storetest

import (
	"context"
	"sync"

	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
)

// Conn is a per-client handle over a shared Memory, mirroring how each real
// client holds its own connection to shared state. Close releases only this
// client's watches and disconnect registrations, leaving other handles on
// the same Memory live.
type Conn struct {
	m *Memory

	mu          sync.Mutex
	watches     []store.Watch
	disconnects []string
	closed      bool
}

// Conn returns a fresh client handle on m.
func (m *Memory) Conn() *Conn {
	return &Conn{m: m}
}

func (c *Conn) Get(ctx context.Context, path string) ([]byte, error) {
	return c.m.Get(ctx, path)
}

func (c *Conn) GetChildren(ctx context.Context, path string) (map[string][]byte, error) {
	return c.m.GetChildren(ctx, path)
}

func (c *Conn) Set(ctx context.Context, path string, value []byte) error {
	return c.m.Set(ctx, path, value)
}

func (c *Conn) Push(ctx context.Context, path string, value []byte) (string, error) {
	return c.m.Push(ctx, path, value)
}

func (c *Conn) Remove(ctx context.Context, path string) error {
	return c.m.Remove(ctx, path)
}

func (c *Conn) WatchValue(ctx context.Context, path string, fn store.ValueFunc) (store.Watch, error) {
	w, err := c.m.WatchValue(ctx, path, fn)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.watches = append(c.watches, w)
	c.mu.Unlock()
	return w, nil
}

func (c *Conn) WatchChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Watch, error) {
	w, err := c.m.WatchChildAdded(ctx, path, fn)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.watches = append(c.watches, w)
	c.mu.Unlock()
	return w, nil
}

func (c *Conn) RemoveOnDisconnect(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects = append(c.disconnects, path)
	return nil
}

func (c *Conn) ServerNow(ctx context.Context) (int64, error) {
	return c.m.ServerNow(ctx)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	watches := c.watches
	paths := c.disconnects
	c.watches = nil
	c.disconnects = nil
	c.mu.Unlock()

	for _, w := range watches {
		w.Cancel()
	}
	for _, p := range paths {
		_ = c.m.Remove(context.Background(), p)
	}
	return nil
}
