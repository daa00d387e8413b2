package service

import (
	"context"
	"sync"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store/storetest"
)

// recordAnnouncer captures every cue for assertions.
type recordAnnouncer struct {
	mu         sync.Mutex
	says       []string
	countdowns []int
	notifies   []string
}

func (a *recordAnnouncer) Say(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.says = append(a.says, text)
}

func (a *recordAnnouncer) Countdown(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.countdowns = append(a.countdowns, n)
}

func (a *recordAnnouncer) Notify(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifies = append(a.notifies, message)
}

func (a *recordAnnouncer) Says() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.says...)
}

func (a *recordAnnouncer) Notifies() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.notifies...)
}

func (a *recordAnnouncer) Countdowns() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.countdowns...)
}

// memConnector hands out per-client connections on a shared memory store.
func memConnector(m *storetest.Memory) StoreConnector {
	return func(ctx context.Context, code, userID string) (store.Store, error) {
		return m.Conn(), nil
	}
}

func failConnector(err error) StoreConnector {
	return func(ctx context.Context, code, userID string) (store.Store, error) {
		return nil, err
	}
}

// chanHandler forwards commands to a channel for synchronization with the
// coordinator's dispatch goroutine.
type chanHandler struct {
	ch chan model.Command
}

func newChanHandler() *chanHandler {
	return &chanHandler{ch: make(chan model.Command, 8)}
}

func (h *chanHandler) HandleCommand(ctx context.Context, cmd model.Command) {
	h.ch <- cmd
}

// newClient wires an exchange and coordinator pair against the shared store.
func newClient(m *storetest.Memory, userID, userName string) (*SessionCoordinator, *PhotoExchange, *recordAnnouncer) {
	ann := &recordAnnouncer{}
	exchange := NewPhotoExchange(userID, userName, ann)
	coord := NewSessionCoordinator(userID, userName, memConnector(m), nil, exchange, ann)
	return coord, exchange, ann
}
