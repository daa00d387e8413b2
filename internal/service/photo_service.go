package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
)

// PhotoExchange broadcasts this client's captures into the session photo
// log and collects photos received from peers. Own photos are kept in local
// capture order, received photos in receipt order; nothing imposes a global
// order across clients.
type PhotoExchange struct {
	userID    string
	userName  string
	announcer Announcer

	mu       sync.Mutex
	st       store.Store
	code     string
	own      []model.SharedPhoto
	received []model.SharedPhoto
}

// NewPhotoExchange creates a photo exchange for one client identity.
func NewPhotoExchange(userID, userName string, announcer Announcer) *PhotoExchange {
	if announcer == nil {
		announcer = NopAnnouncer{}
	}
	return &PhotoExchange{userID: userID, userName: userName, announcer: announcer}
}

// Bind attaches the exchange to a live session. Called by the coordinator
// at join time.
func (e *PhotoExchange) Bind(st store.Store, code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st = st
	e.code = code
	e.received = nil
}

// Unbind detaches from the session and forgets received photos.
func (e *PhotoExchange) Unbind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st = nil
	e.code = ""
	e.received = nil
}

// ResetOwn clears the local capture list at the start of a sequence.
func (e *PhotoExchange) ResetOwn() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.own = nil
}

// Share records a capture locally and, when a session is bound, appends it
// to the session photo log and refreshes this client's roster photo count.
// The local record is kept even when the broadcast fails.
func (e *PhotoExchange) Share(ctx context.Context, photoData []byte, filterName string) error {
	e.mu.Lock()
	st, code := e.st, e.code
	photo := model.SharedPhoto{
		UserID:    e.userID,
		UserName:  e.userName,
		PhotoData: photoData,
		Filter:    filterName,
	}
	e.own = append(e.own, photo)
	count := len(e.own)
	e.mu.Unlock()

	if st == nil {
		return nil
	}

	now, err := st.ServerNow(ctx)
	if err != nil {
		log.Printf("failed to read server time for photo: %v", err)
	}
	photo.Timestamp = now

	data, err := json.Marshal(photo)
	if err != nil {
		return fmt.Errorf("failed to encode photo: %w", err)
	}
	if _, err := st.Push(ctx, store.PhotosPath(code), data); err != nil {
		log.Printf("photo upload failed: %v", err)
		e.announcer.Notify("Failed to share photo with session")
		return fmt.Errorf("%w: %v", model.ErrArtifactUploadFailed, err)
	}

	// Display-only counter; never used for synchronization.
	countJSON, _ := json.Marshal(count)
	if err := st.Set(ctx, store.UserPath(code, e.userID)+"/photoCount", countJSON); err != nil {
		log.Printf("failed to update photo count: %v", err)
	}
	return nil
}

// Receive handles one photo-log entry observed on the session. Entries
// originating from this client are ignored (echo suppression); everything
// else is appended in receipt order, duplicates included.
func (e *PhotoExchange) Receive(photo model.SharedPhoto) {
	if photo.UserID == e.userID {
		return
	}
	e.mu.Lock()
	e.received = append(e.received, photo)
	e.mu.Unlock()
	e.announcer.Notify(fmt.Sprintf("%s just took a photo!", photo.UserName))
}

// OwnPhotos returns this client's captures in capture order.
func (e *PhotoExchange) OwnPhotos() []model.SharedPhoto {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.SharedPhoto(nil), e.own...)
}

// ReceivedPhotos returns peer photos in receipt order.
func (e *PhotoExchange) ReceivedPhotos() []model.SharedPhoto {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.SharedPhoto(nil), e.received...)
}

// ReceivedCount returns how many peer photos are currently known.
func (e *PhotoExchange) ReceivedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.received)
}
