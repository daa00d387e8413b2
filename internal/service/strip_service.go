package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
)

// StripPhoto is one cell of a composite strip: the encoded photo plus the
// name rendered under it.
type StripPhoto struct {
	Data      []byte
	OwnerName string
	Filter    string
}

// StripRenderer lays photos out into a single encoded composite image.
// The render package provides the real implementation.
type StripRenderer interface {
	Render(photos []StripPhoto, title, subtitle, footer string) ([]byte, error)
}

// StripService assembles composite strips from the exchange's photo sets
// and publishes collaborative strips to the session.
type StripService struct {
	userID   string
	userName string
	renderer StripRenderer
	exchange *PhotoExchange
}

// NewStripService wires the renderer to the exchange.
func NewStripService(userID, userName string, renderer StripRenderer, exchange *PhotoExchange) *StripService {
	return &StripService{
		userID:   userID,
		userName: userName,
		renderer: renderer,
		exchange: exchange,
	}
}

// CreateSoloStrip composes this client's own photos into a strip. Returns
// the encoded image.
func (s *StripService) CreateSoloStrip(sessionCode string) ([]byte, error) {
	own := s.exchange.OwnPhotos()
	if len(own) == 0 {
		return nil, model.ErrNoPhotosCaptured
	}
	subtitle := ""
	if sessionCode != "" {
		subtitle = fmt.Sprintf("Session: %s", sessionCode)
	}
	data, err := s.renderer.Render(toStripPhotos(own), "VINTAGE MEMORIES", subtitle, "")
	if err != nil {
		return nil, fmt.Errorf("failed to render solo strip: %w", err)
	}
	return data, nil
}

// CreateCollaborativeStrip composes this client's photos followed by every
// received photo, publishes the result to the session's strip slot, and
// returns the encoded image. An upload failure still returns the rendered
// strip so the client keeps its local copy.
func (s *StripService) CreateCollaborativeStrip(ctx context.Context, st store.Store, sessionCode string) ([]byte, error) {
	own := s.exchange.OwnPhotos()
	received := s.exchange.ReceivedPhotos()
	all := make([]model.SharedPhoto, 0, len(own)+len(received))
	all = append(all, own...)
	all = append(all, received...)
	if len(all) == 0 {
		return nil, model.ErrNoPhotosCaptured
	}

	participants := participantNames(all)
	footer := fmt.Sprintf("With: %s", joinNames(participants))
	subtitle := fmt.Sprintf("Collaborative Session: %s", sessionCode)

	data, err := s.renderer.Render(toStripPhotos(all), "COLLABORATIVE MEMORIES", subtitle, footer)
	if err != nil {
		return nil, fmt.Errorf("failed to render collaborative strip: %w", err)
	}

	if st != nil && sessionCode != "" {
		now, terr := st.ServerNow(ctx)
		if terr != nil {
			log.Printf("failed to read server time for strip: %v", terr)
		}
		artifact := model.StripArtifact{
			StripData:     data,
			CreatedBy:     s.userID,
			CreatedByName: s.userName,
			Timestamp:     now,
			Participants:  participants,
		}
		payload, merr := json.Marshal(artifact)
		if merr == nil {
			merr = st.Set(ctx, store.StripPath(sessionCode), payload)
		}
		if merr != nil {
			log.Printf("failed to publish collaborative strip: %v", merr)
			return data, fmt.Errorf("%w: %v", model.ErrArtifactUploadFailed, merr)
		}
	}
	return data, nil
}

// participantNames returns each contributor's display name once, in order
// of first appearance.
func participantNames(photos []model.SharedPhoto) []string {
	seen := map[string]bool{}
	var names []string
	for _, p := range photos {
		if seen[p.UserName] {
			continue
		}
		seen[p.UserName] = true
		names = append(names, p.UserName)
	}
	return names
}

func toStripPhotos(photos []model.SharedPhoto) []StripPhoto {
	out := make([]StripPhoto, len(photos))
	for i, p := range photos {
		out[i] = StripPhoto{Data: p.PhotoData, OwnerName: p.UserName, Filter: p.Filter}
	}
	return out
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
