package service

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log"
	"sync"
	"time"

	"github.com/kaushikasemwal/vintage-photobooth/internal/camera"
	"github.com/kaushikasemwal/vintage-photobooth/internal/filter"
	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
)

// Capture sequence timing. The countdown cadence is shared by every
// client so a broadcast capture stays roughly synchronized.
const (
	leadInDelay       = 2 * time.Second
	countdownStep     = 1 * time.Second
	capturePause      = 300 * time.Millisecond
	encouragePause    = 1800 * time.Millisecond
	finalizeCueDelay  = 1 * time.Second
	soloStripSettle   = 500 * time.Millisecond
	collabStripSettle = 2 * time.Second
)

const captureJPEGQuality = 92

// CaptureState names the sequencer's current phase.
type CaptureState int

const (
	StateIdle CaptureState = iota
	StatePriming
	StateCountdown
	StateCapturing
	StateCooldown
	StateFinalizing
)

func (s CaptureState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePriming:
		return "priming"
	case StateCountdown:
		return "countdown"
	case StateCapturing:
		return "capturing"
	case StateCooldown:
		return "cooldown"
	case StateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

var encouragements = [...]string{
	"Fabulous! Next pose!",
	"Stunning! Keep going!",
	"Marvelous! One more!",
	"Perfect! Another one!",
}

// GallerySaver persists individual captures outside the session. Optional.
type GallerySaver interface {
	SavePhoto(ctx context.Context, item *model.GalleryItem) error
}

// CaptureService runs timed capture sequences against the camera, applies
// the active filter, shares each frame through the exchange, and hands
// finished sets to the strip service. It implements CommandHandler so
// host-broadcast captures drive the same sequence.
type CaptureService struct {
	device    camera.Device
	exchange  *PhotoExchange
	strips    *StripService
	coord     *SessionCoordinator
	announcer Announcer
	gallery   GallerySaver

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state CaptureState
	kind  filter.Kind

	// OnStripReady receives each finished strip: solo first, then the
	// collaborative one when a session produced shared photos. Optional.
	OnStripReady func(data []byte, collaborative bool)
}

// NewCaptureService wires the sequencer. gallery may be nil.
func NewCaptureService(device camera.Device, exchange *PhotoExchange, strips *StripService, coord *SessionCoordinator, announcer Announcer, gallery GallerySaver) *CaptureService {
	if announcer == nil {
		announcer = NopAnnouncer{}
	}
	return &CaptureService{
		device:    device,
		exchange:  exchange,
		strips:    strips,
		coord:     coord,
		announcer: announcer,
		gallery:   gallery,
		sleep:     sleepCtx,
		state:     StateIdle,
		kind:      filter.Default,
	}
}

// SetFilter selects the look applied to subsequent captures.
func (c *CaptureService) SetFilter(kind filter.Kind) {
	c.mu.Lock()
	c.kind = kind
	c.mu.Unlock()
	if c.coord != nil {
		c.coord.SetFilter(string(kind))
	}
}

// Filter returns the active look.
func (c *CaptureService) Filter() filter.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

// State returns the sequencer's current phase.
func (c *CaptureService) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartCapture runs a full capture sequence initiated locally. Requested
// counts outside 2 through 4 fall back to 4. In a session each
// participant takes ceil(requested / participants) photos and, when this
// client is host, the same per-participant count is broadcast so everyone
// captures in step.
func (c *CaptureService) StartCapture(ctx context.Context, requested int) error {
	if requested < 2 || requested > 4 {
		requested = 4
	}

	count := requested
	inSession := c.coord != nil && c.coord.InSession()
	if inSession {
		participants := c.coord.RosterCount()
		if participants < 1 {
			participants = 1
		}
		count = (requested + participants - 1) / participants
		if c.coord.IsHost() {
			c.announcer.Notify(fmt.Sprintf("Each of the %d participants will take %d photo(s)!", participants, count))
			if err := c.coord.SendCommand(ctx, model.CommandCapture, count); err != nil {
				log.Printf("failed to broadcast capture command: %v", err)
			}
		}
	}

	if err := c.begin(); err != nil {
		return err
	}
	defer c.setState(StateIdle)

	captured, err := c.runSequence(ctx, count)
	if err != nil {
		return err
	}
	if captured == 0 {
		c.abandonSession()
		return model.ErrNoPhotosCaptured
	}
	return c.finalize(ctx, inSession)
}

// HandleCommand runs the capture sequence a host broadcast. The command's
// count is already per-participant; counts below 1 are raised to 1.
// Finalization is skipped: the host assembles and publishes the
// collaborative strip for everyone.
func (c *CaptureService) HandleCommand(ctx context.Context, cmd model.Command) {
	count := cmd.TotalPhotos
	if count < 1 {
		count = 1
	}
	c.announcer.Notify("Host is taking a group photo! Get ready!")

	if err := c.begin(); err != nil {
		log.Printf("capture command ignored: %v", err)
		return
	}
	defer c.setState(StateIdle)

	captured, err := c.runSequence(ctx, count)
	if err != nil {
		log.Printf("broadcast capture failed: %v", err)
		return
	}
	if captured == 0 {
		log.Printf("broadcast capture produced no photos")
		c.abandonSession()
		return
	}
	c.announcer.Say("Your photos are absolutely stunning, darling!")
}

// ArchiveStrip saves a finished strip to the gallery, the way ending a
// collaborative session keeps the group strip. No-op without a gallery.
func (c *CaptureService) ArchiveStrip(ctx context.Context, data []byte) error {
	if c.gallery == nil || len(data) == 0 {
		return nil
	}
	item := &model.GalleryItem{
		UserID:   c.exchange.userID,
		UserName: c.exchange.userName,
		Photo:    data,
		Filter:   "strip",
		TakenAt:  time.Now().UnixMilli(),
	}
	if c.coord != nil {
		item.SessionCode = c.coord.Code()
	}
	if err := c.gallery.SavePhoto(ctx, item); err != nil {
		return fmt.Errorf("failed to save strip to gallery: %w", err)
	}
	return nil
}

// abandonSession tears the session down locally after a sequence that
// produced nothing, returning the client to its initial state.
func (c *CaptureService) abandonSession() {
	if c.coord == nil || !c.coord.InSession() {
		return
	}
	c.coord.Leave()
}

func (c *CaptureService) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("capture already in progress (%s)", c.state)
	}
	c.state = StatePriming
	return nil
}

func (c *CaptureService) setState(s CaptureState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// runSequence captures count frames on the shared cadence. Device errors
// skip the frame so a transient fault loses one photo, not the sequence.
// Returns how many frames were actually captured.
func (c *CaptureService) runSequence(ctx context.Context, count int) (int, error) {
	c.exchange.ResetOwn()

	c.announcer.Say("Get ready, darling! Strike a pose!")
	if err := c.sleep(ctx, leadInDelay); err != nil {
		return 0, err
	}

	captured := 0
	for i := 0; i < count; i++ {
		c.setState(StateCountdown)
		for j := 3; j > 0; j-- {
			c.announcer.Countdown(j)
			switch j {
			case 3:
				c.announcer.Say("Three")
			case 2:
				c.announcer.Say("Two")
			case 1:
				c.announcer.Say("One")
			}
			if err := c.sleep(ctx, countdownStep); err != nil {
				return captured, err
			}
		}

		c.setState(StateCapturing)
		c.announcer.Countdown(0)
		c.announcer.Say("Gorgeous!")
		if err := c.captureOne(ctx); err != nil {
			log.Printf("failed to capture photo %d of %d: %v", i+1, count, err)
		} else {
			captured++
		}
		if err := c.sleep(ctx, capturePause); err != nil {
			return captured, err
		}

		if i < count-1 {
			c.setState(StateCooldown)
			c.announcer.Say(encouragements[i%len(encouragements)])
			if err := c.sleep(ctx, encouragePause); err != nil {
				return captured, err
			}
		}
	}
	return captured, nil
}

// captureOne grabs a frame, applies the filter, encodes it, shares it, and
// saves it to the gallery when one is configured.
func (c *CaptureService) captureOne(ctx context.Context) error {
	frame, err := c.device.Frame()
	if err != nil {
		return fmt.Errorf("failed to read frame: %w", err)
	}

	c.mu.Lock()
	kind := c.kind
	c.mu.Unlock()

	processed := filter.Apply(kind, frame)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, processed, &jpeg.Options{Quality: captureJPEGQuality}); err != nil {
		return fmt.Errorf("failed to encode photo: %w", err)
	}
	data := buf.Bytes()

	if err := c.exchange.Share(ctx, data, string(kind)); err != nil {
		log.Printf("photo kept locally only: %v", err)
	}

	if c.gallery != nil {
		item := &model.GalleryItem{
			UserID:   c.exchange.userID,
			UserName: c.exchange.userName,
			Photo:    data,
			Filter:   string(kind),
			TakenAt:  time.Now().UnixMilli(),
		}
		if c.coord != nil {
			item.SessionCode = c.coord.Code()
		}
		if err := c.gallery.SavePhoto(ctx, item); err != nil {
			log.Printf("failed to save photo to gallery: %v", err)
		}
	}
	return nil
}

// finalize renders the solo strip, then the collaborative strip when the
// session actually produced shared photos from others.
func (c *CaptureService) finalize(ctx context.Context, inSession bool) error {
	c.setState(StateFinalizing)
	c.announcer.Say("Your photos are absolutely stunning, darling!")
	if err := c.sleep(ctx, finalizeCueDelay); err != nil {
		return err
	}

	code := ""
	if c.coord != nil {
		code = c.coord.Code()
	}
	solo, err := c.strips.CreateSoloStrip(code)
	if err != nil {
		return fmt.Errorf("failed to create strip: %w", err)
	}
	if c.OnStripReady != nil {
		c.OnStripReady(solo, false)
	}
	if err := c.sleep(ctx, soloStripSettle); err != nil {
		return err
	}

	if !inSession || c.exchange.ReceivedCount() == 0 {
		return nil
	}
	c.announcer.Say("Wonderful! Creating collaborative strip, darling!")
	// Let the other participants' photos finish syncing.
	if err := c.sleep(ctx, collabStripSettle); err != nil {
		return err
	}
	collab, err := c.strips.CreateCollaborativeStrip(ctx, c.coord.sessionStore(), c.coord.Code())
	if err != nil && collab == nil {
		return fmt.Errorf("failed to create collaborative strip: %w", err)
	}
	if err != nil {
		log.Printf("collaborative strip kept locally only: %v", err)
	}
	if c.OnStripReady != nil {
		c.OnStripReady(collab, true)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
