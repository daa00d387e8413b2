package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kaushikasemwal/vintage-photobooth/internal/camera"
	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store/storetest"
)

type renderCall struct {
	photos   []StripPhoto
	title    string
	subtitle string
	footer   string
}

// stubRenderer records render calls and returns canned bytes.
type stubRenderer struct {
	mu    sync.Mutex
	calls []renderCall
	err   error
}

func (r *stubRenderer) Render(photos []StripPhoto, title, subtitle, footer string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.calls = append(r.calls, renderCall{photos: photos, title: title, subtitle: subtitle, footer: footer})
	return []byte("strip-" + title), nil
}

func (r *stubRenderer) Calls() []renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderCall(nil), r.calls...)
}

// brokenDevice fails every frame.
type brokenDevice struct{}

func (brokenDevice) Open() error                 { return nil }
func (brokenDevice) Frame() (image.Image, error) { return nil, errors.New("no signal") }
func (brokenDevice) Close() error                { return nil }

func instantSleep(ctx context.Context, d time.Duration) error { return nil }

// fakeGallery records saved items in memory.
type fakeGallery struct {
	mu    sync.Mutex
	items []*model.GalleryItem
	err   error
}

func (g *fakeGallery) SavePhoto(ctx context.Context, item *model.GalleryItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.items = append(g.items, item)
	return nil
}

func (g *fakeGallery) Items() []*model.GalleryItem {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*model.GalleryItem(nil), g.items...)
}

func newSoloCapture(t *testing.T) (*CaptureService, *PhotoExchange, *stubRenderer, *recordAnnouncer) {
	t.Helper()
	ann := &recordAnnouncer{}
	exchange := NewPhotoExchange("user_000000001", "Ada", ann)
	renderer := &stubRenderer{}
	strips := NewStripService("user_000000001", "Ada", renderer, exchange)
	device := camera.NewSynthetic(64, 48, 1)
	if err := device.Open(); err != nil {
		t.Fatal(err)
	}
	capture := NewCaptureService(device, exchange, strips, nil, ann, nil)
	capture.sleep = instantSleep
	return capture, exchange, renderer, ann
}

func TestStartCapture_SoloSequence(t *testing.T) {
	capture, exchange, renderer, ann := newSoloCapture(t)

	if err := capture.StartCapture(context.Background(), 3); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}

	if got := len(exchange.OwnPhotos()); got != 3 {
		t.Fatalf("captured %d photos, want 3", got)
	}

	says := ann.Says()
	if says[0] != "Get ready, darling! Strike a pose!" {
		t.Errorf("first cue = %q", says[0])
	}
	counts := map[string]int{}
	for _, s := range says {
		counts[s]++
	}
	for _, cue := range []string{"Three", "Two", "One", "Gorgeous!"} {
		if counts[cue] != 3 {
			t.Errorf("cue %q spoken %d times, want 3", cue, counts[cue])
		}
	}
	if counts["Fabulous! Next pose!"] != 1 || counts["Stunning! Keep going!"] != 1 {
		t.Error("encouragements not rotated between photos")
	}
	if counts["Your photos are absolutely stunning, darling!"] != 1 {
		t.Error("finalize cue missing")
	}

	// 3 photos x (3..1 digits + the capture moment).
	if got := len(ann.Countdowns()); got != 12 {
		t.Errorf("countdown fired %d times, want 12", got)
	}

	calls := renderer.Calls()
	if len(calls) != 1 {
		t.Fatalf("renderer called %d times, want 1 (solo only)", len(calls))
	}
	if calls[0].title != "VINTAGE MEMORIES" {
		t.Errorf("solo title = %q", calls[0].title)
	}
	if len(calls[0].photos) != 3 {
		t.Errorf("solo strip has %d photos, want 3", len(calls[0].photos))
	}

	if capture.State() != StateIdle {
		t.Errorf("state = %v after sequence, want idle", capture.State())
	}
}

func TestStartCapture_ClampsRequestedCount(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{1, 4},
		{2, 2},
		{4, 4},
		{7, 4},
		{-3, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("requested_%d", tt.requested), func(t *testing.T) {
			capture, exchange, _, _ := newSoloCapture(t)
			if err := capture.StartCapture(context.Background(), tt.requested); err != nil {
				t.Fatalf("StartCapture(%d) error = %v", tt.requested, err)
			}
			if got := len(exchange.OwnPhotos()); got != tt.want {
				t.Errorf("StartCapture(%d) captured %d, want %d", tt.requested, got, tt.want)
			}
		})
	}
}

func TestStartCapture_DeviceFailure(t *testing.T) {
	ann := &recordAnnouncer{}
	exchange := NewPhotoExchange("user_000000001", "Ada", ann)
	strips := NewStripService("user_000000001", "Ada", &stubRenderer{}, exchange)
	capture := NewCaptureService(brokenDevice{}, exchange, strips, nil, ann, nil)
	capture.sleep = instantSleep

	err := capture.StartCapture(context.Background(), 2)
	if !errors.Is(err, model.ErrNoPhotosCaptured) {
		t.Fatalf("StartCapture() error = %v, want ErrNoPhotosCaptured", err)
	}
	if capture.State() != StateIdle {
		t.Errorf("state = %v after failed sequence, want idle", capture.State())
	}
}

func TestCaptureService_Gallery(t *testing.T) {
	ann := &recordAnnouncer{}
	exchange := NewPhotoExchange("user_000000001", "Ada", ann)
	strips := NewStripService("user_000000001", "Ada", &stubRenderer{}, exchange)
	device := camera.NewSynthetic(64, 48, 1)
	if err := device.Open(); err != nil {
		t.Fatal(err)
	}
	gallery := &fakeGallery{}
	capture := NewCaptureService(device, exchange, strips, nil, ann, gallery)
	capture.sleep = instantSleep

	if err := capture.StartCapture(context.Background(), 2); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	items := gallery.Items()
	if len(items) != 2 {
		t.Fatalf("gallery holds %d items after capture, want 2", len(items))
	}
	if items[0].UserID != "user_000000001" || items[0].UserName != "Ada" {
		t.Errorf("gallery item owner = %s/%s", items[0].UserID, items[0].UserName)
	}
	if items[0].Filter != "sepia" {
		t.Errorf("gallery item filter = %q, want sepia", items[0].Filter)
	}

	if err := capture.ArchiveStrip(context.Background(), []byte("strip-bytes")); err != nil {
		t.Fatalf("ArchiveStrip() error = %v", err)
	}
	items = gallery.Items()
	if len(items) != 3 {
		t.Fatalf("gallery holds %d items after archive, want 3", len(items))
	}
	last := items[2]
	if last.Filter != "strip" || string(last.Photo) != "strip-bytes" {
		t.Errorf("archived strip = %q/%q", last.Filter, last.Photo)
	}
}

func TestArchiveStrip_NoGalleryOrData(t *testing.T) {
	capture, _, _, _ := newSoloCapture(t)
	if err := capture.ArchiveStrip(context.Background(), []byte("x")); err != nil {
		t.Errorf("ArchiveStrip() without gallery = %v, want nil", err)
	}

	gallery := &fakeGallery{}
	capture.gallery = gallery
	if err := capture.ArchiveStrip(context.Background(), nil); err != nil {
		t.Errorf("ArchiveStrip(nil) = %v, want nil", err)
	}
	if len(gallery.Items()) != 0 {
		t.Error("empty strip was saved")
	}
}

func TestStartCapture_NoPhotosTearsDownSession(t *testing.T) {
	ctx := context.Background()
	mem := storetest.New()

	coord, exchange, ann := newClient(mem, "user_000000001", "Ada")
	if _, err := coord.CreateSession(ctx); err != nil {
		t.Fatal(err)
	}
	strips := NewStripService("user_000000001", "Ada", &stubRenderer{}, exchange)
	capture := NewCaptureService(brokenDevice{}, exchange, strips, coord, ann, nil)
	capture.sleep = instantSleep

	err := capture.StartCapture(ctx, 2)
	if !errors.Is(err, model.ErrNoPhotosCaptured) {
		t.Fatalf("StartCapture() error = %v, want ErrNoPhotosCaptured", err)
	}
	if coord.InSession() {
		t.Error("still in session after an empty capture sequence")
	}
	if capture.State() != StateIdle {
		t.Errorf("state = %v after failed sequence, want idle", capture.State())
	}
}

func TestStartCapture_RejectsConcurrentRuns(t *testing.T) {
	capture, _, _, _ := newSoloCapture(t)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	capture.sleep = func(ctx context.Context, d time.Duration) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- capture.StartCapture(context.Background(), 2) }()
	<-started

	if err := capture.StartCapture(context.Background(), 2); err == nil {
		t.Error("second StartCapture() succeeded while one was running")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first StartCapture() error = %v", err)
	}
}

func TestHandleCommand_UsesPayloadCount(t *testing.T) {
	tests := []struct {
		total int
		want  int
	}{
		{2, 2},
		{0, 1},
		{-1, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("total_%d", tt.total), func(t *testing.T) {
			capture, exchange, _, ann := newSoloCapture(t)
			capture.HandleCommand(context.Background(), model.Command{
				Type:        model.CommandCapture,
				HostID:      "user_000000009",
				TotalPhotos: tt.total,
			})
			if got := len(exchange.OwnPhotos()); got != tt.want {
				t.Errorf("HandleCommand(total=%d) captured %d, want %d", tt.total, got, tt.want)
			}
			found := false
			for _, n := range ann.Notifies() {
				if strings.Contains(n, "Host is taking a group photo") {
					found = true
				}
			}
			if !found {
				t.Error("group-photo notification missing")
			}
		})
	}
}

func TestStartCapture_SessionSplitsPhotoCount(t *testing.T) {
	ctx := context.Background()
	mem := storetest.New()
	code := "AB12CD"

	// Two peers already present.
	for i := 2; i <= 3; i++ {
		data, _ := json.Marshal(&model.Participant{Name: fmt.Sprintf("P%d", i)})
		if err := mem.Set(ctx, store.UserPath(code, fmt.Sprintf("user_00000000%d", i)), data); err != nil {
			t.Fatal(err)
		}
	}

	coord, exchange, ann := newClient(mem, "user_000000001", "Ada")
	if err := coord.Join(ctx, code, false); err != nil {
		t.Fatal(err)
	}
	defer coord.Leave()
	if got := coord.RosterCount(); got != 3 {
		t.Fatalf("RosterCount() = %d, want 3", got)
	}
	if !coord.IsHost() {
		t.Fatal("first joiner did not claim host role")
	}

	renderer := &stubRenderer{}
	strips := NewStripService("user_000000001", "Ada", renderer, exchange)
	device := camera.NewSynthetic(64, 48, 1)
	if err := device.Open(); err != nil {
		t.Fatal(err)
	}
	capture := NewCaptureService(device, exchange, strips, coord, ann, nil)
	capture.sleep = instantSleep

	// ceil(4 photos / 3 participants) = 2 each.
	if err := capture.StartCapture(ctx, 4); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	if got := len(exchange.OwnPhotos()); got != 2 {
		t.Errorf("host captured %d photos, want 2", got)
	}

	cmds, _ := mem.GetChildren(ctx, store.CommandsPath(code))
	if len(cmds) != 1 {
		t.Fatalf("command log has %d entries, want 1", len(cmds))
	}
	for _, raw := range cmds {
		var cmd model.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			t.Fatal(err)
		}
		if cmd.TotalPhotos != 2 {
			t.Errorf("broadcast totalPhotos = %d, want 2 per participant", cmd.TotalPhotos)
		}
	}

	// No peer actually shared photos, so only the solo strip renders.
	calls := renderer.Calls()
	if len(calls) != 1 || calls[0].title != "VINTAGE MEMORIES" {
		t.Errorf("renderer calls = %d, want solo strip only", len(calls))
	}
}

func TestCaptureSession_CollaborativeStrip(t *testing.T) {
	ctx := context.Background()
	mem := storetest.New()

	hostCoord, hostEx, hostAnn := newClient(mem, "user_000000001", "Ada")
	code, err := hostCoord.CreateSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer hostCoord.Leave()

	guestCoord, guestEx, _ := newClient(mem, "user_000000002", "Brie")
	if err := guestCoord.Join(ctx, code, false); err != nil {
		t.Fatal(err)
	}
	defer guestCoord.Leave()

	device := camera.NewSynthetic(64, 48, 1)
	if err := device.Open(); err != nil {
		t.Fatal(err)
	}

	hostRenderer := &stubRenderer{}
	hostStrips := NewStripService("user_000000001", "Ada", hostRenderer, hostEx)
	hostCapture := NewCaptureService(device, hostEx, hostStrips, hostCoord, hostAnn, nil)
	// The solo settle waits for the guest's photos instead of wall time so
	// the received-photos check that follows it passes deterministically.
	hostCapture.sleep = func(ctx context.Context, d time.Duration) error {
		if d == soloStripSettle {
			deadline := time.Now().Add(5 * time.Second)
			for hostEx.ReceivedCount() == 0 {
				if time.Now().After(deadline) {
					return nil
				}
				time.Sleep(5 * time.Millisecond)
			}
		}
		return nil
	}

	guestRenderer := &stubRenderer{}
	guestStrips := NewStripService("user_000000002", "Brie", guestRenderer, guestEx)
	guestCapture := NewCaptureService(device, guestEx, guestStrips, guestCoord, &recordAnnouncer{}, nil)
	guestCapture.sleep = instantSleep
	guestCoord.SetCommandHandler(guestCapture)

	if err := hostCapture.StartCapture(ctx, 2); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	strips := hostRenderer.Calls()

	if len(strips) != 2 {
		t.Fatalf("host rendered %d strips, want solo + collaborative", len(strips))
	}
	collab := strips[1]
	if collab.title != "COLLABORATIVE MEMORIES" {
		t.Errorf("collab title = %q", collab.title)
	}
	if !strings.Contains(collab.subtitle, code) {
		t.Errorf("collab subtitle = %q, want session code", collab.subtitle)
	}
	if collab.footer != "With: Ada, Brie" {
		t.Errorf("collab footer = %q, want both names once in first-appearance order", collab.footer)
	}

	// The published strip reaches the session.
	raw, err := mem.Get(ctx, store.StripPath(code))
	if err != nil || raw == nil {
		t.Fatalf("collaborative strip not published: %v", err)
	}
	var artifact model.StripArtifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		t.Fatal(err)
	}
	if artifact.CreatedBy != "user_000000001" {
		t.Errorf("strip createdBy = %q", artifact.CreatedBy)
	}
	if len(artifact.Participants) != 2 {
		t.Errorf("strip participants = %v, want 2 names", artifact.Participants)
	}
}
