package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store/storetest"
)

func TestParticipantNames_DedupesInFirstAppearanceOrder(t *testing.T) {
	photos := []model.SharedPhoto{
		{UserID: "user_1", UserName: "Ada"},
		{UserID: "user_2", UserName: "Brie"},
		{UserID: "user_1", UserName: "Ada"},
		{UserID: "user_3", UserName: "Cleo"},
		{UserID: "user_2", UserName: "Brie"},
	}
	got := participantNames(photos)
	want := []string{"Ada", "Brie", "Cleo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("participantNames() = %v, want %v", got, want)
	}
}

func TestCreateSoloStrip(t *testing.T) {
	ann := &recordAnnouncer{}
	exchange := NewPhotoExchange("user_000000001", "Ada", ann)
	renderer := &stubRenderer{}
	strips := NewStripService("user_000000001", "Ada", renderer, exchange)

	if _, err := strips.CreateSoloStrip(""); !errors.Is(err, model.ErrNoPhotosCaptured) {
		t.Fatalf("CreateSoloStrip() with no photos error = %v, want ErrNoPhotosCaptured", err)
	}

	if err := exchange.Share(context.Background(), []byte("p1"), "sepia"); err != nil {
		t.Fatal(err)
	}
	data, err := strips.CreateSoloStrip("AB12CD")
	if err != nil {
		t.Fatalf("CreateSoloStrip() error = %v", err)
	}
	if len(data) == 0 {
		t.Error("CreateSoloStrip() returned empty image")
	}
	calls := renderer.Calls()
	if calls[0].subtitle != "Session: AB12CD" {
		t.Errorf("solo subtitle = %q", calls[0].subtitle)
	}
	if calls[0].footer != "" {
		t.Errorf("solo footer = %q, want empty", calls[0].footer)
	}
}

func TestCreateCollaborativeStrip_UploadFailureKeepsLocalCopy(t *testing.T) {
	ctx := context.Background()
	mem := storetest.New()
	code := "AB12CD"
	mem.SetErrs = map[string]error{store.StripPath(code): errors.New("quota exceeded")}

	ann := &recordAnnouncer{}
	exchange := NewPhotoExchange("user_000000001", "Ada", ann)
	exchange.Bind(mem, code)
	renderer := &stubRenderer{}
	strips := NewStripService("user_000000001", "Ada", renderer, exchange)

	if err := exchange.Share(ctx, []byte("p1"), "sepia"); err != nil {
		t.Fatal(err)
	}
	exchange.Receive(model.SharedPhoto{UserID: "user_000000002", UserName: "Brie", PhotoData: []byte("p2")})

	data, err := strips.CreateCollaborativeStrip(ctx, mem, code)
	if !errors.Is(err, model.ErrArtifactUploadFailed) {
		t.Fatalf("CreateCollaborativeStrip() error = %v, want ErrArtifactUploadFailed", err)
	}
	if len(data) == 0 {
		t.Error("rendered strip lost on upload failure, want local copy returned")
	}
}

func TestCreateCollaborativeStrip_OrdersOwnThenReceived(t *testing.T) {
	ctx := context.Background()
	ann := &recordAnnouncer{}
	exchange := NewPhotoExchange("user_000000001", "Ada", ann)
	renderer := &stubRenderer{}
	strips := NewStripService("user_000000001", "Ada", renderer, exchange)

	exchange.Receive(model.SharedPhoto{UserID: "user_000000002", UserName: "Brie", PhotoData: []byte("theirs")})
	if err := exchange.Share(ctx, []byte("mine"), "sepia"); err != nil {
		t.Fatal(err)
	}

	if _, err := strips.CreateCollaborativeStrip(ctx, nil, "AB12CD"); err != nil {
		t.Fatalf("CreateCollaborativeStrip() error = %v", err)
	}
	call := renderer.Calls()[0]
	if len(call.photos) != 2 {
		t.Fatalf("strip has %d photos, want 2", len(call.photos))
	}
	if call.photos[0].OwnerName != "Ada" || call.photos[1].OwnerName != "Brie" {
		t.Errorf("photo order = [%s, %s], want own photos before received",
			call.photos[0].OwnerName, call.photos[1].OwnerName)
	}
}
