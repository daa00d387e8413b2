package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kaushikasemwal/vintage-photobooth/internal/camera"
	"github.com/kaushikasemwal/vintage-photobooth/internal/config"
	"github.com/kaushikasemwal/vintage-photobooth/internal/filter"
	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
	"github.com/kaushikasemwal/vintage-photobooth/internal/render"
	"github.com/kaushikasemwal/vintage-photobooth/internal/repository"
	"github.com/kaushikasemwal/vintage-photobooth/internal/service"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store/localstore"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store/redisstore"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store/relaystore"
)

// consoleAnnouncer renders voice cues and notifications on the terminal.
type consoleAnnouncer struct{}

func (consoleAnnouncer) Say(text string) { fmt.Printf("  ♪ %s\n", text) }

func (consoleAnnouncer) Countdown(n int) {
	if n == 0 {
		fmt.Println("  *click*")
		return
	}
	fmt.Printf("  %d...\n", n)
}

func (consoleAnnouncer) Notify(message string) { fmt.Printf("  [%s]\n", message) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	ctx := context.Background()

	userID := model.NewUserID()
	userName := cfg.DisplayName
	if userName == "" {
		userName = model.NewGuestName()
	}
	log.Printf("booth started as %s (%s)", userName, userID)

	// Store connectors, tried in order: Redis, the relay, then the
	// local database as the degraded fallback.
	primary := func(ctx context.Context, code, uid string) (store.Store, error) {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		_, rerr := rdb.Ping(pingCtx).Result()
		cancel()
		if rerr == nil {
			return redisstore.New(rdb), nil
		}
		rdb.Close()
		if cfg.RelayURL == "" {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, rerr)
		}
		log.Printf("redis unreachable, trying relay: %v", rerr)
		return relaystore.Dial(ctx, cfg.RelayURL, code, uid)
	}
	fallback := func(ctx context.Context, code, uid string) (store.Store, error) {
		return localstore.Open(cfg.LocalDBPath)
	}

	var gallery repository.GalleryRepo
	if cfg.MongoURI != "" {
		mongoClient, merr := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if merr != nil {
			log.Fatal("Failed to connect to MongoDB:", merr)
		}
		defer mongoClient.Disconnect(ctx)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		merr = mongoClient.Ping(pingCtx, nil)
		cancel()
		if merr != nil {
			log.Fatal("Failed to ping MongoDB:", merr)
		}
		log.Println("Connected to MongoDB")
		gallery = repository.NewGalleryRepo(mongoClient.Database("photobooth"))
	}

	announcer := consoleAnnouncer{}

	device := camera.NewSynthetic(cfg.CameraWidth, cfg.CameraHeight, time.Now().UnixNano())
	if err := device.Open(); err != nil {
		log.Fatal("Failed to open camera:", err)
	}
	defer device.Close()

	renderer := render.NewStripRenderer()
	renderer.Layout = render.Layout(cfg.Layout)
	renderer.Border = render.Border(cfg.Border)

	exchange := service.NewPhotoExchange(userID, userName, announcer)
	coord := service.NewSessionCoordinator(userID, userName, primary, fallback, exchange, announcer)
	strips := service.NewStripService(userID, userName, renderer, exchange)
	capture := service.NewCaptureService(device, exchange, strips, coord, announcer, gallery)
	capture.SetFilter(filter.Parse(cfg.Filter))
	coord.SetCommandHandler(capture)

	// The latest collaborative strip is kept around so ending the session
	// can archive it.
	var lastCollabStrip []byte
	capture.OnStripReady = func(data []byte, collaborative bool) {
		if collaborative {
			lastCollabStrip = data
		}
		saveStrip(data, collaborative)
	}
	coord.OnStripReceived = func(strip *model.StripArtifact) {
		lastCollabStrip = strip.StripData
		saveStrip(strip.StripData, true)
	}
	coord.OnSessionEnded = func(end *model.SessionEnd) {
		fmt.Println("  session closed")
	}

	fmt.Printf("Welcome to the vintage photo booth, %s!\n", userName)
	printHelp()
	repl(ctx, coord, capture, gallery, userID, &lastCollabStrip)

	coord.Leave()
	log.Println("booth exited")
}

func repl(ctx context.Context, coord *service.SessionCoordinator, capture *service.CaptureService, gallery repository.GalleryRepo, userID string, lastCollabStrip *[]byte) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "create":
			code, err := coord.CreateSession(ctx)
			if err != nil {
				fmt.Printf("create failed: %v\n", err)
				continue
			}
			fmt.Printf("Session created. Share this code: %s\n", code)

		case "join":
			if len(args) != 1 {
				fmt.Println("usage: join CODE")
				continue
			}
			code := strings.ToUpper(args[0])
			if err := coord.Join(ctx, code, false); err != nil {
				fmt.Printf("join failed: %v\n", err)
				continue
			}
			fmt.Printf("Joined session %s\n", code)

		case "capture":
			count := 4
			if len(args) == 1 {
				if n, err := strconv.Atoi(args[0]); err == nil {
					count = n
				}
			}
			if err := capture.StartCapture(ctx, count); err != nil {
				fmt.Printf("capture failed: %v\n", err)
			}

		case "filter":
			if len(args) != 1 {
				fmt.Printf("filters: %v\n", filter.Kinds())
				continue
			}
			capture.SetFilter(filter.Parse(args[0]))
			fmt.Printf("filter set to %s\n", capture.Filter())

		case "roster":
			sess := coord.Session()
			if sess == nil {
				fmt.Println("not in a session")
				continue
			}
			fmt.Printf("Session %s, %d participant(s):\n", sess.Code, sess.ParticipantCount())
			for id, p := range sess.Users {
				role := ""
				if p.IsHost {
					role = " (host)"
				}
				fmt.Printf("  %s%s  %d photo(s)  %s\n", p.Name, role, p.PhotoCount, id)
			}

		case "end":
			if len(*lastCollabStrip) > 0 {
				if err := capture.ArchiveStrip(ctx, *lastCollabStrip); err != nil {
					fmt.Printf("strip not archived: %v\n", err)
				} else if gallery != nil {
					fmt.Println("collaborative strip saved to your gallery")
				}
			}
			coord.End(ctx)
			*lastCollabStrip = nil
			fmt.Println("session ended")

		case "gallery":
			if gallery == nil {
				fmt.Println("gallery requires MongoDB (set MONGO_URI)")
				continue
			}
			if len(args) == 2 && args[0] == "delete" {
				if err := gallery.Delete(ctx, args[1]); err != nil {
					fmt.Printf("delete failed: %v\n", err)
					continue
				}
				fmt.Println("deleted")
				continue
			}
			items, err := gallery.ListByUser(ctx, userID, 50)
			if err != nil {
				fmt.Printf("gallery failed: %v\n", err)
				continue
			}
			if len(items) == 0 {
				fmt.Println("No photos yet! Start taking some photos!")
				continue
			}
			for _, item := range items {
				line := fmt.Sprintf("  %s  %s  %s", item.ID, time.UnixMilli(item.TakenAt).Format("Jan 2 15:04"), item.Filter)
				if item.SessionCode != "" {
					line += "  session " + item.SessionCode
				}
				fmt.Println(line)
			}

		case "leave":
			coord.Leave()
			fmt.Println("left session")

		case "help":
			printHelp()

		case "quit", "exit":
			return

		default:
			fmt.Printf("unknown command %q, try help\n", cmd)
		}
	}
}

func saveStrip(data []byte, collaborative bool) {
	kind := "solo"
	if collaborative {
		kind = "collab"
	}
	name := fmt.Sprintf("strip-%s-%d.jpg", kind, time.Now().Unix())
	if err := os.WriteFile(name, data, 0o644); err != nil {
		log.Printf("failed to save strip: %v", err)
		return
	}
	fmt.Printf("  strip saved to %s\n", name)
}

func printHelp() {
	fmt.Println(`Commands:
  create           start a collaborative session and become host
  join CODE        join an existing session
  capture [n]      run a capture sequence (2-4 photos)
  filter [name]    set the active filter, or list filters
  roster           show session participants
  gallery          list saved photos (gallery delete ID removes one)
  end              end the session for everyone (host)
  leave            leave the session quietly
  quit             exit`)
}
