package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
	"github.com/kaushikasemwal/vintage-photobooth/internal/store"
)

// heartbeatInterval is how often a live client refreshes its lastActive
// timestamp.
const heartbeatInterval = 5 * time.Second

// endedGraceDelay gives the user time to see the "session ended"
// notification before local teardown.
const endedGraceDelay = 3 * time.Second

// StoreConnector opens a store connection for one session. The coordinator
// calls the primary connector at session-establishment time and falls back
// to the degraded connector when it fails.
type StoreConnector func(ctx context.Context, sessionCode, userID string) (store.Store, error)

// CommandHandler reacts to host commands observed on the session. The
// capture sequencer implements it. (Interface, not a direct reference, so
// the sequencer and coordinator can point at each other without a cycle.)
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd model.Command)
}

// SessionCoordinator owns session identity, host election, the participant
// roster, and command dispatch, built entirely on store primitives. One
// instance per client; an explicit context object, never ambient globals.
type SessionCoordinator struct {
	userID    string
	userName  string
	primary   StoreConnector
	fallback  StoreConnector
	exchange  *PhotoExchange
	announcer Announcer

	mu            sync.Mutex
	st            store.Store
	code          string
	isHost        bool
	hostID        string
	currentFilter string
	roster        map[string]*model.Participant
	watches       []store.Watch
	stopHeartbeat chan struct{}
	degraded      bool

	handler CommandHandler

	// OnRosterChange, OnStripReceived, and OnSessionEnded let the
	// presentation layer react to session events. All optional.
	OnRosterChange  func(roster map[string]*model.Participant)
	OnStripReceived func(strip *model.StripArtifact)
	OnSessionEnded  func(end *model.SessionEnd)
}

// NewSessionCoordinator creates a coordinator for one client identity.
func NewSessionCoordinator(userID, userName string, primary, fallback StoreConnector, exchange *PhotoExchange, announcer Announcer) *SessionCoordinator {
	if announcer == nil {
		announcer = NopAnnouncer{}
	}
	return &SessionCoordinator{
		userID:        userID,
		userName:      userName,
		primary:       primary,
		fallback:      fallback,
		exchange:      exchange,
		announcer:     announcer,
		currentFilter: "sepia",
	}
}

// SetCommandHandler wires the capture sequencer in. Must be called before
// joining a session.
func (s *SessionCoordinator) SetCommandHandler(h CommandHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetFilter records the filter this client currently shoots with.
func (s *SessionCoordinator) SetFilter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentFilter = name
}

// UserID returns this client's identity.
func (s *SessionCoordinator) UserID() string { return s.userID }

// UserName returns this client's display name.
func (s *SessionCoordinator) UserName() string { return s.userName }

// Code returns the active session code, empty outside a session.
func (s *SessionCoordinator) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// IsHost reports whether this client holds the host role.
func (s *SessionCoordinator) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

// InSession reports whether a session is active.
func (s *SessionCoordinator) InSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code != ""
}

// Degraded reports whether the session runs on the polling fallback.
func (s *SessionCoordinator) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// RosterCount returns the current membership count.
func (s *SessionCoordinator) RosterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.roster)
}

// Session returns a snapshot of the active session, nil outside one.
func (s *SessionCoordinator) Session() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == "" {
		return nil
	}
	users := make(map[string]*model.Participant, len(s.roster))
	hostName := ""
	for id, p := range s.roster {
		users[id] = p
		if p.IsHost {
			hostName = p.Name
		}
	}
	return &model.Session{Code: s.code, HostID: s.hostID, HostName: hostName, Users: users}
}

// Roster returns a copy of the current roster cache.
func (s *SessionCoordinator) Roster() map[string]*model.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*model.Participant, len(s.roster))
	for id, p := range s.roster {
		out[id] = p
	}
	return out
}

// CreateSession generates a fresh code, clears any stale data at that path
// (best effort; the clear and the subsequent writes are not atomic), and
// joins as host.
func (s *SessionCoordinator) CreateSession(ctx context.Context) (string, error) {
	code := model.GenerateSessionCode()
	if err := s.Join(ctx, code, true); err != nil {
		return "", err
	}
	return code, nil
}

// Join establishes this client in the session identified by code.
//
// The single snapshot read, the capacity check, the host election, and the
// roster write are deliberately not atomic: the store offers only
// last-write-wins per path, so the capacity check is advisory and the host
// election is first-writer-wins. See the data-model notes in DESIGN.md.
func (s *SessionCoordinator) Join(ctx context.Context, code string, asHost bool) error {
	st, degraded, err := s.connect(ctx, code)
	if err != nil {
		return err
	}

	// A creating host clears any pre-existing subtree at this code before
	// writing. Best effort: a silent failure here leaves a rare
	// resurrection race unhandled.
	if asHost {
		if err := st.Remove(ctx, store.SessionPath(code)); err != nil {
			log.Printf("failed to clear old session data for %s: %v", code, err)
		}
	}

	// One snapshot read decides capacity and role.
	users, err := st.GetChildren(ctx, store.UsersPath(code))
	if err != nil {
		st.Close()
		return fmt.Errorf("failed to read session snapshot: %w", err)
	}
	roster := decodeRoster(users)

	if _, member := roster[s.userID]; !member && len(roster) >= model.MaxParticipants {
		st.Close()
		s.announcer.Notify(fmt.Sprintf("Session is full! Maximum %d participants allowed (including host).", model.MaxParticipants))
		return model.ErrSessionFull
	}

	isHost := asHost
	hostID := s.userID
	rawHost, err := st.Get(ctx, store.HostIDPath(code))
	if err != nil {
		st.Close()
		return fmt.Errorf("failed to read host id: %w", err)
	}
	if rawHost == nil {
		// No host set: claim the role. First writer to complete this wins;
		// two clients can both observe "no host" and race, which the
		// protocol accepts at this concurrency level.
		idJSON, _ := json.Marshal(s.userID)
		nameJSON, _ := json.Marshal(s.userName)
		if err := st.Set(ctx, store.HostIDPath(code), idJSON); err != nil {
			st.Close()
			return fmt.Errorf("failed to claim host role: %w", err)
		}
		if err := st.Set(ctx, store.HostNamePath(code), nameJSON); err != nil {
			log.Printf("failed to write host name: %v", err)
		}
		isHost = true
	} else {
		if err := json.Unmarshal(rawHost, &hostID); err != nil {
			st.Close()
			return fmt.Errorf("failed to decode host id: %w", err)
		}
		isHost = hostID == s.userID
	}

	s.mu.Lock()
	s.st = st
	s.code = code
	s.isHost = isHost
	s.hostID = hostID
	s.roster = roster
	s.degraded = degraded
	filter := s.currentFilter
	s.mu.Unlock()

	s.exchange.Bind(st, code)

	// Roster entry, overwriting any prior entry for this identity.
	now, err := st.ServerNow(ctx)
	if err != nil {
		log.Printf("failed to read server time at join: %v", err)
	}
	entry := &model.Participant{
		Name:          s.userName,
		JoinedAt:      now,
		LastActive:    now,
		PhotoCount:    0,
		CurrentFilter: filter,
		IsHost:        isHost,
	}
	entryJSON, err := json.Marshal(entry)
	if err == nil {
		err = st.Set(ctx, store.UserPath(code, s.userID), entryJSON)
	}
	if err != nil {
		s.teardown()
		return fmt.Errorf("failed to write roster entry: %w", err)
	}

	// Registered once, at join time: silent staleness self-corrects
	// store-side without participant polling.
	if err := st.RemoveOnDisconnect(ctx, store.LastActivePath(code, s.userID)); err != nil {
		log.Printf("failed to register disconnect cleanup: %v", err)
	}

	if err := s.subscribe(ctx, st, code); err != nil {
		s.teardown()
		return err
	}

	s.startHeartbeat(code)

	if isHost {
		log.Printf("session %s: joined as host", code)
	} else {
		log.Printf("session %s: joined as participant (host %s)", code, hostID)
	}
	return nil
}

// connect opens the primary store, falling back to the degraded local mode
// when the backend is unreachable. The fallback is surfaced once; there are
// no automatic retries.
func (s *SessionCoordinator) connect(ctx context.Context, code string) (store.Store, bool, error) {
	st, err := s.primary(ctx, code, s.userID)
	if err == nil {
		return st, false, nil
	}
	log.Printf("session backend unavailable: %v", err)
	if s.fallback == nil {
		return nil, false, fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	s.announcer.Notify("Connection failed. Real-time collaboration not available; using local session mode.")
	st, ferr := s.fallback(ctx, code, s.userID)
	if ferr != nil {
		return nil, false, fmt.Errorf("%w: %v", model.ErrBackendUnavailable, ferr)
	}
	return st, true, nil
}

func (s *SessionCoordinator) subscribe(ctx context.Context, st store.Store, code string) error {
	// Host control commands. Only non-hosts act, and never on commands
	// carrying their own identity: the initial watch batch replays the
	// whole log, so origin comparison is the only safe filter.
	w, err := st.WatchChildAdded(ctx, store.CommandsPath(code), func(key string, value []byte) {
		var cmd model.Command
		if err := json.Unmarshal(value, &cmd); err != nil {
			log.Printf("failed to decode command %s: %v", key, err)
			return
		}
		s.mu.Lock()
		host := s.isHost
		handler := s.handler
		s.mu.Unlock()
		if host || cmd.HostID == s.userID || cmd.Type != model.CommandCapture {
			return
		}
		if handler == nil {
			log.Printf("capture command observed but no handler is wired")
			return
		}
		go handler.HandleCommand(context.Background(), cmd)
	})
	if err != nil {
		return fmt.Errorf("failed to watch commands: %w", err)
	}
	s.trackWatch(w)

	// Roster.
	w, err = st.WatchValue(ctx, store.UsersPath(code), func(value []byte) {
		roster := map[string]*model.Participant{}
		if len(value) > 0 {
			raw := map[string]json.RawMessage{}
			if err := json.Unmarshal(value, &raw); err != nil {
				log.Printf("failed to decode roster: %v", err)
				return
			}
			roster = decodeRoster(rawToBytes(raw))
		}
		s.mu.Lock()
		s.roster = roster
		cb := s.OnRosterChange
		s.mu.Unlock()
		if cb != nil {
			cb(roster)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch roster: %w", err)
	}
	s.trackWatch(w)

	// Shared photos.
	w, err = st.WatchChildAdded(ctx, store.PhotosPath(code), func(key string, value []byte) {
		var photo model.SharedPhoto
		if err := json.Unmarshal(value, &photo); err != nil {
			log.Printf("failed to decode photo %s: %v", key, err)
			return
		}
		s.exchange.Receive(photo)
	})
	if err != nil {
		return fmt.Errorf("failed to watch photos: %w", err)
	}
	s.trackWatch(w)

	// Collaborative strip slot.
	w, err = st.WatchValue(ctx, store.StripPath(code), func(value []byte) {
		if len(value) == 0 {
			return
		}
		var strip model.StripArtifact
		if err := json.Unmarshal(value, &strip); err != nil {
			log.Printf("failed to decode collaborative strip: %v", err)
			return
		}
		if strip.CreatedBy == s.userID {
			return
		}
		s.announcer.Notify(fmt.Sprintf("%s created the collaborative strip!", strip.CreatedByName))
		s.mu.Lock()
		cb := s.OnStripReceived
		s.mu.Unlock()
		if cb != nil {
			cb(&strip)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch collaborative strip: %w", err)
	}
	s.trackWatch(w)

	// Session-end marker.
	w, err = st.WatchValue(ctx, store.SessionEndedPath(code), func(value []byte) {
		if len(value) == 0 {
			return
		}
		var end model.SessionEnd
		if err := json.Unmarshal(value, &end); err != nil {
			log.Printf("failed to decode session end: %v", err)
			return
		}
		if end.EndedBy == s.userID {
			return
		}
		s.announcer.Notify(fmt.Sprintf("%s ended the session", end.EndedByName))
		go func() {
			// Give the user time to see the notice and save their strip.
			time.Sleep(endedGraceDelay)
			s.teardown()
			s.mu.Lock()
			cb := s.OnSessionEnded
			s.mu.Unlock()
			if cb != nil {
				cb(&end)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to watch session end: %w", err)
	}
	s.trackWatch(w)

	return nil
}

// SendCommand appends a host command to the session log. A no-op for
// non-hosts and outside sessions.
func (s *SessionCoordinator) SendCommand(ctx context.Context, cmdType model.CommandType, totalPhotos int) error {
	s.mu.Lock()
	st, code, isHost := s.st, s.code, s.isHost
	s.mu.Unlock()
	if st == nil || !isHost {
		return nil
	}
	now, err := st.ServerNow(ctx)
	if err != nil {
		log.Printf("failed to read server time for command: %v", err)
	}
	cmd := model.Command{
		Type:        cmdType,
		Timestamp:   now,
		HostID:      s.userID,
		TotalPhotos: totalPhotos,
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	if _, err := st.Push(ctx, store.CommandsPath(code), data); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// End broadcasts the session-end marker (host only), then tears down
// locally. Non-hosts just leave.
func (s *SessionCoordinator) End(ctx context.Context) {
	s.mu.Lock()
	st, code, isHost := s.st, s.code, s.isHost
	s.mu.Unlock()
	if st != nil && isHost {
		now, err := st.ServerNow(ctx)
		if err != nil {
			log.Printf("failed to read server time for session end: %v", err)
		}
		end := model.SessionEnd{EndedBy: s.userID, EndedByName: s.userName, Timestamp: now}
		data, _ := json.Marshal(end)
		if err := st.Set(ctx, store.SessionEndedPath(code), data); err != nil {
			log.Printf("failed to broadcast session end: %v", err)
		}
	}
	s.teardown()
}

// Leave tears the session down locally without any broadcast.
func (s *SessionCoordinator) Leave() {
	s.teardown()
}

// teardown releases everything this client holds for the session: every
// watch it registered, the heartbeat, the cached roster and received
// photos, and the store connection. Safe on every exit path.
func (s *SessionCoordinator) teardown() {
	s.mu.Lock()
	st := s.st
	watches := s.watches
	stop := s.stopHeartbeat
	s.st = nil
	s.code = ""
	s.isHost = false
	s.hostID = ""
	s.roster = nil
	s.watches = nil
	s.stopHeartbeat = nil
	s.degraded = false
	s.mu.Unlock()

	for _, w := range watches {
		w.Cancel()
	}
	if stop != nil {
		close(stop)
	}
	s.exchange.Unbind()
	if st != nil {
		if err := st.Close(); err != nil {
			log.Printf("failed to close session store: %v", err)
		}
	}
}

func (s *SessionCoordinator) startHeartbeat(code string) {
	stop := make(chan struct{})
	s.mu.Lock()
	s.stopHeartbeat = stop
	st := s.st
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), heartbeatInterval)
				now, err := st.ServerNow(ctx)
				if err == nil {
					ts, _ := json.Marshal(now)
					err = st.Set(ctx, store.LastActivePath(code, s.userID), ts)
				}
				cancel()
				if err != nil {
					log.Printf("heartbeat failed: %v", err)
				}
			}
		}
	}()
}

// sessionStore returns the active store connection, nil outside a session.
func (s *SessionCoordinator) sessionStore() store.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *SessionCoordinator) trackWatch(w store.Watch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches = append(s.watches, w)
}

func decodeRoster(users map[string][]byte) map[string]*model.Participant {
	roster := make(map[string]*model.Participant, len(users))
	for id, raw := range users {
		var p model.Participant
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		roster[id] = &p
	}
	return roster
}

func rawToBytes(raw map[string]json.RawMessage) map[string][]byte {
	out := make(map[string][]byte, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
