// Package engine runs the werewolf game itself: room lifecycle, secret role
// assignment, the day/night phase machine, vote and night-action resolution,
// and win-condition evaluation. Everything platform-facing (message
// rendering, command parsing, network sessions) lives behind the stores and
// the notify port.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rokuhara/jinrou/internal/auth"
	"github.com/rokuhara/jinrou/internal/models"
	"github.com/rokuhara/jinrou/internal/notify"
)

// Outcome is the player-visible result of a verb. A rejected outcome carries
// a one-line reason and implies that no state was mutated.
type Outcome struct {
	Message  string `json:"message"`
	Rejected bool   `json:"rejected,omitempty"`
	// Private marks results that should only be shown to the caller.
	Private bool `json:"private,omitempty"`
	// RoomID is set by verbs that address or create a room.
	RoomID string `json:"roomId,omitempty"`
}

func reject(msg string) Outcome {
	return Outcome{Message: msg, Rejected: true, Private: true}
}

// Engine coordinates every room. One scheduler goroutine runs per started
// room; player-initiated verbs serialize against it through a per-room lock
// so concurrent casts never apply as lost updates.
type Engine struct {
	Rooms    RoomStore
	Players  PlayerStore
	Notifier notify.Notifier
	Timings  Timings

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	plocks map[string]*sync.Mutex
	runs   map[string]context.CancelFunc
}

// New wires an engine over the given stores and notifier.
func New(rooms RoomStore, players PlayerStore, notifier notify.Notifier, timings Timings) *Engine {
	return &Engine{
		Rooms:    rooms,
		Players:  players,
		Notifier: notifier,
		Timings:  timings,
		locks:    make(map[string]*sync.Mutex),
		plocks:   make(map[string]*sync.Mutex),
		runs:     make(map[string]context.CancelFunc),
	}
}

// roomLock returns the mutex serializing all read-modify-write cycles for a
// room. Locks are per room; rooms never block one another.
func (e *Engine) roomLock(roomID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[roomID] = lock
	}
	return lock
}

// playerLock returns the mutex serializing check-then-write cycles on one
// registration record, so two concurrent verbs by the same player cannot both
// pass a membership guard. Lock ordering is player before room, never the
// reverse.
func (e *Engine) playerLock(platformID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.plocks[platformID]
	if !ok {
		lock = &sync.Mutex{}
		e.plocks[platformID] = lock
	}
	return lock
}

// withRoom loads a room under its lock, applies fn, and persists the record
// when fn asks for it. fn returning an error abandons the cycle before any
// write.
func (e *Engine) withRoom(ctx context.Context, roomID string, fn func(*models.Room) (persist bool, err error)) error {
	lock := e.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := e.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	persist, err := fn(room)
	if err != nil {
		return err
	}
	if !persist {
		return nil
	}
	return e.Rooms.PutRoom(ctx, room)
}

// announce emits a room announcement. Failures are logged, never retried,
// and never block the caller.
func (e *Engine) announce(ctx context.Context, roomID, text string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Announce(ctx, roomID, text); err != nil {
		log.Printf("engine: announce to room %s failed: %v", roomID, err)
	}
}

// refreshTopBoard re-renders the room's persistent status display.
func (e *Engine) refreshTopBoard(ctx context.Context, room *models.Room) {
	if e.Notifier == nil || room.TopRef == "" {
		return
	}
	if err := e.Notifier.UpdateTopBoard(ctx, room.ID, room.TopRef, renderTopBoard(room)); err != nil {
		log.Printf("engine: top board update for room %s failed: %v", room.ID, err)
	}
}

// updateBoard pushes an already-rendered board without reloading the room.
// The scheduler uses it from outside the room lock.
func (e *Engine) updateBoard(ctx context.Context, roomID, topRef, text string) {
	if e.Notifier == nil || topRef == "" {
		return
	}
	if err := e.Notifier.UpdateTopBoard(ctx, roomID, topRef, text); err != nil {
		log.Printf("engine: top board update for room %s failed: %v", roomID, err)
	}
}

// renderTopBoard produces the plain-text room summary the gateway keeps
// pinned: identity, settings, composition and roster.
func renderTopBoard(room *models.Room) string {
	maxPlayers := "unlimited"
	if room.Config.MaxPlayers > 0 {
		maxPlayers = fmt.Sprintf("%d", room.Config.MaxPlayers)
	}
	votes := "hidden"
	if room.Config.ShowVoteTargets {
		votes = "shown"
	}
	roster := ""
	for _, p := range room.Players {
		roster += p.PlayerID + "\n"
	}
	if roster == "" {
		roster = "none\n"
	}
	return fmt.Sprintf(
		"Room ID: %s\nOwner: %s\nMax players: %s\nVote targets: %s\n\nRole composition:\n%s\n\nMembers:\n%s",
		room.ID, room.OwnerID, maxPlayers, votes, room.RoleComposition(), roster[:len(roster)-1])
}

// Register creates the persistent record for a platform user.
func (e *Engine) Register(ctx context.Context, platformID string) (Outcome, error) {
	lock := e.playerLock(platformID)
	lock.Lock()
	defer lock.Unlock()

	_, err := e.Players.GetPlayer(ctx, platformID)
	if err == nil {
		return reject("you are already registered"), nil
	}
	if !errors.Is(err, ErrPlayerNotFound) {
		return Outcome{}, err
	}

	id, _ := uuid.NewRandom()
	rec := &models.PlayerRecord{
		ID:         id,
		PlatformID: platformID,
		CreatedAt:  time.Now(),
	}
	if err := e.Players.PutPlayer(ctx, rec); err != nil {
		return Outcome{}, err
	}
	return Outcome{Message: "registration complete", Private: true}, nil
}

// record loads the registration record or produces the standard rejection.
func (e *Engine) record(ctx context.Context, platformID string) (*models.PlayerRecord, Outcome, error) {
	rec, err := e.Players.GetPlayer(ctx, platformID)
	if errors.Is(err, ErrPlayerNotFound) {
		return nil, reject("you are not registered"), nil
	}
	if err != nil {
		return nil, Outcome{}, err
	}
	return rec, Outcome{}, nil
}

// CreateRoom opens a new room in recruitment with the caller as owner and
// only member. topRef is the gateway's handle for the status display;
// passcode, when non-empty, gates joins.
func (e *Engine) CreateRoom(ctx context.Context, ownerID, topRef, passcode string) (Outcome, error) {
	lock := e.playerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	rec, out, err := e.record(ctx, ownerID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID != "" {
		return reject("you are already in a room"), nil
	}

	room := models.NewRoom(ownerID, topRef)
	if passcode != "" {
		hash, err := auth.HashPasscode(passcode)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to hash passcode: %w", err)
		}
		room.Config.PasscodeHash = hash
	}

	if err := e.Rooms.PutRoom(ctx, room); err != nil {
		return Outcome{}, err
	}
	rec.JoinedRoomID = room.ID
	if err := e.Players.PutPlayer(ctx, rec); err != nil {
		return Outcome{}, err
	}

	e.refreshTopBoard(ctx, room)
	return Outcome{Message: "room " + room.ID + " created", RoomID: room.ID}, nil
}

// JoinRoom adds a registered player to a recruiting room.
func (e *Engine) JoinRoom(ctx context.Context, roomID, playerID, passcode string) (Outcome, error) {
	lock := e.playerLock(playerID)
	lock.Lock()
	defer lock.Unlock()

	rec, out, err := e.record(ctx, playerID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID != "" {
		return reject("you are already in a room"), nil
	}

	var joined *models.Room
	err = e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		if room.Phase != models.PhaseRecruitment {
			out = reject("this room cannot be joined right now")
			return false, nil
		}
		if room.IsFull() {
			out = reject("this room is full")
			return false, nil
		}
		if room.Player(playerID) != nil {
			out = reject("you already joined this room")
			return false, nil
		}
		if room.Config.PasscodeHash != "" {
			match, err := auth.VerifyPasscode(passcode, room.Config.PasscodeHash)
			if err != nil {
				return false, err
			}
			if !match {
				out = reject("wrong passcode")
				return false, nil
			}
		}
		room.Players = append(room.Players, models.NewPlayer(playerID))
		joined = room
		return true, nil
	})
	if errors.Is(err, ErrRoomNotFound) {
		return reject("room " + roomID + " was not found"), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if joined == nil {
		return out, nil
	}

	rec.JoinedRoomID = roomID
	if err := e.Players.PutPlayer(ctx, rec); err != nil {
		return Outcome{}, err
	}
	e.refreshTopBoard(ctx, joined)
	return Outcome{Message: "joined room " + roomID, RoomID: roomID}, nil
}

// LeaveRoom removes the caller from their room. The owner may not leave, and
// membership is frozen once recruitment ends.
func (e *Engine) LeaveRoom(ctx context.Context, playerID string) (Outcome, error) {
	lock := e.playerLock(playerID)
	lock.Lock()
	defer lock.Unlock()

	rec, out, err := e.record(ctx, playerID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID == "" {
		return reject("you are not in a room"), nil
	}

	var left *models.Room
	err = e.withRoom(ctx, rec.JoinedRoomID, func(room *models.Room) (bool, error) {
		if room.OwnerID == playerID {
			out = reject("the room owner cannot leave; delete the room instead")
			return false, nil
		}
		if room.Phase != models.PhaseRecruitment {
			out = reject("you cannot leave while a game is running")
			return false, nil
		}
		kept := room.Players[:0]
		for _, p := range room.Players {
			if p.PlayerID != playerID {
				kept = append(kept, p)
			}
		}
		room.Players = kept
		left = room
		return true, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if left == nil {
		return out, nil
	}

	roomID := rec.JoinedRoomID
	rec.JoinedRoomID = ""
	if err := e.Players.PutPlayer(ctx, rec); err != nil {
		return Outcome{}, err
	}
	e.refreshTopBoard(ctx, left)
	return Outcome{Message: "left room " + roomID}, nil
}

// DeleteRoom soft-deletes the caller's room: the run is cancelled, every
// membership is cleared, and the record is never reloaded.
func (e *Engine) DeleteRoom(ctx context.Context, playerID string) (Outcome, error) {
	lock := e.playerLock(playerID)
	lock.Lock()
	defer lock.Unlock()

	rec, out, err := e.record(ctx, playerID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID == "" {
		return reject("you are not in a room"), nil
	}

	var members []string
	var deleted *models.Room
	err = e.withRoom(ctx, rec.JoinedRoomID, func(room *models.Room) (bool, error) {
		if room.OwnerID != playerID {
			out = reject("you are not the owner of this room")
			return false, nil
		}
		for _, p := range room.Players {
			members = append(members, p.PlayerID)
		}
		room.Players = nil
		room.Deleted = true
		deleted = room
		return true, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if deleted == nil {
		return out, nil
	}

	e.cancelRun(deleted.ID)
	for _, id := range members {
		clear := func(memberID string) {
			m, err := e.Players.GetPlayer(ctx, memberID)
			if err != nil {
				log.Printf("engine: clearing membership of %s failed: %v", memberID, err)
				return
			}
			m.JoinedRoomID = ""
			if err := e.Players.PutPlayer(ctx, m); err != nil {
				log.Printf("engine: clearing membership of %s failed: %v", memberID, err)
			}
		}
		if id == playerID {
			// The caller's lock is already held.
			clear(id)
			continue
		}
		mlock := e.playerLock(id)
		mlock.Lock()
		clear(id)
		mlock.Unlock()
	}

	if e.Notifier != nil && deleted.TopRef != "" {
		if err := e.Notifier.UpdateTopBoard(ctx, deleted.ID, deleted.TopRef, "This room was deleted."); err != nil {
			log.Printf("engine: top board update for room %s failed: %v", deleted.ID, err)
		}
	}
	return Outcome{Message: "room deleted"}, nil
}

// UpdateConfig applies partial settings changes from the owner while the room
// recruits. Recognized keys: maxPlayers, showVoteTargets, passcode, and the
// configurable role names as quota counts.
func (e *Engine) UpdateConfig(ctx context.Context, playerID string, changes map[string]interface{}) (Outcome, error) {
	rec, out, err := e.record(ctx, playerID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID == "" {
		return reject("you are not in a room"), nil
	}

	var updated *models.Room
	err = e.withRoom(ctx, rec.JoinedRoomID, func(room *models.Room) (bool, error) {
		if room.OwnerID != playerID {
			out = reject("you are not the owner of this room")
			return false, nil
		}
		if room.Phase != models.PhaseRecruitment {
			out = reject("settings can only be changed during recruitment")
			return false, nil
		}
		if err := applyConfigChanges(&room.Config, changes); err != nil {
			out = reject(err.Error())
			return false, nil
		}
		updated = room
		return true, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if updated == nil {
		return out, nil
	}

	e.refreshTopBoard(ctx, updated)
	return Outcome{Message: "settings updated"}, nil
}

// applyConfigChanges mutates cfg in place, validating each key. Numeric JSON
// values arrive as float64.
func applyConfigChanges(cfg *models.RoomConfig, changes map[string]interface{}) error {
	asInt := func(v interface{}) (int, bool) {
		switch n := v.(type) {
		case float64:
			return int(n), true
		case int:
			return n, true
		default:
			return 0, false
		}
	}

	for key, value := range changes {
		switch key {
		case "maxPlayers":
			n, ok := asInt(value)
			if !ok || n < 0 {
				return fmt.Errorf("maxPlayers must be a non-negative integer")
			}
			cfg.MaxPlayers = n
		case "showVoteTargets":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("showVoteTargets must be a boolean")
			}
			cfg.ShowVoteTargets = b
		case "passcode":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("passcode must be a string")
			}
			if s == "" {
				cfg.PasscodeHash = ""
				continue
			}
			hash, err := auth.HashPasscode(s)
			if err != nil {
				return fmt.Errorf("failed to set passcode")
			}
			cfg.PasscodeHash = hash
		default:
			role := models.Role(key)
			known := false
			for _, r := range models.ConfigurableRoles {
				if r == role {
					known = true
					break
				}
			}
			if !known {
				return fmt.Errorf("unknown setting %q", key)
			}
			n, ok := asInt(value)
			if !ok || n < 0 {
				return fmt.Errorf("%s quota must be a non-negative integer", key)
			}
			cfg.Quotas[role] = n
		}
	}
	return nil
}

// StartGame freezes membership and launches the round scheduler. Only the
// owner may start, only from recruitment, and only with three or more
// players.
func (e *Engine) StartGame(ctx context.Context, playerID string) (Outcome, error) {
	rec, out, err := e.record(ctx, playerID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID == "" {
		return reject("you are not in a room"), nil
	}

	roomID := rec.JoinedRoomID
	started := false
	err = e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		if room.OwnerID != playerID {
			out = reject("you are not the owner of this room")
			return false, nil
		}
		if room.Phase != models.PhaseRecruitment {
			out = reject("the game has already started")
			return false, nil
		}
		if len(room.Players) < 3 {
			out = reject("at least 3 players are required to start")
			return false, nil
		}
		room.Phase = models.PhaseProcessing
		started = true
		return true, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if !started {
		return out, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.runs[roomID] = cancel
	e.mu.Unlock()
	go e.runRoom(runCtx, roomID)

	return Outcome{Message: "game starting", RoomID: roomID}, nil
}

// cancelRun stops the scheduler for roomID if one is active.
func (e *Engine) cancelRun(roomID string) {
	e.mu.Lock()
	cancel, ok := e.runs[roomID]
	if ok {
		delete(e.runs, roomID)
	}
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// finishRun clears the bookkeeping entry once a scheduler exits on its own.
func (e *Engine) finishRun(roomID string) {
	e.mu.Lock()
	delete(e.runs, roomID)
	e.mu.Unlock()
}

// CastVote records a day vote. Valid only during the voting window, from a
// living member, against a living member other than oneself.
func (e *Engine) CastVote(ctx context.Context, voterID, targetID string) (Outcome, error) {
	rec, out, err := e.record(ctx, voterID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID == "" {
		return reject("you are not in a room"), nil
	}

	err = e.withRoom(ctx, rec.JoinedRoomID, func(room *models.Room) (bool, error) {
		if room.Phase != models.PhaseVoting {
			out = reject("voting is not open right now")
			return false, nil
		}
		voter := room.Player(voterID)
		if voter == nil || !voter.IsAlive {
			out = reject("you are dead or not part of this game")
			return false, nil
		}
		if voterID == targetID {
			out = reject("you cannot vote for yourself")
			return false, nil
		}
		target := room.Player(targetID)
		if target == nil {
			out = reject("that player is not in this room")
			return false, nil
		}
		if !target.IsAlive {
			out = reject("that player is already dead")
			return false, nil
		}

		tally := NewTally(room.Votes)
		if !tally.Cast(voterID, targetID) {
			out = reject("you have already voted")
			return false, nil
		}
		room.Votes = tally.Snapshot()
		out = Outcome{
			Message: "voted for " + targetID,
			Private: !room.Config.ShowVoteTargets,
		}
		return true, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// CastNightAction dispatches a night ability: the hunter's guard or the
// werewolf raid vote.
func (e *Engine) CastNightAction(ctx context.Context, actorID, targetID string) (Outcome, error) {
	return e.useSkill(ctx, actorID, targetID, true)
}

// UseSkill dispatches a role ability during the voting or night windows (the
// seer may divine in either).
func (e *Engine) UseSkill(ctx context.Context, actorID, targetID string) (Outcome, error) {
	return e.useSkill(ctx, actorID, targetID, false)
}

// QueryOwnRole tells the caller their secretly assigned role; werewolves also
// learn their living packmates.
func (e *Engine) QueryOwnRole(ctx context.Context, playerID string) (Outcome, error) {
	rec, out, err := e.record(ctx, playerID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID == "" {
		return reject("you are not in a room"), nil
	}

	err = e.withRoom(ctx, rec.JoinedRoomID, func(room *models.Room) (bool, error) {
		seat := room.Player(playerID)
		if seat == nil {
			out = reject("you are not part of this game")
			return false, nil
		}
		if seat.Role == models.RoleUnassigned {
			out = reject("your role has not been assigned yet")
			return false, nil
		}

		msg := "Your role is " + seat.Role.Label()
		if seat.Role == models.RoleWerewolf {
			pack := ""
			for _, w := range room.LivingWerewolves() {
				if w.PlayerID != playerID {
					pack += "\n" + w.PlayerID
				}
			}
			if pack != "" {
				msg += "\n\nYour packmates:" + pack
			}
		}
		out = Outcome{Message: msg, Private: true}
		return false, nil
	})
	if errors.Is(err, ErrRoomNotFound) {
		return reject("your room was not found"), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// ChatPolicy reports whether the player may currently chat in their room's
// channel. Chat is suppressed while the room processes or sleeps through the
// night, and dead players stay muted.
func (e *Engine) ChatPolicy(ctx context.Context, playerID string) (bool, string, error) {
	rec, err := e.Players.GetPlayer(ctx, playerID)
	if err != nil || rec.JoinedRoomID == "" {
		// Unregistered or roomless users are not the engine's concern.
		if err != nil && !errors.Is(err, ErrPlayerNotFound) {
			return false, "", err
		}
		return true, "", nil
	}

	allowed := true
	reason := ""
	err = e.withRoom(ctx, rec.JoinedRoomID, func(room *models.Room) (bool, error) {
		if seat := room.Player(playerID); seat != nil && !seat.IsAlive {
			allowed, reason = false, "dead players cannot speak"
			return false, nil
		}
		if room.Phase == models.PhaseProcessing || room.Phase == models.PhaseNight {
			allowed, reason = false, "chat is disabled right now"
		}
		return false, nil
	})
	if errors.Is(err, ErrRoomNotFound) {
		return true, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return allowed, reason, nil
}
