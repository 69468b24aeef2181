package models

import (
	"fmt"
	"math/rand"
	"time"
)

// Phase is the room's position in the round state machine.
type Phase string

const (
	PhaseRecruitment Phase = "recruitment"
	PhaseProcessing  Phase = "processing"
	PhaseDiscussion  Phase = "discussion"
	PhaseVoting      Phase = "voting"
	PhaseNight       Phase = "night"
	PhaseEnd         Phase = "end"
)

// RoomConfig holds the owner-adjustable settings for one room.
//
// Quotas are soft upper bounds: if the quota sum exceeds the player count the
// pool is truncated, and leftover seats become villagers.
type RoomConfig struct {
	// MaxPlayers caps the membership; 0 means unlimited.
	MaxPlayers int `json:"maxPlayers"`

	// ShowVoteTargets controls whether a vote confirmation may be shown
	// publicly or only to the voter.
	ShowVoteTargets bool `json:"showVoteTargets"`

	// Quotas maps a role to its configured seat count.
	Quotas map[Role]int `json:"quotas"`

	// PasscodeHash is the argon2id hash of the join passcode, empty when the
	// room is open.
	PasscodeHash string `json:"passcodeHash,omitempty"`
}

// DefaultRoomConfig mirrors a freshly built room: no cap, hidden votes, all
// quotas zero.
func DefaultRoomConfig() RoomConfig {
	q := make(map[Role]int, len(ConfigurableRoles))
	for _, r := range ConfigurableRoles {
		q[r] = 0
	}
	return RoomConfig{Quotas: q}
}

// QuotaSum is the number of seats the configured quotas claim.
func (c RoomConfig) QuotaSum() int {
	sum := 0
	for _, n := range c.Quotas {
		sum += n
	}
	return sum
}

// Room is one game session: roster, configuration and phase state.
type Room struct {
	ID      string     `json:"roomId"`
	OwnerID string     `json:"ownerId"`
	Phase   Phase      `json:"phase"`
	Config  RoomConfig `json:"config"`
	Players []*Player  `json:"players"`

	// Votes maps a target player id to the voters who chose it. Cleared at the
	// start of each voting and night sub-phase.
	Votes map[string][]string `json:"votes"`

	// TopRef is the opaque handle the notification layer uses to keep one
	// persistent status display up to date.
	TopRef string `json:"topRef,omitempty"`

	// Deleted marks a soft-deleted room; it is never reloaded.
	Deleted bool `json:"deleted,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

const roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRoomID returns a short random base36 token.
func NewRoomID() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(b)
}

// NewRoom creates a room in recruitment with the owner as its first member.
func NewRoom(ownerID, topRef string) *Room {
	return &Room{
		ID:        NewRoomID(),
		OwnerID:   ownerID,
		Phase:     PhaseRecruitment,
		Config:    DefaultRoomConfig(),
		Players:   []*Player{NewPlayer(ownerID)},
		Votes:     map[string][]string{},
		TopRef:    topRef,
		CreatedAt: time.Now(),
	}
}

// Player returns the seat for playerID, or nil if not a member.
func (r *Room) Player(playerID string) *Player {
	for _, p := range r.Players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

// Alive returns all living seats.
func (r *Room) Alive() []*Player {
	var out []*Player
	for _, p := range r.Players {
		if p.IsAlive {
			out = append(out, p)
		}
	}
	return out
}

// LivingWerewolves returns all living werewolf seats.
func (r *Room) LivingWerewolves() []*Player {
	var out []*Player
	for _, p := range r.Players {
		if p.IsAlive && p.Role == RoleWerewolf {
			out = append(out, p)
		}
	}
	return out
}

// IsFull reports whether another member would exceed MaxPlayers.
func (r *Room) IsFull() bool {
	return r.Config.MaxPlayers != 0 && len(r.Players) >= r.Config.MaxPlayers
}

// RoleComposition renders the effective role distribution for the current
// roster: configured quotas plus villager padding. Used on the top board and
// in the game start announcement.
func (r *Room) RoleComposition() string {
	total := len(r.Players)
	if total == 0 {
		return "no players"
	}

	assigned := 0
	out := ""
	for _, role := range ConfigurableRoles {
		n := r.Config.Quotas[role]
		if n <= 0 {
			continue
		}
		out += fmt.Sprintf("%s: %d\n", role.Label(), n)
		assigned += n
	}
	if total > assigned {
		out = fmt.Sprintf("%s: %d\n", RoleVillager.Label(), total-assigned) + out
	}
	if out == "" {
		return "pending configuration"
	}
	return out[:len(out)-1]
}
