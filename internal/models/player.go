package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies a player's secret role for one round.
type Role string

const (
	RoleUnassigned Role = ""
	RoleVillager   Role = "villager"
	RoleWerewolf   Role = "werewolf"
	RoleSeer       Role = "seer"
	RoleHunter     Role = "hunter"

	// Reserved identifiers. These roles can be configured and assigned but
	// carry no skill and no faction behavior yet.
	RoleMedium  Role = "medium"
	RoleLunatic Role = "lunatic"
	RoleFox     Role = "fox"
)

// ConfigurableRoles is the fixed order in which role quotas are read when the
// assignment pool is built. Villager is absent on purpose: leftover seats are
// padded with villagers.
var ConfigurableRoles = []Role{
	RoleWerewolf,
	RoleSeer,
	RoleMedium,
	RoleHunter,
	RoleLunatic,
	RoleFox,
}

// TownSide reports whether the role counts toward the town faction when the
// win condition is evaluated. Lunatic and fox are excluded until their own win
// conditions exist.
func (r Role) TownSide() bool {
	switch r {
	case RoleVillager, RoleSeer, RoleMedium, RoleHunter:
		return true
	default:
		return false
	}
}

// Label returns the display name used in announcements.
func (r Role) Label() string {
	if r == RoleUnassigned {
		return "unassigned"
	}
	return string(r)
}

// Player is one seat in a room for the current round.
type Player struct {
	PlayerID  string `json:"playerId"`
	Role      Role   `json:"role"`
	IsAlive   bool   `json:"isAlive"`
	IsGuarded bool   `json:"isGuarded"`
	IsBlack   bool   `json:"isBlack"`
}

// NewPlayer returns a seat with round state zeroed.
func NewPlayer(playerID string) *Player {
	return &Player{
		PlayerID: playerID,
		Role:     RoleUnassigned,
		IsAlive:  true,
	}
}

// ResetRound clears everything assigned during a round, keeping the membership.
func (p *Player) ResetRound() {
	p.Role = RoleUnassigned
	p.IsAlive = true
	p.IsGuarded = false
	p.IsBlack = false
}

// PlayerRecord is the persistent registration row for one platform user.
// PlatformID is the opaque identifier the messaging platform knows the user
// by; ID is ours.
type PlayerRecord struct {
	ID           uuid.UUID `json:"id"`
	PlatformID   string    `json:"platformId"`
	CreatedAt    time.Time `json:"createdAt"`
	JoinedRoomID string    `json:"joinedRoomId,omitempty"`
	Exp          int       `json:"exp"`
}
