package engine

import (
	"github.com/rokuhara/jinrou/internal/models"
)

// Verdict is the outcome of a win-condition check.
type Verdict string

const (
	// VerdictNone means the round continues.
	VerdictNone Verdict = ""
	// VerdictWerewolves means the werewolf faction has won.
	VerdictWerewolves Verdict = "werewolves"
	// VerdictTown means the town faction has won.
	VerdictTown Verdict = "town"
)

// Announcement returns the line the round announcer emits for a decision.
func (v Verdict) Announcement() string {
	switch v {
	case VerdictWerewolves:
		return "The werewolves have won."
	case VerdictTown:
		return "The town has won."
	default:
		return "The game has ended."
	}
}

// EvaluateWin partitions the living players into werewolves and town and
// decides the round. Werewolves win when they match or outnumber the living
// town; town wins when no werewolf remains alive. Lunatic and fox survivors
// count for neither side, pending their own win conditions.
func EvaluateWin(players []*models.Player) Verdict {
	wolves, town := 0, 0
	for _, p := range players {
		if !p.IsAlive {
			continue
		}
		switch {
		case p.Role == models.RoleWerewolf:
			wolves++
		case p.Role.TownSide():
			town++
		}
	}

	if wolves > 0 && wolves >= town {
		return VerdictWerewolves
	}
	if wolves == 0 {
		return VerdictTown
	}
	return VerdictNone
}
