package engine

import (
	"github.com/rokuhara/jinrou/internal/models"
)

// RaidResult describes the outcome of one night's werewolf attack.
type RaidResult struct {
	// TargetID is the resolved victim, empty when NoTarget is set.
	TargetID string
	// Killed is true when the target died.
	Killed bool
	// Guarded is true when the attack hit a guarded target and failed.
	Guarded bool
	// NoTarget is true when no eligible victim existed.
	NoTarget bool
}

// ResetGuards clears guard status for every seat. Called at the start of each
// night so a guard only ever covers the night it was placed.
func ResetGuards(room *models.Room) {
	for _, p := range room.Players {
		p.IsGuarded = false
	}
}

// ResolveNight applies the werewolf raid to the room. Guard actions have
// already been persisted by the hunter's skill during the night window, so
// guard status gates the raid's effect here.
//
// Living werewolves are never eligible raid targets, including through the
// tie-break. The tally's raid votes and the room's votes map are cleared as
// part of resolution.
func ResolveNight(room *models.Room) RaidResult {
	var eligible []string
	for _, p := range room.Alive() {
		if p.Role != models.RoleWerewolf {
			eligible = append(eligible, p.PlayerID)
		}
	}

	tally := NewTally(room.Votes)
	targetID, ok := tally.Resolve(eligible)
	room.Votes = tally.Snapshot()
	if !ok {
		return RaidResult{NoTarget: true}
	}

	target := room.Player(targetID)
	if target.IsGuarded {
		// Attack failed; the guard is consumed but the target lives.
		target.IsGuarded = false
		return RaidResult{TargetID: targetID, Guarded: true}
	}

	target.IsAlive = false
	return RaidResult{TargetID: targetID, Killed: true}
}
