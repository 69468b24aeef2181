package engine

import (
	"context"

	"github.com/rokuhara/jinrou/internal/models"
)

// useSkill is the single dispatch point for role abilities, keyed by the
// actor's assigned role. Abilities are only valid while the room is in the
// voting or night windows; nightOnly additionally restricts to night.
//
// Roles without an implemented ability (villager, medium, lunatic, fox) fall
// through to a uniform "skill not available" outcome; the identifiers stay
// reserved rather than silently ignored.
func (e *Engine) useSkill(ctx context.Context, actorID, targetID string, nightOnly bool) (Outcome, error) {
	if targetID == "" {
		return reject("you must name a target"), nil
	}

	rec, out, err := e.record(ctx, actorID)
	if rec == nil {
		return out, err
	}
	if rec.JoinedRoomID == "" {
		return reject("you are not in a room"), nil
	}

	err = e.withRoom(ctx, rec.JoinedRoomID, func(room *models.Room) (bool, error) {
		if nightOnly && room.Phase != models.PhaseNight {
			out = reject("it is not night")
			return false, nil
		}
		if room.Phase != models.PhaseVoting && room.Phase != models.PhaseNight {
			out = reject("abilities cannot be used right now")
			return false, nil
		}

		actor := room.Player(actorID)
		if actor == nil || !actor.IsAlive {
			out = reject("you are dead or not part of this game")
			return false, nil
		}
		target := room.Player(targetID)
		if target == nil {
			out = reject("that player is not in this room")
			return false, nil
		}

		switch actor.Role {
		case models.RoleSeer:
			if actorID == targetID {
				out = reject("you cannot divine yourself")
				return false, nil
			}
			if !target.IsAlive {
				out = reject("that player is already dead")
				return false, nil
			}
			result := "not a werewolf"
			if target.IsBlack {
				result = "a werewolf"
			}
			// Read-only: nothing to persist.
			out = Outcome{Message: "Divination: " + targetID + " is " + result + ".", Private: true}
			return false, nil

		case models.RoleHunter:
			if actorID == targetID {
				out = reject("you cannot guard yourself")
				return false, nil
			}
			if !target.IsAlive {
				out = reject("that player is already dead")
				return false, nil
			}
			target.IsGuarded = true
			out = Outcome{Message: "You are guarding " + targetID + " tonight.", Private: true}
			return true, nil

		case models.RoleWerewolf:
			if room.Phase != models.PhaseNight {
				out = reject("the raid happens at night")
				return false, nil
			}
			if !target.IsAlive {
				out = reject("that player is already dead")
				return false, nil
			}
			if target.Role == models.RoleWerewolf {
				out = reject("you cannot raid another werewolf")
				return false, nil
			}
			tally := NewTally(room.Votes)
			if !tally.Cast(actorID, targetID) {
				out = reject("you have already chosen tonight's prey")
				return false, nil
			}
			room.Votes = tally.Snapshot()
			out = Outcome{Message: "You marked " + targetID + " as tonight's prey.", Private: true}
			return true, nil

		default:
			out = reject("your role has no skill to use")
			return false, nil
		}
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}
