package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rokuhara/jinrou/internal/models"
)

// Step is one suspend-then-announce interval inside a timed window.
// Reminders sit at fixed wall-clock offsets from the window start; they are
// not reactive to game events.
type Step struct {
	Wait     time.Duration
	Announce string
}

// Timings parameterizes every timed window of a round. Tests shrink these to
// milliseconds.
type Timings struct {
	// PreDiscussion is the muted pause between role reveal and the first
	// discussion.
	PreDiscussion time.Duration
	// Discussion is the discussion window as a reminder ladder.
	Discussion []Step
	// Voting is the day vote window.
	Voting time.Duration
	// Night is the night window as a reminder ladder.
	Night []Step
}

// DefaultTimings mirrors the production cadence: 15s muted pause, a five
// minute discussion with countdown reminders, 60s voting, 60s night.
func DefaultTimings() Timings {
	return Timings{
		PreDiscussion: 15 * time.Second,
		Discussion: []Step{
			{time.Minute, "4 minutes remaining"},
			{time.Minute, "3 minutes remaining"},
			{time.Minute, "2 minutes remaining"},
			{time.Minute, "1 minute remaining"},
			{30 * time.Second, "30 seconds remaining"},
			{15 * time.Second, "15 seconds remaining"},
			{15 * time.Second, ""},
		},
		Voting: time.Minute,
		Night: []Step{
			{50 * time.Second, "10 seconds remaining"},
			{10 * time.Second, ""},
		},
	}
}

// sleep suspends until d elapses or the run is cancelled.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// walk executes a reminder ladder, announcing after each interval.
func (e *Engine) walk(ctx context.Context, roomID string, steps []Step) bool {
	for _, s := range steps {
		if !e.sleep(ctx, s.Wait) {
			return false
		}
		if s.Announce != "" {
			e.announce(ctx, roomID, s.Announce)
		}
	}
	return true
}

// setPhase transitions the room, optionally starting a fresh tally.
func (e *Engine) setPhase(ctx context.Context, roomID string, phase models.Phase, clearVotes bool) error {
	return e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		room.Phase = phase
		if clearVotes {
			room.Votes = map[string][]string{}
		}
		return true, nil
	})
}

// beginNight enters the night window: fresh tally, guards reset so each guard
// only covers the night it is placed in.
func (e *Engine) beginNight(ctx context.Context, roomID string) error {
	return e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		room.Phase = models.PhaseNight
		room.Votes = map[string][]string{}
		ResetGuards(room)
		return true, nil
	})
}

// checkWin evaluates the win condition without mutating the room.
func (e *Engine) checkWin(ctx context.Context, roomID string) (Verdict, error) {
	var v Verdict
	err := e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		v = EvaluateWin(room.Players)
		return false, nil
	})
	return v, err
}

// resolveDayVote ends the voting window: one living player is eliminated,
// role-blind, by majority with random tie-break, or uniformly at random when
// no votes were cast. Returns the announcement line.
func (e *Engine) resolveDayVote(ctx context.Context, roomID string) (string, error) {
	var msg string
	err := e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		var eligible []string
		for _, p := range room.Alive() {
			eligible = append(eligible, p.PlayerID)
		}

		tally := NewTally(room.Votes)
		noVotes := tally.Empty()
		punishedID, resolved := tally.Resolve(eligible)
		room.Votes = tally.Snapshot()
		if !resolved {
			log.Printf("scheduler: room %s has no living players to punish", roomID)
			msg = "No one could be executed."
			return true, nil
		}

		room.Player(punishedID).IsAlive = false
		if noVotes {
			msg = fmt.Sprintf("No votes were cast; %s was executed at random.", punishedID)
		} else {
			msg = fmt.Sprintf("The vote has closed. %s was executed.", punishedID)
		}
		return true, nil
	})
	return msg, err
}

// resolveRaid ends the night window by applying the werewolf attack.
func (e *Engine) resolveRaid(ctx context.Context, roomID string) (string, error) {
	var msg string
	err := e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		res := ResolveNight(room)
		switch {
		case res.NoTarget:
			msg = "No one was attacked last night."
		case res.Guarded:
			msg = "The werewolves attacked, but the hunter's guard held. No one fell."
		default:
			msg = fmt.Sprintf("%s was attacked during the night.", res.TargetID)
		}
		return true, nil
	})
	return msg, err
}

// runRoom drives one room through a full round. It owns the room's phase
// transitions; player verbs interleave through the per-room lock while the
// run is suspended in a timed window. Cancellation (room deletion) unwinds
// any remaining scheduled reminders.
func (e *Engine) runRoom(ctx context.Context, roomID string) {
	defer e.finishRun(roomID)

	// First processing entry: assign roles and reveal the composition.
	var mentions, composition, board, topRef string
	err := e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		AssignRoles(room)
		room.Votes = map[string][]string{}
		for _, p := range room.Players {
			if mentions != "" {
				mentions += " "
			}
			mentions += p.PlayerID
		}
		composition = room.RoleComposition()
		board = renderTopBoard(room)
		topRef = room.TopRef
		return true, nil
	})
	if err != nil {
		log.Printf("scheduler: room %s failed during role assignment: %v", roomID, err)
		return
	}

	e.announce(ctx, roomID, "Game start!\n"+mentions)
	e.announce(ctx, roomID, "Check your secretly assigned role with the role command.")
	e.announce(ctx, roomID, composition)
	e.announce(ctx, roomID, "Chat is still muted. Discussion opens shortly.")
	e.updateBoard(ctx, roomID, topRef, board)

	if !e.sleep(ctx, e.Timings.PreDiscussion) {
		return
	}

	verdict, err := e.checkWin(ctx, roomID)
	if err != nil {
		log.Printf("scheduler: room %s win check failed: %v", roomID, err)
		return
	}

	for verdict == VerdictNone {
		// Discussion: chat unsuppressed, countdown reminders.
		if err := e.setPhase(ctx, roomID, models.PhaseDiscussion, false); err != nil {
			log.Printf("scheduler: room %s phase change failed: %v", roomID, err)
			return
		}
		e.announce(ctx, roomID, "Discussion has begun. Chat is open.")
		if !e.walk(ctx, roomID, e.Timings.Discussion) {
			return
		}

		// Voting.
		if err := e.setPhase(ctx, roomID, models.PhaseVoting, true); err != nil {
			log.Printf("scheduler: room %s phase change failed: %v", roomID, err)
			return
		}
		e.announce(ctx, roomID, "Voting is open. Cast your vote now.")
		if !e.sleep(ctx, e.Timings.Voting) {
			return
		}
		msg, err := e.resolveDayVote(ctx, roomID)
		if err != nil {
			log.Printf("scheduler: room %s day resolution failed: %v", roomID, err)
			return
		}
		e.announce(ctx, roomID, msg)

		if verdict, err = e.checkWin(ctx, roomID); err != nil {
			log.Printf("scheduler: room %s win check failed: %v", roomID, err)
			return
		} else if verdict != VerdictNone {
			break
		}

		// Night.
		if err := e.beginNight(ctx, roomID); err != nil {
			log.Printf("scheduler: room %s phase change failed: %v", roomID, err)
			return
		}
		e.announce(ctx, roomID, "Night falls. Chat is muted; use your night abilities.")
		if !e.walk(ctx, roomID, e.Timings.Night) {
			return
		}

		// Dawn recap: second processing entry of the cycle.
		if err := e.setPhase(ctx, roomID, models.PhaseProcessing, false); err != nil {
			log.Printf("scheduler: room %s phase change failed: %v", roomID, err)
			return
		}
		e.announce(ctx, roomID, "The sun rises.")
		raidMsg, err := e.resolveRaid(ctx, roomID)
		if err != nil {
			log.Printf("scheduler: room %s night resolution failed: %v", roomID, err)
			return
		}
		e.announce(ctx, roomID, raidMsg)

		if verdict, err = e.checkWin(ctx, roomID); err != nil {
			log.Printf("scheduler: room %s win check failed: %v", roomID, err)
			return
		}
	}

	e.finishRound(ctx, roomID, verdict)
}

// finishRound ends the round: the final roster is persisted in the end
// phase, the winner announced, then the room resets to recruitment with its
// membership intact.
func (e *Engine) finishRound(ctx context.Context, roomID string, verdict Verdict) {
	if err := e.setPhase(ctx, roomID, models.PhaseEnd, false); err != nil {
		log.Printf("scheduler: room %s failed to enter end phase: %v", roomID, err)
		return
	}
	if verdict == VerdictNone {
		// The loop should only exit with a decision; announce something
		// sensible and leave a trace for investigation.
		log.Printf("scheduler: room %s ended without a computed verdict", roomID)
	}
	e.announce(ctx, roomID, verdict.Announcement())

	var board, topRef string
	err := e.withRoom(ctx, roomID, func(room *models.Room) (bool, error) {
		for _, p := range room.Players {
			p.ResetRound()
		}
		room.Votes = map[string][]string{}
		room.Phase = models.PhaseRecruitment
		board = renderTopBoard(room)
		topRef = room.TopRef
		return true, nil
	})
	if err != nil {
		log.Printf("scheduler: room %s failed to reset after round: %v", roomID, err)
		return
	}
	e.updateBoard(ctx, roomID, topRef, board)
}
