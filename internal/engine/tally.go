package engine

import (
	"log"
	"math/rand"
)

// Tally accumulates one choice per participant for the current sub-phase
// (day votes or night raid targets) and resolves the winner.
type Tally struct {
	votes map[string][]string
}

// NewTally wraps an existing votes map; a nil map starts empty.
func NewTally(votes map[string][]string) *Tally {
	if votes == nil {
		votes = map[string][]string{}
	}
	return &Tally{votes: votes}
}

// Cast appends voterID to targetID's supporters. It returns false if the
// voter already appears under any target this sub-phase; a second cast never
// increases a voter's influence.
func (t *Tally) Cast(voterID, targetID string) bool {
	for _, voters := range t.votes {
		for _, v := range voters {
			if v == voterID {
				return false
			}
		}
	}
	t.votes[targetID] = append(t.votes[targetID], voterID)
	return true
}

// Resolve picks the target with the most support among eligible, breaking
// ties uniformly at random. With no votes at all it picks uniformly among
// eligible. It returns false when eligible is empty, leaving the tally
// untouched; on success the tally is cleared.
//
// Votes for targets that are no longer eligible are dropped from the count;
// if that leaves nothing, resolution degrades to a random eligible pick so
// the round can always progress.
func (t *Tally) Resolve(eligible []string) (string, bool) {
	if len(eligible) == 0 {
		return "", false
	}

	allowed := make(map[string]bool, len(eligible))
	for _, id := range eligible {
		allowed[id] = true
	}

	var winner string
	switch {
	case len(t.votes) == 0:
		winner = eligible[rand.Intn(len(eligible))]
	default:
		max := 0
		var top []string
		for targetID, voters := range t.votes {
			if !allowed[targetID] {
				continue
			}
			switch n := len(voters); {
			case n > max:
				max = n
				top = []string{targetID}
			case n == max:
				top = append(top, targetID)
			}
		}
		if len(top) == 0 {
			// Every voted target dropped out of the eligible set.
			log.Printf("tally: no eligible vote target remains, falling back to random pick")
			winner = eligible[rand.Intn(len(eligible))]
		} else {
			winner = top[rand.Intn(len(top))]
		}
	}

	t.votes = map[string][]string{}
	return winner, true
}

// Empty reports whether any vote has been cast this sub-phase.
func (t *Tally) Empty() bool {
	return len(t.votes) == 0
}

// Snapshot returns the votes map for persistence.
func (t *Tally) Snapshot() map[string][]string {
	return t.votes
}
