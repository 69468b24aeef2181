package engine

import (
	"math/rand"

	"github.com/rokuhara/jinrou/internal/models"
)

// buildRolePool flattens the configured quotas into a role slice, pads the
// remainder with villagers up to seats, and truncates when the quotas claim
// more seats than exist. Quotas are a soft upper bound, not an error.
func buildRolePool(cfg models.RoomConfig, seats int) []models.Role {
	pool := make([]models.Role, 0, seats)
	for _, role := range models.ConfigurableRoles {
		for i := 0; i < cfg.Quotas[role]; i++ {
			pool = append(pool, role)
		}
	}
	for len(pool) < seats {
		pool = append(pool, models.RoleVillager)
	}
	if len(pool) > seats {
		pool = pool[:seats]
	}
	return pool
}

// AssignRoles gives every seat exactly one role. The player list and the role
// pool are shuffled independently so the pairing of a player with a role does
// not leak through shared randomness, then roles are assigned by position.
// Werewolf seats are additionally marked black for seer checks.
func AssignRoles(room *models.Room) {
	pool := buildRolePool(room.Config, len(room.Players))

	rand.Shuffle(len(room.Players), func(i, j int) {
		room.Players[i], room.Players[j] = room.Players[j], room.Players[i]
	})
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	for i, p := range room.Players {
		p.Role = pool[i]
		p.IsBlack = pool[i] == models.RoleWerewolf
	}
}
