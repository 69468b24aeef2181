package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokuhara/jinrou/internal/models"
)

func testRoom(n int) *models.Room {
	room := models.NewRoom("p0", "")
	for i := 1; i < n; i++ {
		room.Players = append(room.Players, models.NewPlayer(fmt.Sprintf("p%d", i)))
	}
	return room
}

func roleCounts(room *models.Room) map[models.Role]int {
	counts := map[models.Role]int{}
	for _, p := range room.Players {
		counts[p.Role]++
	}
	return counts
}

func TestAssignRolesQuotasAndPadding(t *testing.T) {
	room := testRoom(7)
	room.Config.Quotas[models.RoleWerewolf] = 2
	room.Config.Quotas[models.RoleSeer] = 1
	room.Config.Quotas[models.RoleHunter] = 1

	AssignRoles(room)

	counts := roleCounts(room)
	assert.Equal(t, 2, counts[models.RoleWerewolf])
	assert.Equal(t, 1, counts[models.RoleSeer])
	assert.Equal(t, 1, counts[models.RoleHunter])
	assert.Equal(t, 3, counts[models.RoleVillager], "leftover seats must become villagers")

	for _, p := range room.Players {
		require.NotEqual(t, models.RoleUnassigned, p.Role)
		assert.Equal(t, p.Role == models.RoleWerewolf, p.IsBlack)
	}
}

func TestAssignRolesTruncatesOverfullQuotas(t *testing.T) {
	room := testRoom(3)
	room.Config.Quotas[models.RoleWerewolf] = 5

	AssignRoles(room)

	counts := roleCounts(room)
	assert.Equal(t, 3, counts[models.RoleWerewolf], "the pool must truncate to the seat count")
}

func TestAssignRolesAllVillagersByDefault(t *testing.T) {
	room := testRoom(4)

	AssignRoles(room)

	counts := roleCounts(room)
	assert.Equal(t, 4, counts[models.RoleVillager])
}
