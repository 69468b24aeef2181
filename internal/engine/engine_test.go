package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rokuhara/jinrou/internal/models"
)

// mockNotifier collects events instead of pushing them to a gateway.
type mockNotifier struct {
	mu            sync.Mutex
	announcements []string
	boards        map[string]string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{boards: make(map[string]string)}
}

func (m *mockNotifier) Announce(ctx context.Context, roomID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announcements = append(m.announcements, text)
	return nil
}

func (m *mockNotifier) UpdateTopBoard(ctx context.Context, roomID, ref, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boards[ref] = text
	return nil
}

func (m *mockNotifier) contains(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.announcements {
		if strings.Contains(a, substr) {
			return true
		}
	}
	return false
}

func fastTimings() Timings {
	return Timings{
		PreDiscussion: 5 * time.Millisecond,
		Discussion:    []Step{{5 * time.Millisecond, ""}},
		Voting:        80 * time.Millisecond,
		Night:         []Step{{40 * time.Millisecond, ""}},
	}
}

func newTestEngine() (*Engine, *mockNotifier) {
	mn := newMockNotifier()
	e := New(NewMemoryRoomStore(), NewMemoryPlayerStore(), mn, fastTimings())
	return e, mn
}

// setupRoom registers the given players and puts them in one room owned by
// the first.
func setupRoom(t *testing.T, e *Engine, playerIDs ...string) string {
	t.Helper()
	ctx := context.Background()
	for _, id := range playerIDs {
		out, err := e.Register(ctx, id)
		require.NoError(t, err)
		require.False(t, out.Rejected, out.Message)
	}
	out, err := e.CreateRoom(ctx, playerIDs[0], "top-1", "")
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)
	roomID := out.RoomID
	for _, id := range playerIDs[1:] {
		out, err := e.JoinRoom(ctx, roomID, id, "")
		require.NoError(t, err)
		require.False(t, out.Rejected, out.Message)
	}
	return roomID
}

// waitPhase polls under the room lock until the room reaches the phase or the
// deadline passes.
func waitPhase(t *testing.T, e *Engine, roomID string, phase models.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var current models.Phase
		err := e.withRoom(context.Background(), roomID, func(room *models.Room) (bool, error) {
			current = room.Phase
			return false, nil
		})
		require.NoError(t, err)
		if current == phase {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("room %s never reached phase %s", roomID, phase)
}

func TestRegisterTwiceRejected(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	out, err := e.Register(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, out.Rejected)

	out, err = e.Register(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, out.Rejected)
}

func TestCreateRoomRequiresRegistration(t *testing.T) {
	e, _ := newTestEngine()

	out, err := e.CreateRoom(context.Background(), "ghost", "", "")
	require.NoError(t, err)
	assert.True(t, out.Rejected)
}

func TestJoinLeaveRoom(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	roomID := setupRoom(t, e, "alice", "bob")

	// Owner may not leave.
	out, err := e.LeaveRoom(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, out.Rejected)

	out, err = e.LeaveRoom(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, out.Rejected)

	room, err := e.Rooms.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Nil(t, room.Player("bob"))

	rec, err := e.Players.GetPlayer(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, rec.JoinedRoomID)
}

func TestJoinRoomPasscode(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		_, err := e.Register(ctx, id)
		require.NoError(t, err)
	}
	out, err := e.CreateRoom(ctx, "alice", "", "hunter2")
	require.NoError(t, err)
	roomID := out.RoomID

	out, err = e.JoinRoom(ctx, roomID, "bob", "wrong")
	require.NoError(t, err)
	assert.True(t, out.Rejected)

	out, err = e.JoinRoom(ctx, roomID, "bob", "hunter2")
	require.NoError(t, err)
	assert.False(t, out.Rejected)
}

func TestUpdateConfig(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	roomID := setupRoom(t, e, "alice", "bob")

	out, err := e.UpdateConfig(ctx, "bob", map[string]interface{}{"maxPlayers": float64(5)})
	require.NoError(t, err)
	assert.True(t, out.Rejected, "only the owner may change settings")

	out, err = e.UpdateConfig(ctx, "alice", map[string]interface{}{
		"maxPlayers": float64(5),
		"werewolf":   float64(2),
	})
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)

	room, err := e.Rooms.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, 5, room.Config.MaxPlayers)
	assert.Equal(t, 2, room.Config.Quotas[models.RoleWerewolf])

	out, err = e.UpdateConfig(ctx, "alice", map[string]interface{}{"bogus": float64(1)})
	require.NoError(t, err)
	assert.True(t, out.Rejected)
}

func TestStartGameRequiresThreePlayers(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	setupRoom(t, e, "alice", "bob")

	out, err := e.StartGame(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, out.Rejected)
}

func TestStartGameOwnerOnly(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	setupRoom(t, e, "alice", "bob", "carol")

	out, err := e.StartGame(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, out.Rejected)
}

func TestDeleteRoomClearsMemberships(t *testing.T) {
	e, mn := newTestEngine()
	ctx := context.Background()
	roomID := setupRoom(t, e, "alice", "bob")

	out, err := e.DeleteRoom(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, out.Rejected, "only the owner may delete")

	out, err = e.DeleteRoom(ctx, "alice")
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)

	_, err = e.Rooms.GetRoom(ctx, roomID)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	for _, id := range []string{"alice", "bob"} {
		rec, err := e.Players.GetPlayer(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, rec.JoinedRoomID)
	}
	assert.Equal(t, "This room was deleted.", mn.boards["top-1"])
}

func TestChatPolicy(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	roomID := setupRoom(t, e, "alice", "bob")

	allowed, _, err := e.ChatPolicy(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, allowed, "recruitment chat is open")

	allowed, _, err = e.ChatPolicy(ctx, "stranger")
	require.NoError(t, err)
	assert.True(t, allowed, "users outside the game are not muted")

	room, err := e.Rooms.GetRoom(ctx, roomID)
	require.NoError(t, err)
	room.Phase = models.PhaseNight
	allowed, reason, err := e.ChatPolicy(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.NotEmpty(t, reason)

	room.Phase = models.PhaseDiscussion
	room.Player("bob").IsAlive = false
	allowed, _, err = e.ChatPolicy(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, allowed, "dead players stay muted")
}

func TestFullRoundTownVictory(t *testing.T) {
	e, mn := newTestEngine()
	ctx := context.Background()
	roomID := setupRoom(t, e, "alice", "bob", "carol")

	out, err := e.UpdateConfig(ctx, "alice", map[string]interface{}{"werewolf": float64(1)})
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)

	out, err = e.StartGame(ctx, "alice")
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)

	waitPhase(t, e, roomID, models.PhaseVoting)

	room, err := e.Rooms.GetRoom(ctx, roomID)
	require.NoError(t, err)
	var wolfID string
	for _, p := range room.Players {
		if p.Role == models.RoleWerewolf {
			wolfID = p.PlayerID
		}
	}
	require.NotEmpty(t, wolfID)

	for _, id := range []string{"alice", "bob", "carol"} {
		if id == wolfID {
			continue
		}
		out, err := e.CastVote(ctx, id, wolfID)
		require.NoError(t, err)
		require.False(t, out.Rejected, out.Message)
	}

	waitPhase(t, e, roomID, models.PhaseRecruitment)

	assert.True(t, mn.contains("The town has won."))

	room, err = e.Rooms.GetRoom(ctx, roomID)
	require.NoError(t, err)
	for _, p := range room.Players {
		assert.True(t, p.IsAlive, "seats reset to living after the round")
		assert.Equal(t, models.RoleUnassigned, p.Role)
	}
}

func TestFullRoundWerewolfVictoryByParity(t *testing.T) {
	e, mn := newTestEngine()
	ctx := context.Background()
	roomID := setupRoom(t, e, "alice", "bob", "carol")

	out, err := e.UpdateConfig(ctx, "alice", map[string]interface{}{"werewolf": float64(1)})
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)

	out, err = e.StartGame(ctx, "alice")
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)

	waitPhase(t, e, roomID, models.PhaseVoting)

	room, err := e.Rooms.GetRoom(ctx, roomID)
	require.NoError(t, err)
	var wolfID, victimID string
	for _, p := range room.Players {
		if p.Role == models.RoleWerewolf {
			wolfID = p.PlayerID
		} else if victimID == "" {
			victimID = p.PlayerID
		}
	}
	require.NotEmpty(t, wolfID)
	require.NotEmpty(t, victimID)

	// Everyone else votes out a villager, leaving one wolf and one villager.
	for _, id := range []string{"alice", "bob", "carol"} {
		if id == victimID {
			continue
		}
		out, err := e.CastVote(ctx, id, victimID)
		require.NoError(t, err)
		require.False(t, out.Rejected, out.Message)
	}

	waitPhase(t, e, roomID, models.PhaseRecruitment)
	assert.True(t, mn.contains("The werewolves have won."))
}

func TestConcurrentReadsDuringRound(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()
	roomID := setupRoom(t, e, "alice", "bob", "carol")

	out, err := e.UpdateConfig(ctx, "alice", map[string]interface{}{"werewolf": float64(1)})
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)

	out, err = e.StartGame(ctx, "alice")
	require.NoError(t, err)
	require.False(t, out.Rejected, out.Message)

	// Read-only verbs must serialize against the scheduler's phase writes
	// through the room lock, so hammering them mid-round is safe.
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, id := range []string{"alice", "bob", "carol"} {
		wg.Add(1)
		go func(playerID string) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if _, err := e.QueryOwnRole(ctx, playerID); err != nil {
					t.Errorf("QueryOwnRole failed: %v", err)
					return
				}
				if _, _, err := e.ChatPolicy(ctx, playerID); err != nil {
					t.Errorf("ChatPolicy failed: %v", err)
					return
				}
			}
		}(id)
	}

	waitPhase(t, e, roomID, models.PhaseVoting)
	close(done)
	wg.Wait()
}

func TestConcurrentJoinsKeepOneMembership(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	for _, id := range []string{"owner1", "owner2", "bob"} {
		out, err := e.Register(ctx, id)
		require.NoError(t, err)
		require.False(t, out.Rejected, out.Message)
	}
	r1, err := e.CreateRoom(ctx, "owner1", "", "")
	require.NoError(t, err)
	r2, err := e.CreateRoom(ctx, "owner2", "", "")
	require.NoError(t, err)

	// The same player races into two different rooms; the membership guard
	// must admit at most one of the joins.
	var wg sync.WaitGroup
	for _, roomID := range []string{r1.RoomID, r2.RoomID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.JoinRoom(ctx, id, "bob", "")
			assert.NoError(t, err)
		}(roomID)
	}
	wg.Wait()

	rec, err := e.Players.GetPlayer(ctx, "bob")
	require.NoError(t, err)

	rosters := 0
	for _, roomID := range []string{r1.RoomID, r2.RoomID} {
		room, err := e.Rooms.GetRoom(ctx, roomID)
		require.NoError(t, err)
		if room.Player("bob") != nil {
			rosters++
			assert.Equal(t, roomID, rec.JoinedRoomID, "roster and record must agree")
		}
	}
	assert.Equal(t, 1, rosters, "the player must end up in exactly one roster")
}
