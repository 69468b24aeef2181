package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rokuhara/jinrou/internal/models"
)

// ErrRoomNotFound is returned by RoomStore lookups for unknown or deleted rooms.
var ErrRoomNotFound = errors.New("room not found")

// ErrPlayerNotFound is returned by PlayerStore lookups for unregistered players.
var ErrPlayerNotFound = errors.New("player not found")

// RoomStore is the keyed persistence the engine needs for rooms: point
// lookups and whole-record updates, atomic per call.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	PutRoom(ctx context.Context, room *models.Room) error
}

// PlayerStore is the keyed persistence for registration records, addressed by
// the platform's opaque player identifier.
type PlayerStore interface {
	GetPlayer(ctx context.Context, platformID string) (*models.PlayerRecord, error)
	PutPlayer(ctx context.Context, rec *models.PlayerRecord) error
}

// MemoryRoomStore keeps rooms in memory. Used by tests and by deployments
// that run without Postgres.
type MemoryRoomStore struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[string]*models.Room)}
}

func (s *MemoryRoomStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || room.Deleted {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *MemoryRoomStore) PutRoom(ctx context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

// MemoryPlayerStore keeps registration records in memory.
type MemoryPlayerStore struct {
	mu      sync.Mutex
	players map[string]*models.PlayerRecord
}

func NewMemoryPlayerStore() *MemoryPlayerStore {
	return &MemoryPlayerStore{players: make(map[string]*models.PlayerRecord)}
}

func (s *MemoryPlayerStore) GetPlayer(ctx context.Context, platformID string) (*models.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.players[platformID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return rec, nil
}

func (s *MemoryPlayerStore) PutPlayer(ctx context.Context, rec *models.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[rec.PlatformID] = rec
	return nil
}
