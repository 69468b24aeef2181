package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rokuhara/jinrou/internal/engine"
	"github.com/rokuhara/jinrou/internal/models"
)

// RoomStore persists rooms in Postgres. The config, seats and votes of a room
// travel as JSONB blobs; PutRoom always writes the whole record.
type RoomStore struct{}

func NewRoomStore() *RoomStore { return &RoomStore{} }

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	q := `
	SELECT id, owner_id, phase, config, seats, votes, top_ref, deleted, created_at
	FROM rooms
	WHERE id=$1
	`
	var room models.Room
	var phase string
	var configRaw, seatsRaw, votesRaw []byte
	err := DB.QueryRow(ctx, q, roomID).Scan(
		&room.ID, &room.OwnerID, &phase,
		&configRaw, &seatsRaw, &votesRaw,
		&room.TopRef, &room.Deleted, &room.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", roomID, err)
	}
	if room.Deleted {
		return nil, engine.ErrRoomNotFound
	}

	room.Phase = models.Phase(phase)
	if err := json.Unmarshal(configRaw, &room.Config); err != nil {
		return nil, fmt.Errorf("failed to decode room %s config: %w", roomID, err)
	}
	if err := json.Unmarshal(seatsRaw, &room.Players); err != nil {
		return nil, fmt.Errorf("failed to decode room %s seats: %w", roomID, err)
	}
	if err := json.Unmarshal(votesRaw, &room.Votes); err != nil {
		return nil, fmt.Errorf("failed to decode room %s votes: %w", roomID, err)
	}
	if room.Votes == nil {
		room.Votes = map[string][]string{}
	}
	return &room, nil
}

func (s *RoomStore) PutRoom(ctx context.Context, room *models.Room) error {
	configRaw, err := json.Marshal(room.Config)
	if err != nil {
		return fmt.Errorf("failed to encode room config: %w", err)
	}
	seatsRaw, err := json.Marshal(room.Players)
	if err != nil {
		return fmt.Errorf("failed to encode room seats: %w", err)
	}
	votesRaw, err := json.Marshal(room.Votes)
	if err != nil {
		return fmt.Errorf("failed to encode room votes: %w", err)
	}

	q := `
	INSERT INTO rooms (id, owner_id, phase, config, seats, votes, top_ref, deleted, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id)
	DO UPDATE SET owner_id=$2, phase=$3, config=$4, seats=$5, votes=$6, top_ref=$7, deleted=$8
	`
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			room.ID, room.OwnerID, string(room.Phase),
			configRaw, seatsRaw, votesRaw,
			room.TopRef, room.Deleted, room.CreatedAt,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert room %s: %w", room.ID, err)
	}
	return nil
}
