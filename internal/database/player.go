package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rokuhara/jinrou/internal/engine"
	"github.com/rokuhara/jinrou/internal/models"
)

// PlayerStore persists registration records in Postgres, keyed by the
// platform's opaque user identifier.
type PlayerStore struct{}

func NewPlayerStore() *PlayerStore { return &PlayerStore{} }

func (s *PlayerStore) GetPlayer(ctx context.Context, platformID string) (*models.PlayerRecord, error) {
	q := `
	SELECT id, platform_id, joined_room_id, exp, created_at
	FROM players
	WHERE platform_id=$1
	`
	var rec models.PlayerRecord
	err := DB.QueryRow(ctx, q, platformID).Scan(
		&rec.ID, &rec.PlatformID, &rec.JoinedRoomID, &rec.Exp, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player %s: %w", platformID, err)
	}
	return &rec, nil
}

func (s *PlayerStore) PutPlayer(ctx context.Context, rec *models.PlayerRecord) error {
	q := `
	INSERT INTO players (id, platform_id, joined_room_id, exp, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (platform_id)
	DO UPDATE SET joined_room_id=$3, exp=$4
	`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			rec.ID, rec.PlatformID, rec.JoinedRoomID, rec.Exp, rec.CreatedAt,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", rec.PlatformID, err)
	}
	return nil
}
