package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var DB *pgxpool.Pool

// ConnectDB initializes the global pool from POSTGRES_USER, POSTGRES_PASSWORD,
// PG_HOST, PG_PORT and PG_DATABASE. Exits on failure.
func ConnectDB() {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		os.Getenv("PG_HOST"),
		os.Getenv("PG_PORT"),
		os.Getenv("PG_DATABASE"),
	)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		log.Fatalf("unable to parse pgx config: %v", err)
	}

	DB, err = pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalf("unable to create pgx pool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}

	log.Printf("Connected to database at %s:%s", os.Getenv("PG_HOST"), os.Getenv("PG_PORT"))
}

// EnsureSchema creates the tables if they do not exist. Round state is stored
// as JSONB; the engine always rewrites the full room record.
func EnsureSchema(ctx context.Context) error {
	q := `
	CREATE TABLE IF NOT EXISTS players (
		id UUID PRIMARY KEY,
		platform_id TEXT UNIQUE NOT NULL,
		joined_room_id TEXT NOT NULL DEFAULT '',
		exp INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		config JSONB NOT NULL,
		seats JSONB NOT NULL,
		votes JSONB NOT NULL,
		top_ref TEXT NOT NULL DEFAULT '',
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := DB.Exec(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
