package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the messaging gateway consumes.
var DefaultQueueName = "jinrou_events"

// QueueNotifier serializes events to JSON and pushes them onto a Redis list.
// The gateway pops the list and renders platform messages from it.
type QueueNotifier struct {
	rdb   *redis.Client
	queue string
}

// ConnectQueue initializes a QueueNotifier from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//   - EVENT_QUEUE_NAME (optional, default DefaultQueueName)
func ConnectQueue() (*QueueNotifier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		DB:   getEnvInt("REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &QueueNotifier{
		rdb:   rdb,
		queue: getEnv("EVENT_QUEUE_NAME", DefaultQueueName),
	}, nil
}

func (q *QueueNotifier) push(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

func (q *QueueNotifier) Announce(ctx context.Context, roomID, text string) error {
	return q.push(ctx, newEvent(KindAnnounce, roomID, "", text))
}

func (q *QueueNotifier) UpdateTopBoard(ctx context.Context, roomID, ref, text string) error {
	return q.push(ctx, newEvent(KindTopBoard, roomID, ref, text))
}

// Close releases the underlying Redis client.
func (q *QueueNotifier) Close() error {
	return q.rdb.Close()
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
