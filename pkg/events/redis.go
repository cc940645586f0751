package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore mirrors job events onto a Redis/DragonflyDB stream. It is an
// observability sink only; the broker's queue state never touches Redis.
type RedisStore struct {
	client    *redis.Client
	streamKey string
	maxEvents int64
	buf       chan Event
	done      chan struct{}
}

// RedisConfig holds connection settings for the event mirror.
type RedisConfig struct {
	// Address is the Redis/DragonflyDB server address.
	Address string
	// Password for authentication.
	Password string
	// Database number.
	Database int
	// StreamKey is the stream events are appended to.
	StreamKey string
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:   "localhost:6379",
		StreamKey: "jobq:events",
	}
}

// NewRedisStore connects and starts the background append loop.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.StreamKey == "" {
		cfg.StreamKey = "jobq:events"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("events: connecting to redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		streamKey: cfg.StreamKey,
		maxEvents: 100000, // Keep last 100k events
		buf:       make(chan Event, 256),
		done:      make(chan struct{}),
	}
	go rs.appendLoop()
	return rs, nil
}

// Publish queues an event for appending. Never blocks the caller; when the
// buffer is full the event is dropped.
func (rs *RedisStore) Publish(event Event) {
	select {
	case rs.buf <- event:
	case <-rs.done:
	default:
		log.Println("events: redis buffer full, dropping event")
	}
}

func (rs *RedisStore) appendLoop() {
	for {
		select {
		case <-rs.done:
			return
		case event := <-rs.buf:
			if err := rs.append(event); err != nil {
				log.Printf("events: append failed: %v", err)
			}
		}
	}
}

func (rs *RedisStore) append(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rs.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rs.streamKey,
		MaxLen: rs.maxEvents,
		Approx: true,
		Values: map[string]any{"data": data},
	}).Err()
}

// Recent returns the most recent events in chronological order.
func (rs *RedisStore) Recent(ctx context.Context, count int64) ([]Event, error) {
	messages, err := rs.client.XRevRangeN(ctx, rs.streamKey, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		events = append(events, event)
	}

	// Reverse to chronological order
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	return events, nil
}

// Close stops the append loop and closes the connection.
func (rs *RedisStore) Close() error {
	close(rs.done)
	return rs.client.Close()
}
