package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/supportiq/backend/pkg/logger"
)

type Client struct {
	rdb *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("host", host), zap.Int("port", port))

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// MarkGhostAlert records that a ghost alert fired for a service. It returns
// true when the caller holds the marker and should dispatch the alert, false
// when a recent alert for the same service already claimed it. A zero TTL
// disables dedup entirely.
func (c *Client) MarkGhostAlert(ctx context.Context, service string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}

	key := "supportiq:ghost_alert:" + service
	ok, err := c.rdb.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark ghost alert: %w", err)
	}
	return ok, nil
}

// MarkTicketSeen claims an intake idempotency marker for a ticket ID.
// Returns false when the same ticket was already accepted within the TTL.
func (c *Client) MarkTicketSeen(ctx context.Context, ticketID string, ttl time.Duration) (bool, error) {
	key := "supportiq:ticket_seen:" + ticketID
	ok, err := c.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark ticket seen: %w", err)
	}
	return ok, nil
}
