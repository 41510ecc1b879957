package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/tradeserver/logger"
)

// DefaultRedisChannel is the pub/sub channel events are published on when
// none is configured.
const DefaultRedisChannel = "tradeserver:notifications"

// RedisNotifier publishes notifications as JSON on a Redis pub/sub channel so
// that external dashboards or alerting can subscribe to them. Publishing is
// synchronous and bounded by a 2s timeout; wrap it in a Background to keep
// callers from waiting.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	log     logger.Logger
}

// NewRedisNotifier creates a notifier publishing on channel through client.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	n := NewRedisNotifier(client, "", log)
func NewRedisNotifier(client *redis.Client, channel string, log logger.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}

	return &RedisNotifier{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		log:     log,
	}
}

func (r *RedisNotifier) InformalEvent(msg string) {
	r.publish(newEvent(Informal, msg, nil))
}

func (r *RedisNotifier) UnexpectedEvent(msg string, cause error) {
	r.publish(newEvent(Unexpected, msg, cause))
}

func (r *RedisNotifier) UnrecoverableError(msg string, cause error) {
	r.publish(newEvent(Unrecoverable, msg, cause))
}

func (r *RedisNotifier) publish(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.Publish(ctx, e); err != nil {
		r.log.Warn("redis notification failed", logger.Err(err), logger.F("channel", r.channel))
	}
}

// Publish sends one event and reports the failure instead of logging it.
func (r *RedisNotifier) Publish(ctx context.Context, e Event) error {
	if err := r.client.Publish(ctx, r.channel, e.encode()).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", r.channel, err)
	}

	return nil
}

// Close closes the underlying client.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
