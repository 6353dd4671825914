package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

const completionTimeout = 2 * time.Second

// publisher is the part of *redis.Client used by Redis.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes the events of one stream on a pub/sub channel, so other replicas
// and services can follow it.
type Redis struct {
	client  publisher
	channel string
}

var _ reconcile.Sink = (*Redis)(nil)

// NewRedis publishes on prefix+channel.
func NewRedis(client publisher, prefix, channel string) *Redis {
	return &Redis{client: client, channel: prefix + channel}
}

// Channel is the redis channel the sink publishes on.
func (r *Redis) Channel() string { return r.channel }

func (r *Redis) Send(ctx context.Context, event reconcile.Event) error {
	return r.publish(ctx, event)
}

func (r *Redis) Complete() { r.CompleteWithError(nil) }

func (r *Redis) CompleteWithError(err error) {
	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()
	if perr := r.publish(ctx, completionFrame(err)); perr != nil {
		logging.Warn("Sink", "Failed to publish completion on %s: %v", r.channel, perr)
	}
}

func (r *Redis) publish(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish on %s: %w", r.channel, err)
	}
	return nil
}

// NewRedisClient connects to redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
