package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRelayChannel is the redis channel room envelopes travel on.
const DefaultRelayChannel = "messaging:ws:rooms"

// RedisRelay shares room fan-out between instances over redis pub/sub.
// Every instance, the publishing one included, delivers what it receives
// to its own connections.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, log *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{rdb: rdb, channel: channel, hub: hub, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, data).Err()
}

// Run delivers received envelopes to the hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("ws relay: dropping malformed envelope", zap.Error(err))
				continue
			}
			r.hub.Deliver(&env)
		}
	}
}
