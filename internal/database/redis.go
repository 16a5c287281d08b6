package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	locksClientName  = "river-locks"
	pubsubClientName = "river-pubsub"
)

// RedisClients holds the lock/publish client and a separate one for
// subscriptions, which hold their connection for as long as a socket is open.
type RedisClients struct {
	Locks  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	locks, err := connectRedis(ctx, opt, locksClientName)
	if err != nil {
		return nil, err
	}
	pubsub, err := connectRedis(ctx, opt, pubsubClientName)
	if err != nil {
		locks.Close()
		return nil, err
	}

	return &RedisClients{Locks: locks, PubSub: pubsub}, nil
}

// connectRedis opens a named client on a copy of base and pings it.
func connectRedis(ctx context.Context, base *redis.Options, name string) (*redis.Client, error) {
	opt := *base
	opt.ClientName = name
	client := redis.NewClient(&opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis (%s): %w", name, err)
	}
	return client, nil
}

func (r *RedisClients) Close() {
	r.Locks.Close()
	r.PubSub.Close()
}
