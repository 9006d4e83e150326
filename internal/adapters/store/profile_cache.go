package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ProfileCache puts a Redis cache-aside in front of profile lookups.
// Redis is never authoritative: on any cache error the inner store answers.
type ProfileCache struct {
	core.MessageStore

	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewProfileCache(inner core.MessageStore, client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		MessageStore: inner,
		client:       client,
		prefix:       "chat:profile:",
		ttl:          ttl,
	}
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (c *ProfileCache) key(id domain.UserID) string {
	return c.prefix + string(id)
}

func (c *ProfileCache) LookupUserProfile(ctx context.Context, id domain.UserID) (*domain.User, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var u domain.User
		if err := json.Unmarshal(data, &u); err == nil {
			return &u, nil
		}
		log.Warn().Str("module", "store.cache").Str("user", string(id)).Msg("corrupt cache entry")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("module", "store.cache").Msg("cache get failed")
	}

	u, err := c.MessageStore.LookupUserProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(u); err == nil {
		if err := c.client.Set(ctx, c.key(id), data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("module", "store.cache").Msg("cache set failed")
		}
	}
	return u, nil
}

// Invalidate drops a cached profile after it changed.
func (c *ProfileCache) Invalidate(ctx context.Context, id domain.UserID) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
