package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/models"
)

const onlineUsersTTL = 30 * time.Second

const onlineUsersKey = "presence:online"

// RedisStore handles Redis operations: rate-limit counters and a short
// cache in front of the durable online-users query. It is optional;
// the relay runs without it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// CacheOnlineUsers stores the online-users listing with a short TTL.
func (s *RedisStore) CacheOnlineUsers(ctx context.Context, users []models.User) error {
	data, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, onlineUsersKey, data, onlineUsersTTL).Err()
}

// GetCachedOnlineUsers returns the cached listing, or (nil, nil) on a
// cache miss.
func (s *RedisStore) GetCachedOnlineUsers(ctx context.Context) ([]models.User, error) {
	data, err := s.client.Get(ctx, onlineUsersKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var users []models.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// InvalidateOnlineUsers drops the cached listing, used after the
// sweeper demotes anyone.
func (s *RedisStore) InvalidateOnlineUsers(ctx context.Context) error {
	return s.client.Del(ctx, onlineUsersKey).Err()
}
