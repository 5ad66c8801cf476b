package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "lawaid:session:"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL is applied to every key; idle sessions expire on their own.
	TTL time.Duration
}

// RedisStore implements Repository on Redis strings with per-key expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis store: address cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, opts.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) key(sessionID string) string {
	return redisKeyPrefix + sessionID
}

// GetSession implements Repository.
func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session from redis: %w", err)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &rec, nil
}

// UpsertSession implements Repository.
func (r *RedisStore) UpsertSession(ctx context.Context, rec *domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(rec.SessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session to redis: %w", err)
	}
	return nil
}

// DeleteSession implements Repository.
func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session from redis: %w", err)
	}
	return nil
}

// CleanupExpiredSessions implements Repository. Keys carry their own TTL, so
// there is nothing to sweep.
func (r *RedisStore) CleanupExpiredSessions(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

// Ping implements Repository.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Repository.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
