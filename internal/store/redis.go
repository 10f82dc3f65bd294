package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps talking state and seen webhook events in Redis so that several
// replicas agree and a restart does not reset the toggle.
type RedisStore struct {
	client         *redis.Client
	prefix         string
	dedupTTL       time.Duration
	defaultTalking bool
}

func NewRedisStore(redisURL, prefix string, dedupTTL time.Duration, defaultTalking bool) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if prefix == "" {
		prefix = "linerelay"
	}
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	return &RedisStore{client: c, prefix: prefix, dedupTTL: dedupTTL, defaultTalking: defaultTalking}, nil
}

func (s *RedisStore) talkingKey() string {
	return s.prefix + ":talking"
}

func (s *RedisStore) eventKey(eventID string) string {
	return fmt.Sprintf("%s:event:%s", s.prefix, eventID)
}

// TalkingEnabled falls back to the configured default when the key was never set.
func (s *RedisStore) TalkingEnabled(ctx context.Context) (bool, error) {
	v, err := s.client.Get(ctx, s.talkingKey()).Result()
	if err == redis.Nil {
		return s.defaultTalking, nil
	}
	if err != nil {
		return s.defaultTalking, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return s.defaultTalking, fmt.Errorf("talking flag %q: %w", v, err)
	}
	return enabled, nil
}

func (s *RedisStore) SetTalkingEnabled(ctx context.Context, enabled bool) error {
	return s.client.Set(ctx, s.talkingKey(), strconv.FormatBool(enabled), 0).Err()
}

func (s *RedisStore) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	return s.client.SetNX(ctx, s.eventKey(eventID), 1, s.dedupTTL).Result()
}

// Ping checks redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Client exposes the connection for components sharing it.
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) Close() error { return s.client.Close() }
