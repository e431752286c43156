package deadletter

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/shineum/smtp2webhook/internal/email"
)

// DefaultRedisKey is the list that receives dead letters when none is configured.
const DefaultRedisKey = "smtp2webhook:deadletter"

// RedisConfig holds the configuration for creating a RedisSink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string

	// MaxLen trims the list to the newest MaxLen records; 0 keeps everything.
	MaxLen int64
}

// RedisSink pushes JSON records onto a redis list, newest first.
type RedisSink struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedis creates a RedisSink connected to cfg.Addr.
func NewRedis(cfg RedisConfig) *RedisSink {
	return NewRedisWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.Key, cfg.MaxLen)
}

// NewRedisWithClient creates a RedisSink around an existing client.
func NewRedisWithClient(client *redis.Client, key string, maxLen int64) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{client: client, key: key, maxLen: maxLen}
}

// Store LPUSHes the record and trims the list when MaxLen is set.
func (s *RedisSink) Store(ctx context.Context, msg *email.Email, reason error) error {
	payload, err := json.Marshal(NewRecord(msg, reason))
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, payload)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push dead letter to redis: %w", err)
	}
	return nil
}

// Name returns the sink name.
func (s *RedisSink) Name() string {
	return "redis"
}

// Close releases the redis connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
