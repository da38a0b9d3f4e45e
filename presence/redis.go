package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 12 * time.Hour

// RedisStore keeps a per-user live session count in Redis so that any
// instance can answer "is this user online". Counts are adjusted with
// INCR/DECR, so updates from different instances commute.
//
// Keys: <prefix>:presence:<userID> -> number of live sessions
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: defaultTTL}
}

// Connect opens a client and pings it once.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("presence: redis ping %s: %w", addr, err)
	}
	return r, nil
}

func (s *RedisStore) key(userID uuid.UUID) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *RedisStore) Joined(ctx context.Context, userID uuid.UUID) error {
	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: joined %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Left(ctx context.Context, userID uuid.UUID) error {
	key := s.key(userID)
	n, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("presence: left %s: %w", userID, err)
	}
	if n <= 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("presence: left %s: %w", userID, err)
		}
	}
	return nil
}

func (s *RedisStore) Online(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := s.client.Get(ctx, s.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("presence: online %s: %w", userID, err)
	}
	return n > 0, nil
}
