package store

import (
    "context"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisCompletions records which orders already went through completion, so
// a duplicate payment confirmation never prints twice.
type RedisCompletions struct {
    client *redis.Client
    ttl    time.Duration
}

func NewRedisCompletions(redisURL string, ttl time.Duration) (*RedisCompletions, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil { return nil, err }
    if ttl <= 0 { ttl = 24 * time.Hour }
    return &RedisCompletions{client: c, ttl: ttl}, nil
}

func (s *RedisCompletions) key(orderID string) string {
    return fmt.Sprintf("order:%s:completed", orderID)
}

func (s *RedisCompletions) MarkCompleted(ctx context.Context, orderID string) error {
    return s.client.Set(ctx, s.key(orderID), time.Now().Format(time.RFC3339Nano), s.ttl).Err()
}

func (s *RedisCompletions) IsCompleted(ctx context.Context, orderID string) (bool, error) {
    n, err := s.client.Exists(ctx, s.key(orderID)).Result()
    if err != nil { return false, err }
    return n > 0, nil
}

func (s *RedisCompletions) Close() error { return s.client.Close() }
