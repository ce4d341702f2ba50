package store

import (
    "context"
    "fmt"
    "strconv"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// UserSession is the kiosk's signed-in principal: a phone number plus the
// cached points balance shown on the dashboard.
type UserSession struct {
    Phone     string     `json:"phone"`
    Name      string     `json:"name,omitempty"`
    Points    float64    `json:"points"`
    Timestamp *time.Time `json:"timestamp,omitempty"`
}

// RedisSessions persists user sessions keyed by a session id cookie.
type RedisSessions struct {
    client *redis.Client
    keyNS  string
    ttl    time.Duration
}

func NewRedisSessions(redisURL string, ttl time.Duration) (*RedisSessions, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil { return nil, err }
    if ttl <= 0 { ttl = 720 * time.Hour }
    return &RedisSessions{client: c, keyNS: "session", ttl: ttl}, nil
}

func (s *RedisSessions) key(sessionID string) string {
    return fmt.Sprintf("%s:%s:user", s.keyNS, sessionID)
}

func (s *RedisSessions) Save(ctx context.Context, sessionID string, u UserSession) error {
    m := map[string]interface{}{
        "phone":  u.Phone,
        "name":   u.Name,
        "points": u.Points,
    }
    if u.Timestamp != nil { m["timestamp"] = u.Timestamp.Format(time.RFC3339Nano) }
    k := s.key(sessionID)
    if err := s.client.HSet(ctx, k, m).Err(); err != nil { return err }
    return s.client.Expire(ctx, k, s.ttl).Err()
}

func (s *RedisSessions) Load(ctx context.Context, sessionID string) (UserSession, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
    if err != nil { return UserSession{}, false, err }
    if len(res) == 0 { return UserSession{}, false, nil }
    u := UserSession{Phone: res["phone"], Name: res["name"]}
    if v := res["points"]; v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil { u.Points = f }
    }
    if v := res["timestamp"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { u.Timestamp = &t }
    }
    return u, true, nil
}

func (s *RedisSessions) Clear(ctx context.Context, sessionID string) error {
    return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisSessions) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisSessions) Client() *redis.Client { return s.client }
