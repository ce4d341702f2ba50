package limiter

import (
    "context"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// OrderGuard serializes verification work per order id. A local in-process
// slot prevents concurrent verification of the same order, and a Redis
// cooldown throttles repeated status checks across processes.
type OrderGuard struct {
    rdb      *redis.Client
    cooldown time.Duration
    mu       sync.Mutex
    inflight map[string]chan struct{}
}

type Options struct {
    RedisURL string
    Cooldown time.Duration
}

func New(opts Options) (*OrderGuard, error) {
    if opts.Cooldown <= 0 { opts.Cooldown = 3 * time.Second }
    ro, err := redis.ParseURL(opts.RedisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(ro)
    if err := c.Ping(context.Background()).Err(); err != nil { return nil, err }
    return &OrderGuard{rdb: c, cooldown: opts.Cooldown, inflight: map[string]chan struct{}{}}, nil
}

func (g *OrderGuard) key(orderID string) string {
    return "order:cooldown:" + orderID
}

// Allow tries to reserve the single verification slot for an order.
// Returns a release function and true if reserved; otherwise nil slot,false
// meaning a verification for this order is already running.
func (g *OrderGuard) Allow(orderID string) (func(), bool) {
    g.mu.Lock()
    ch, ok := g.inflight[orderID]
    if !ok {
        ch = make(chan struct{}, 1)
        g.inflight[orderID] = ch
    }
    g.mu.Unlock()
    select {
    case ch <- struct{}{}:
        return func() { <-ch }, true
    default:
        return func(){}, false
    }
}

// InCooldown reports whether the order was checked too recently.
func (g *OrderGuard) InCooldown(ctx context.Context, orderID string) bool {
    n, err := g.rdb.Exists(ctx, g.key(orderID)).Result()
    if err != nil { return false }
    return n > 0
}

// MarkChecked starts the per-order cooldown window.
func (g *OrderGuard) MarkChecked(ctx context.Context, orderID string) {
    _ = g.rdb.Set(ctx, g.key(orderID), time.Now().Unix(), g.cooldown).Err()
}

// Forget drops any cooldown for an order, e.g. after completion.
func (g *OrderGuard) Forget(ctx context.Context, orderID string) {
    _ = g.rdb.Del(ctx, g.key(orderID)).Err()
    g.mu.Lock()
    delete(g.inflight, orderID)
    g.mu.Unlock()
}

func (g *OrderGuard) CloseClient() error { return g.rdb.Close() }
