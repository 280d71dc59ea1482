package scan

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard remembers recently handled texts so a code still in front of the
// camera after a resolution is not handled again.
type Guard interface {
	Seen(ctx context.Context, text string) (bool, error)
	Mark(ctx context.Context, text string) error
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryGuard creates a guard suppressing repeats within window.
func NewMemoryGuard(window time.Duration) *MemoryGuard {
	return &MemoryGuard{window: window, now: time.Now, seen: make(map[string]time.Time)}
}

func (g *MemoryGuard) Seen(_ context.Context, text string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.seen[text]
	if !ok {
		return false, nil
	}
	if g.now().Sub(at) >= g.window {
		delete(g.seen, text)
		return false, nil
	}
	return true, nil
}

func (g *MemoryGuard) Mark(_ context.Context, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for k, at := range g.seen {
		if now.Sub(at) >= g.window {
			delete(g.seen, k)
		}
	}
	g.seen[text] = now
	return nil
}

// RedisGuard shares the cooldown between kiosks through expiring keys.
type RedisGuard struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisGuard creates a guard storing keys under prefix.
func NewRedisGuard(client *redis.Client, prefix string, window time.Duration) *RedisGuard {
	if prefix == "" {
		prefix = "attendance:cooldown"
	}
	return &RedisGuard{client: client, prefix: prefix, window: window}
}

func (g *RedisGuard) Seen(ctx context.Context, text string) (bool, error) {
	n, err := g.client.Exists(ctx, g.prefix+":"+text).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisGuard) Mark(ctx context.Context, text string) error {
	return g.client.Set(ctx, g.prefix+":"+text, 1, g.window).Err()
}
