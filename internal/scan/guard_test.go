package scan

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisGuardWindow requires a running Redis and is skipped otherwise.
func TestRedisGuardWindow(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DialTimeout: time.Second})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	prefix := "test:cooldown:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), prefix+":42|p@q.io") })
	g := NewRedisGuard(client, prefix, 200*time.Millisecond)

	seen, err := g.Seen(ctx, "42|p@q.io")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, g.Mark(ctx, "42|p@q.io"))
	seen, err = g.Seen(ctx, "42|p@q.io")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = g.Seen(ctx, "42|other@q.io")
	require.NoError(t, err)
	assert.False(t, seen, "keys are per payload")

	require.Eventually(t, func() bool {
		seen, err := g.Seen(ctx, "42|p@q.io")
		return err == nil && !seen
	}, 2*time.Second, 20*time.Millisecond)
}
