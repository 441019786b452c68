package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stats struct {
	Count int `json:"count"`
}

func newTestCache(t *testing.T) *Versioned {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "dashboard", time.Minute)
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return stats{Count: calls}, nil
	}

	key, err := c.BuildKey(ctx, 7, "stats")
	require.NoError(t, err)
	assert.Equal(t, "dashboard:7:stats:v1", key)

	var first, second stats
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, 1, second.Count)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Bump(ctx, 7))
	key, err = c.BuildKey(ctx, 7, "stats")
	require.NoError(t, err)
	assert.Equal(t, "dashboard:7:stats:v2", key)

	var third stats
	require.NoError(t, c.FetchJSON(ctx, key, &third, loader))
	assert.Equal(t, 2, third.Count)
}

func TestBumpIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Bump(ctx, 1))
	v1, err := c.Version(ctx, 1)
	require.NoError(t, err)
	v2, err := c.Version(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(1), v1, "Incr on a missing key starts from zero")
	assert.Equal(t, int64(1), v2)
}

func TestFetchJSONWithoutClient(t *testing.T) {
	var c *Versioned
	var out stats
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return stats{Count: 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)

	err = c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}
