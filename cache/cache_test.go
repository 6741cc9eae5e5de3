package cache

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheSetTake(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, WithKeyPrefix("site:"))
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "bridge:handoff:abc", []byte(`{"userId":"1"}`), time.Minute))
	assert.True(t, mr.Exists("site:bridge:handoff:abc"))
	assert.Equal(t, time.Minute, mr.TTL("site:bridge:handoff:abc"))

	value, ok, err := c.Take(ctx, "bridge:handoff:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"userId":"1"}`, string(value))

	_, ok, err = c.Take(ctx, "bridge:handoff:abc")
	require.NoError(t, err)
	assert.False(t, ok, "values are single use")

	assert.Error(t, c.Set(ctx, "k", []byte("v"), 0))
}

func TestRedisCacheExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Take(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDialRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()

	c, err := DialRedis(context.Background(), bridge.RedisConfig{Addr: addr, Prefix: "p:"})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("p:k"))

	mr.Close()
	_, err = DialRedis(context.Background(), bridge.RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestRedisCacheWithLocaleHandoff(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	handoff := bridge.NewLocaleHandoff(c, bridge.Locales{"en": {}, "fr": {Prefix: "/fr"}})
	ctx := context.Background()

	sess := bridge.NewSession()
	sess.Login(&bridge.User{ID: uuid.New()}, "okta", time.Now())
	require.True(t, handoff.Stage(sess, "en", "fr", ""))

	target, ok, err := handoff.Finalize(ctx, sess)
	require.NoError(t, err)
	require.True(t, ok)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "/fr/", parsed.Path)
	token := parsed.Query().Get(bridge.QueryHandoffToken)
	require.NotEmpty(t, token)

	resumed, err := handoff.Resume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, resumed.UserID)

	_, err = handoff.Resume(ctx, token)
	assert.ErrorIs(t, err, bridge.ErrHandoffInvalid)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	value := []byte("payload")
	require.NoError(t, c.Set(ctx, "a", value, time.Minute))
	value[0] = 'X'

	got, ok, err := c.Take(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(got))

	_, ok, err = c.Take(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "b", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("v"), time.Hour))
	now = now.Add(2 * time.Minute)

	_, ok, err = c.Take(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "d", []byte("v"), time.Second))
	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Sweep())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = c.Take(cancelled, "c")
	assert.ErrorIs(t, err, context.Canceled)
}
