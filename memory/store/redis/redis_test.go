package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory/store/redis"
)

func newStore(t *testing.T) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := redis.Dial(context.Background(), &redis.Config{Addr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestSaveLoad(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	state := core.NewConversationState("u1", "c1")
	state.Identity["name"] = "parv gaur"
	state.Facts["exam_date"] = "monday"
	require.NoError(t, s.Save(ctx, "u1", "c1", state))

	assert.True(t, mr.Exists("test:2:u1:c1"))

	got, err := s.Load(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "parv gaur", got.Identity["name"])
	assert.Equal(t, "monday", got.Facts["exam_date"])
}

func TestLoad_MissingAndCorrupt(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	got, err := s.Load(ctx, "u1", "missing")
	require.NoError(t, err)
	assert.Empty(t, got.Identity)
	assert.Equal(t, "missing", got.ConversationID)

	require.NoError(t, mr.Set("test:2:u1:bad", "{{{"))
	got, err = s.Load(ctx, "u1", "bad")
	require.NoError(t, err)
	assert.Empty(t, got.Identity)
}

func TestLoad_ServerDownReturnsDefault(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	got, err := s.Load(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.NotNil(t, got.Identity)
}

func TestDelete(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "u1", "c1", core.NewConversationState("u1", "c1")))
	require.NoError(t, s.Delete(ctx, "u1", "c1"))
	assert.False(t, mr.Exists("test:2:u1:c1"))
	require.NoError(t, s.Delete(ctx, "u1", "c1"))
}

func TestInvalidIDs(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Load(context.Background(), "", "c1")
	require.ErrorIs(t, err, core.ErrInvalidID)
}

func TestDial_Unreachable(t *testing.T) {
	_, err := redis.Dial(context.Background(), &redis.Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestNew_WrapsClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := redis.New(rdb, "")
	defer s.Close()

	assert.Equal(t, redis.DefaultKeyPrefix+":1:u:c", s.Key("u", "c"))
}

func TestKeys_DoNotCollide(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	state := core.NewConversationState("a:b", "c")
	state.Identity["name"] = "secret"
	require.NoError(t, s.Save(ctx, "a:b", "c", state))

	got, err := s.Load(ctx, "a", "b:c")
	require.NoError(t, err)
	assert.Empty(t, got.Identity)
	assert.NotEqual(t, s.Key("a:b", "c"), s.Key("a", "b:c"))
}
