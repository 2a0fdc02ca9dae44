package history

import (
	"context"
	"testing"

	"github.com/BaSui01/naya/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisStore_Conformance(t *testing.T) {
	_, client := newTestRedis(t)
	testStoreConformance(t, NewRedisStore(client, "naya:", zap.NewNop(), WithOwnedClient()))
}

func TestRedisStore_KeysAndSequence(t *testing.T) {
	mr, client := newTestRedis(t)
	defer client.Close()
	s := NewRedisStore(client, "test:", nil)
	ctx := context.Background()

	_, err := s.Save(ctx, Record{Role: types.RoleUser, Content: "a"})
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	rec, err := s.Save(ctx, Record{Role: types.RoleUser, Content: "b"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), rec.ID, "sequence survives clear")
	assert.True(t, mr.Exists("test:chat_history"))
	seq, err := mr.Get("test:chat_history:seq")
	require.NoError(t, err)
	assert.Equal(t, "2", seq)
}

func TestRedisStore_MaxEntries(t *testing.T) {
	_, client := newTestRedis(t)
	defer client.Close()
	s := NewRedisStore(client, "", nil, WithMaxEntries(3))
	ctx := context.Background()

	for _, c := range []string{"1", "2", "3", "4", "5"} {
		_, err := s.Save(ctx, Record{Role: types.RoleUser, Content: c})
		require.NoError(t, err)
	}

	got, err := s.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].Content)
	assert.Equal(t, "5", got[2].Content)
}

func TestRedisStore_SkipsUndecodableEntries(t *testing.T) {
	mr, client := newTestRedis(t)
	defer client.Close()
	s := NewRedisStore(client, "", nil)
	ctx := context.Background()

	_, err := s.Save(ctx, Record{Role: types.RoleUser, Content: "ok"})
	require.NoError(t, err)
	_, err = mr.Push("chat_history", "{broken")
	require.NoError(t, err)

	got, err := s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Content)
}

func TestRedisStore_ServerDown(t *testing.T) {
	mr, client := newTestRedis(t)
	defer client.Close()
	s := NewRedisStore(client, "", nil)
	mr.Close()

	_, err := s.Save(context.Background(), Record{Role: types.RoleUser, Content: "x"})
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}
