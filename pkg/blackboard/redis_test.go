package blackboard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	board := NewRedisFromClient(client, "test:")
	t.Cleanup(func() { _ = board.Close() })

	return mr, board
}

func TestRedis_SetGetScalar(t *testing.T) {
	_, b := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", "v"))
	require.NoError(t, b.Set(ctx, "k", "w"))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "w", got)

	missing, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedis_KeepsNumberTypes(t *testing.T) {
	_, b := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "n", 5))
	require.NoError(t, b.Set(ctx, "f", 2.5))
	require.NoError(t, b.Set(ctx, "nested", map[string]any{"xs": []any{1, 2.5, "3"}}))

	n, err := b.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	f, _ := b.Get(ctx, "f")
	assert.Equal(t, 2.5, f)

	nested, _ := b.Get(ctx, "nested")
	assert.Equal(t, map[string]any{"xs": []any{1, 2.5, "3"}}, nested)
}

func TestRedis_ListMerges(t *testing.T) {
	_, b := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, b.Seed(ctx, "k", List{}))
	for _, v := range []any{[]any{1}, []any{2}} {
		require.NoError(t, b.Set(ctx, "k", v))
	}

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, got)
}

func TestRedis_QueueEnqueuesItems(t *testing.T) {
	_, b := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, b.Seed(ctx, "q", Queue{}))
	require.NoError(t, b.Set(ctx, "q", []any{1, 2}))
	require.NoError(t, b.Set(ctx, "q", "x"))

	got, _ := b.Get(ctx, "q")
	assert.Equal(t, []any{1, 2, "x"}, got)
}

func TestRedis_SeedKeepsExisting(t *testing.T) {
	_, b := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", "first"))
	require.NoError(t, b.Seed(ctx, "k", "second"))

	got, _ := b.Get(ctx, "k")
	assert.Equal(t, "first", got)
}

func TestRedis_DictAndSnapshot(t *testing.T) {
	_, b := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, b.Seed(ctx, "d", Dict{"a": "x"}))
	require.NoError(t, b.Set(ctx, "d", map[string]any{"b": "y"}))

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindDict, snap["d"].Kind)

	dump, err := b.Dump(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "x", "b": "y"}, dump["d"])

	require.NoError(t, b.Set(ctx, "d", 7))
	got, _ := b.Get(ctx, "d")
	assert.Equal(t, 7, got)
}

func TestRedis_KeysRemoveClear(t *testing.T) {
	mr, b := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "b", 1))
	require.NoError(t, b.Set(ctx, "a", 2))

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, b.Remove(ctx, "a"))
	has, err := b.Has(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, b.Clear(ctx))
	assert.False(t, mr.Exists("test:entries"))
}

func TestRedis_Closed(t *testing.T) {
	_, b := setupMiniredis(t)
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Set(context.Background(), "k", 1), ErrClosed)
}
