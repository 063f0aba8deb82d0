package blackboard

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Set(ctx, "k", "v"))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	missing, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemory_ScalarReplaces(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Seed(ctx, "k", 0))
	require.NoError(t, b.Set(ctx, "k", 1))
	require.NoError(t, b.Set(ctx, "k", 2))

	got, _ := b.Get(ctx, "k")
	assert.Equal(t, 2, got)
}

func TestMemory_PlainSliceReplaces(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Set(ctx, "k", []any{1}))
	require.NoError(t, b.Set(ctx, "k", []any{2}))

	got, _ := b.Get(ctx, "k")
	assert.Equal(t, []any{2}, got)
}

func TestMemory_MergeOnWrite(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		seed   any
		writes []any
		want   any
	}{
		{"list extends", List{}, []any{[]any{1}, []any{2}}, []any{1, 2}},
		{"list appends scalar", List{}, []any{1, "x"}, []any{1, "x"}},
		{"set dedupes", Set{}, []any{[]any{1, 2}, 2, 3}, []any{1, 2, 3}},
		{"queue enqueues items", Queue{}, []any{[]any{1, 2}, 3}, []any{1, 2, 3}},
		{"dict updates", Dict{"a": 1}, []any{map[string]any{"b": 2}, map[string]any{"a": 3}}, map[string]any{"a": 3, "b": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewMemory()
			require.NoError(t, b.Seed(ctx, "k", tt.seed))
			for _, w := range tt.writes {
				require.NoError(t, b.Set(ctx, "k", w))
			}
			got, err := b.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemory_DictReplacedByNonMapping(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	require.NoError(t, b.Seed(ctx, "d", Dict{"a": 1}))

	require.NoError(t, b.Set(ctx, "d", "scalar"))
	got, err := b.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "scalar", got)

	// the key is a scalar now, so the next write replaces again
	require.NoError(t, b.Set(ctx, "d", map[string]any{"b": 2}))
	got, _ = b.Get(ctx, "d")
	assert.Equal(t, map[string]any{"b": 2}, got)
}

func TestMemory_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Seed(ctx, "k", List{}))
	require.NoError(t, b.Set(ctx, "k", 1))
	require.NoError(t, b.Seed(ctx, "k", List{}))

	got, _ := b.Get(ctx, "k")
	assert.Equal(t, []any{1}, got)
	assert.Equal(t, KindList, b.KindOf("k"))
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	require.NoError(t, b.Seed(ctx, "k", List{1}))

	got, _ := b.Get(ctx, "k")
	got.([]any)[0] = 99

	again, _ := b.Get(ctx, "k")
	assert.Equal(t, []any{1}, again)
}

func TestMemory_KeysRemoveClear(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	require.NoError(t, b.Set(ctx, "b", 1))
	require.NoError(t, b.Set(ctx, "a", 2))

	keys, _ := b.Keys(ctx)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, b.Remove(ctx, "a"))
	has, _ := b.Has(ctx, "a")
	assert.False(t, has)

	require.NoError(t, b.Clear(ctx))
	dump, _ := b.Dump(ctx)
	assert.Empty(t, dump)
}

func TestMemory_DumpNormalizesContainers(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	require.NoError(t, b.Seed(ctx, "l", List{1}))
	require.NoError(t, b.Seed(ctx, "d", Dict{"x": 1}))
	require.NoError(t, b.Set(ctx, "s", "str"))

	dump, err := b.Dump(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"l": []any{1},
		"d": map[string]any{"x": 1},
		"s": "str",
	}, dump)
}

func TestSnapshot_RoundTripKeepsKinds(t *testing.T) {
	ctx := context.Background()
	src := NewMemory()
	require.NoError(t, src.Seed(ctx, "l", List{1}))
	require.NoError(t, src.Set(ctx, "s", 1))

	snap, err := src.Snapshot(ctx)
	require.NoError(t, err)

	dst := FromSnapshot(snap)
	require.NoError(t, dst.Set(ctx, "l", 2))
	require.NoError(t, dst.Set(ctx, "s", 2))

	l, _ := dst.Get(ctx, "l")
	s, _ := dst.Get(ctx, "s")
	assert.Equal(t, []any{1, 2}, l)
	assert.Equal(t, 2, s)
}

func TestMemory_ConcurrentListWrites(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	require.NoError(t, b.Seed(ctx, "k", List{}))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Set(ctx, "k", fmt.Sprint(i))
		}()
	}
	wg.Wait()

	got, _ := b.Get(ctx, "k")
	assert.Len(t, got, 50)
}

func TestToSlice(t *testing.T) {
	s, ok := ToSlice([]int{1, 2})
	require.True(t, ok)
	assert.Equal(t, []any{1, 2}, s)

	_, ok = ToSlice("abc")
	assert.False(t, ok)

	_, ok = ToSlice(map[string]any{})
	assert.False(t, ok)
}

func TestIsPrivate(t *testing.T) {
	assert.True(t, IsPrivate("_scratch"))
	assert.False(t, IsPrivate("scratch"))
}
