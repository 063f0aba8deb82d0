package expr

import (
	"context"
	"testing"
	"time"

	"github.com/aixgo-dev/synode/pkg/blackboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoards(t *testing.T, shared, private map[string]any) (*Evaluator, *blackboard.Memory) {
	t.Helper()
	ctx := context.Background()
	sb := blackboard.NewMemory()
	for k, v := range shared {
		require.NoError(t, sb.Set(ctx, k, v))
	}
	pb := blackboard.NewMemory()
	for k, v := range private {
		require.NoError(t, pb.Set(ctx, k, v))
	}
	return New(sb), pb
}

func TestEval_WholeExpressionIsTyped(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{"a": map[string]any{"b": 5}}, nil)

	got, err := ev.Eval(context.Background(), "$a.b", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	got, err = ev.Eval(context.Background(), "($a.b)", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestEval_EmbeddedIsStringified(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{"a": map[string]any{"b": 5}}, nil)

	got, err := ev.Eval(context.Background(), "prefix-($a.b)-suffix", nil)
	require.NoError(t, err)
	assert.Equal(t, "prefix-5-suffix", got)
}

func TestEval_MultipleSpans(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{"x": "left", "y": 2.5}, nil)

	got, err := ev.Eval(context.Background(), "($x)/($y)", nil)
	require.NoError(t, err)
	assert.Equal(t, "left/2.5", got)
}

func TestEval_NestedResolvesInnermostFirst(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{
		"a":     map[string]any{"b": 5, "c": 7},
		"other": "c",
		"which": "other",
	}, nil)
	ctx := context.Background()

	got, err := ev.Eval(ctx, "($a.($other))", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	got, err = ev.Eval(ctx, "($a.($($which)))", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	got, err = ev.Eval(ctx, "v=($a.($other))!", nil)
	require.NoError(t, err)
	assert.Equal(t, "v=7!", got)
}

func TestEval_SubstitutedTextIsNotRescanned(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{
		"p": "($p)",
		"a": map[string]any{"k": 1},
	}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := ev.Eval(context.Background(), "($a.($p))", nil)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLookup)
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation did not finish")
	}

	got, err := ev.Eval(context.Background(), "say ($p)", nil)
	require.NoError(t, err)
	assert.Equal(t, "say ($p)", got)
}

func TestEval_NestedMappingSuppressesSubstitution(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{
		"a":   map[string]any{"b": 1},
		"obj": map[string]any{"k": "v"},
	}, nil)

	got, err := ev.Eval(context.Background(), "($a.($obj))", nil)
	require.NoError(t, err)
	assert.Equal(t, "($a.($obj))", got)
}

func TestEval_StructuredWholeExpression(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{"items": []any{1, 2, 3}}, nil)

	got, err := ev.Eval(context.Background(), "$items", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, got)
}

func TestEval_PrivateWins(t *testing.T) {
	ev, priv := newBoards(t,
		map[string]any{"k": "shared", "_p": "shared"},
		map[string]any{"_p": "private"})
	ctx := context.Background()

	got, err := ev.Eval(ctx, "$_p", priv)
	require.NoError(t, err)
	assert.Equal(t, "private", got)

	got, err = ev.Eval(ctx, "$k", priv)
	require.NoError(t, err)
	assert.Equal(t, "shared", got)
}

func TestEval_Input(t *testing.T) {
	ev, _ := newBoards(t, nil, nil)

	got, err := ev.EvalInput(context.Background(), "$__input.n", nil, map[string]any{"n": 3})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestEval_LiteralWithoutSpans(t *testing.T) {
	ev, _ := newBoards(t, nil, nil)

	got, err := ev.Eval(context.Background(), "writer::draft (v2)", nil)
	require.NoError(t, err)
	assert.Equal(t, "writer::draft (v2)", got)
}

func TestEval_LookupError(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{"a": nil}, nil)
	ctx := context.Background()

	_, err := ev.Eval(ctx, "$missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookup)

	var lerr *LookupError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "missing", lerr.Path)

	_, err = ev.Eval(ctx, "$a", nil)
	assert.ErrorIs(t, err, ErrLookup)
}

func TestEval_GJSONQueries(t *testing.T) {
	ev, _ := newBoards(t, map[string]any{
		"people": []any{
			map[string]any{"name": "ann", "age": 40},
			map[string]any{"name": "bo", "age": 20},
		},
	}, nil)
	ctx := context.Background()

	got, err := ev.Eval(ctx, "$people.#", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	got, err = ev.Eval(ctx, `($people.#(age>30).name)`, nil)
	require.NoError(t, err)
	assert.Equal(t, "ann", got)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "5", Stringify(5.0))
	assert.Equal(t, "2.5", Stringify(2.5))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
	assert.Equal(t, "[1,2]", Stringify([]any{1, 2}))
	assert.Equal(t, "null", Stringify(nil))
}

func TestTruthy(t *testing.T) {
	assert.True(t, Truthy(true))
	assert.True(t, Truthy("`true`"))
	assert.True(t, Truthy("yes"))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy([]any{0}))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy("false"))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0.0))
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy([]any{}))
}

func TestQuery(t *testing.T) {
	got, err := Query(map[string]any{"a": []any{"x", "y"}}, "a.1")
	require.NoError(t, err)
	assert.Equal(t, "y", got)
}
