package graph

import (
	"encoding/json"
	"testing"

	"github.com/aixgo-dev/synode/pkg/blackboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValue_Tags(t *testing.T) {
	src := `
fresh_list: !val list
fresh_dict: !val dict
acc_list: !ref list
acc_set: !ref set
acc_dict: !ref dict
acc_queue: !ref queue
seeded: !ref [a, b]
plain: [1, 2]
nested: {inner: !ref list}
count: 3
`
	var got map[string]Value
	require.NoError(t, yaml.Unmarshal([]byte(src), &got))

	assert.Equal(t, []any{}, got["fresh_list"].Data)
	assert.Equal(t, map[string]any{}, got["fresh_dict"].Data)
	assert.Equal(t, blackboard.List{}, got["acc_list"].Data)
	assert.Equal(t, blackboard.Set{}, got["acc_set"].Data)
	assert.Equal(t, blackboard.Dict{}, got["acc_dict"].Data)
	assert.Equal(t, blackboard.Queue{}, got["acc_queue"].Data)
	assert.Equal(t, blackboard.List{"a", "b"}, got["seeded"].Data)
	assert.Equal(t, []any{1, 2}, got["plain"].Data)
	assert.Equal(t, map[string]any{"inner": blackboard.List{}}, got["nested"].Data)
	assert.Equal(t, 3, got["count"].Data)
	assert.True(t, got["count"].Present)
}

func TestValue_UnknownContainer(t *testing.T) {
	var v Value
	err := yaml.Unmarshal([]byte(`!ref heap`), &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heap")
}

func TestValue_FreshIsCopy(t *testing.T) {
	v := NewValue(blackboard.List{1})
	a := v.Fresh().(blackboard.List)
	a[0] = 2
	assert.Equal(t, blackboard.List{1}, v.Data)
}

func TestValue_JSONKeepsKind(t *testing.T) {
	b, err := json.Marshal(NewValue(blackboard.List{"x"}))
	require.NoError(t, err)

	var v Value
	require.NoError(t, json.Unmarshal(b, &v))
	assert.Equal(t, blackboard.List{"x"}, v.Data)
}

func TestTarget_ScalarOrList(t *testing.T) {
	var one, many Target
	require.NoError(t, yaml.Unmarshal([]byte(`agent_a`), &one))
	require.NoError(t, yaml.Unmarshal([]byte(`[a, b]`), &many))
	assert.Equal(t, Target{"agent_a"}, one)
	assert.Equal(t, Target{"a", "b"}, many)

	var fromJSON Target
	require.NoError(t, json.Unmarshal([]byte(`"x"`), &fromJSON))
	assert.Equal(t, Target{"x"}, fromJSON)
}

func TestSeeds_Order(t *testing.T) {
	d := &Definition{
		Blackboard: map[string]Value{"z": NewValue(1), "a": NewValue(2)},
		Agents: []AgentDecl{
			{Agent: "m", StoreKey: "out", DefaultValue: NewValue(blackboard.List{}),
				Operations: []OpDecl{{StoreKey: "_tmp", DefaultValue: NewValue("x")}, {StoreKey: "nodefault"}}},
		},
	}

	seeds := d.Seeds()
	keys := make([]string, len(seeds))
	for i, s := range seeds {
		keys[i] = s.Key
	}
	assert.Equal(t, []string{"a", "z", "out", "_tmp"}, keys)
}

func TestHandlers_ListOrMap(t *testing.T) {
	var decl OperatorDecl
	require.NoError(t, yaml.Unmarshal([]byte("alias: h\noperator_type: hydra\nhandlers: [critic, poet]\n"), &decl))
	assert.Equal(t, Handlers{"critic": {}, "poet": {}}, decl.Handlers)

	require.NoError(t, yaml.Unmarshal([]byte("handlers:\n  critic:\n    kwargs: {system_prompt: x}\n"), &decl))
	assert.Equal(t, "x", decl.Handlers["critic"].Kwargs["system_prompt"])
}

func TestOpType_CaseInsensitive(t *testing.T) {
	var op OpDecl
	require.NoError(t, yaml.Unmarshal([]byte("op_type: chain_to\ntarget: next\n"), &op))
	assert.Equal(t, OpChainTo, op.OpType)
	assert.Equal(t, Target{"next"}, op.Target)
}
