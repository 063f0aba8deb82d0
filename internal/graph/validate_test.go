package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() *Definition {
	return &Definition{
		Name:     "demo",
		Triggers: []string{"main"},
		Operators: []OperatorDecl{
			{Alias: "writer", Kind: KindBot},
			{Alias: "sub", Kind: KindSynod, Path: "teams.review"},
		},
		Agents: []AgentDecl{
			{Agent: "main", Operator: "writer::draft", Operations: []OpDecl{
				{OpType: OpLoopTo, Target: Target{"main"}, Kwargs: map[string]any{"max_cycles": 2}},
				{OpType: OpReduce, Target: Target{"review"}, Kwargs: map[string]any{"accumulator": 0}},
				{OpType: OpForkTo, Target: Target{"main", "review"}},
			}},
			{Agent: "review", Operator: "sub"},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(validDefinition()))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Definition)
		reason string
	}{
		{"duplicate alias", func(d *Definition) { d.Operators[1].Alias = "writer" }, "duplicate alias"},
		{"unknown kind", func(d *Definition) { d.Operators[0].Kind = "robot" }, "unknown operator_type"},
		{"synod without path", func(d *Definition) { d.Operators[1].Path = "" }, "requires a path"},
		{"duplicate agent", func(d *Definition) { d.Agents[1].Agent = "main" }, "duplicate agent"},
		{"unknown operator", func(d *Definition) { d.Agents[0].Operator = "ghost" }, "unknown operator"},
		{"loop without max_cycles", func(d *Definition) { d.Agents[0].Operations[0].Kwargs = nil }, "max_cycles"},
		{"reduce without accumulator", func(d *Definition) { d.Agents[0].Operations[1].Kwargs = nil }, "accumulator"},
		{"unknown target", func(d *Definition) { d.Agents[0].Operations[0].Target = Target{"ghost"} }, "not a declared agent"},
		{"unknown op", func(d *Definition) { d.Agents[0].Operations[0].OpType = "JUMP" }, "unknown op_type"},
		{"unknown trigger", func(d *Definition) { d.Triggers = []string{"ghost"} }, "trigger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDefinition()
			tt.mutate(d)

			err := Validate(d)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDefinition))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestValidate_ExpressionsDeferred(t *testing.T) {
	d := validDefinition()
	d.Agents[0].Operator = "$picked"
	d.Agents[0].Operations[0].Target = Target{"($next)"}

	assert.NoError(t, Validate(d))
}

func TestSplitOperator(t *testing.T) {
	alias, handler := SplitOperator("writer::draft")
	assert.Equal(t, "writer", alias)
	assert.Equal(t, "draft", handler)

	alias, handler = SplitOperator("writer")
	assert.Equal(t, "writer", alias)
	assert.Empty(t, handler)
}

func TestAgentRunsAsync(t *testing.T) {
	d := &Definition{RunAsync: true}
	off := false

	assert.True(t, d.AgentRunsAsync(&AgentDecl{}))
	assert.False(t, d.AgentRunsAsync(&AgentDecl{RunAsync: &off}))
}

func TestTimeoutDuration(t *testing.T) {
	assert.Equal(t, DefaultTimeout, (&AgentDecl{}).TimeoutDuration())
	assert.Equal(t, "1.5s", (&AgentDecl{Timeout: 1.5}).TimeoutDuration().String())
}
