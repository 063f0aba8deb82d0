package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChainGraph(t *testing.T) {
	g := NewChainGraph()
	assert.NotNil(t, g)
	assert.Equal(t, 0, g.NodeCount())
}

func TestAddNode_MutationProtection(t *testing.T) {
	g := NewChainGraph()

	edges := []string{"a", "b"}
	g.AddNode("c", edges)
	edges[0] = "x"

	assert.Equal(t, []string{"a", "b"}, g.Edges("c"))
	assert.Nil(t, g.Edges("unknown"))
}

func TestChainValidate_Acyclic(t *testing.T) {
	g := NewChainGraph()
	g.AddNode("a", []string{"b"})
	g.AddNode("b", []string{"c"})
	g.AddNode("c", nil)

	assert.NoError(t, g.Validate())
}

func TestChainValidate_UnknownTarget(t *testing.T) {
	g := NewChainGraph()
	g.AddNode("a", []string{"ghost"})

	err := g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTarget))
}

func TestChainValidate_SelfChain(t *testing.T) {
	g := NewChainGraph()
	g.AddNode("a", []string{"a"})

	err := g.Validate()
	require.Error(t, err)

	var cerr *CycleError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"a", "a"}, cerr.Path)
	assert.True(t, errors.Is(err, ErrCycleDetected))
}

func TestChainValidate_LongCycle(t *testing.T) {
	g := NewChainGraph()
	g.AddNode("a", []string{"b"})
	g.AddNode("b", []string{"c"})
	g.AddNode("c", []string{"a"})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "->")
}

func TestChainGraphOf_SkipsExpressionsAndLoops(t *testing.T) {
	d := &Definition{
		Agents: []AgentDecl{
			{Agent: "a", Operations: []OpDecl{
				{OpType: OpChainTo, Target: Target{"b"}},
				{OpType: OpLoopTo, Target: Target{"a"}},
			}},
			{Agent: "b", Operations: []OpDecl{
				{OpType: OpChainTo, Target: Target{"$next"}},
			}},
		},
	}

	g := ChainGraphOf(d)
	assert.Equal(t, []string{"b"}, g.Edges("a"))
	assert.Empty(t, g.Edges("b"))
	assert.NoError(t, g.Validate())
}
