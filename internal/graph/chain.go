package graph

import (
	"fmt"
	"sort"
	"sync"
)

// Node is an agent together with the agents it statically chains to.
type Node struct {
	Name  string
	Edges []string
}

// ChainGraph is the directed graph of static CHAIN_TO edges. Chains are not
// bounded at run time, so a cycle here is a graph that can recurse forever.
type ChainGraph struct {
	nodes map[string]*Node
	mu    sync.RWMutex
}

// NewChainGraph creates a new empty graph.
func NewChainGraph() *ChainGraph {
	return &ChainGraph{
		nodes: make(map[string]*Node),
	}
}

// ChainGraphOf builds the chain graph of d. Expression targets are skipped.
func ChainGraphOf(d *Definition) *ChainGraph {
	g := NewChainGraph()
	for _, a := range d.Agents {
		var edges []string
		for _, op := range a.Operations {
			if op.OpType != OpChainTo {
				continue
			}
			for _, t := range op.Target {
				if !IsExpression(t) {
					edges = append(edges, t)
				}
			}
		}
		g.AddNode(a.Agent, edges)
	}
	return g
}

// AddNode adds an agent with its chain targets.
func (g *ChainGraph) AddNode(name string, edges []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cp := make([]string, len(edges))
	copy(cp, edges)

	g.nodes[name] = &Node{
		Name:  name,
		Edges: cp,
	}
}

// Validate checks the graph for unknown targets and cycles.
func (g *ChainGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.nodes))
	for name, node := range g.nodes {
		names = append(names, name)
		for _, t := range node.Edges {
			if _, exists := g.nodes[t]; !exists {
				return fmt.Errorf("%w: agent %q chains to %q", ErrUnknownTarget, name, t)
			}
		}
	}
	sort.Strings(names)

	// 0=unvisited, 1=on stack, 2=done
	colors := make(map[string]int)
	var stack []string

	var dfs func(name string) error
	dfs = func(name string) error {
		switch colors[name] {
		case 1:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			path := append(append([]string{}, stack[start:]...), name)
			return &CycleError{Path: path}
		case 2:
			return nil
		}

		colors[name] = 1
		stack = append(stack, name)
		for _, t := range g.nodes[name].Edges {
			if err := dfs(t); err != nil {
				return err
			}
		}
		colors[name] = 2
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, name := range names {
		if colors[name] == 0 {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// NodeCount returns the number of agents in the graph.
func (g *ChainGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Edges returns a copy of the chain targets of name, or nil if unknown.
func (g *ChainGraph) Edges(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[name]
	if !exists {
		return nil
	}
	out := make([]string, len(node.Edges))
	copy(out, node.Edges)
	return out
}
