// Package graph holds the validated, immutable description of an agent graph.
package graph

import (
	"strings"
	"time"
)

// OperatorKind is the closed set of capability kinds an operator can bind.
type OperatorKind string

const (
	KindBot   OperatorKind = "bot"
	KindHydra OperatorKind = "hydra"
	KindSynod OperatorKind = "synod"
	KindBasic OperatorKind = "basic"
	KindArgus OperatorKind = "argus"
)

// Valid reports whether k is one of the known kinds.
func (k OperatorKind) Valid() bool {
	switch k {
	case KindBot, KindHydra, KindSynod, KindBasic, KindArgus:
		return true
	}
	return false
}

// OpType names a control operation applied to an agent's result.
type OpType string

const (
	OpChainTo OpType = "CHAIN_TO"
	OpLoopTo  OpType = "LOOP_TO"
	OpForkTo  OpType = "FORK_TO"
	OpMap     OpType = "MAP"
	OpFilter  OpType = "FILTER"
	OpReduce  OpType = "REDUCE"
)

// Valid reports whether t is one of the known operation types.
func (t OpType) Valid() bool {
	switch t {
	case OpChainTo, OpLoopTo, OpForkTo, OpMap, OpFilter, OpReduce:
		return true
	}
	return false
}

// DefaultTimeout applies to agents that do not declare one.
const DefaultTimeout = 30 * time.Second

// DefaultTrigger is the agent launched when no trigger is named.
const DefaultTrigger = "main"

// HandlerSpec configures one named handler of an operator.
type HandlerSpec struct {
	Kwargs map[string]any `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`
}

// OperatorDecl declares an external capability bound under Alias.
type OperatorDecl struct {
	Alias    string         `yaml:"alias" json:"alias"`
	Kind     OperatorKind   `yaml:"operator_type" json:"operator_type"`
	Path     string         `yaml:"path,omitempty" json:"path,omitempty"`
	Handlers Handlers       `yaml:"handlers,omitempty" json:"handlers,omitempty"`
	Kwargs   map[string]any `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`
}

// AgentDecl declares one node of the graph.
type AgentDecl struct {
	Agent        string   `yaml:"agent" json:"agent"`
	Operator     string   `yaml:"operator" json:"operator"`
	Instructions string   `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	Timeout      float64  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Before       string   `yaml:"before,omitempty" json:"before,omitempty"`
	After        string   `yaml:"after,omitempty" json:"after,omitempty"`
	StoreKey     string   `yaml:"store_key,omitempty" json:"store_key,omitempty"`
	DefaultValue Value    `yaml:"default_value,omitempty" json:"default_value,omitempty"`
	RunAsync     *bool    `yaml:"run_async,omitempty" json:"run_async,omitempty"`
	Operations   []OpDecl `yaml:"operations,omitempty" json:"operations,omitempty"`
}

// TimeoutDuration returns the declared timeout, or DefaultTimeout.
func (a *AgentDecl) TimeoutDuration() time.Duration {
	if a.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(a.Timeout * float64(time.Second))
}

// OpDecl declares one operation in an agent's operation list.
type OpDecl struct {
	OpType       OpType         `yaml:"op_type" json:"op_type"`
	Target       Target         `yaml:"target" json:"target"`
	Before       string         `yaml:"before,omitempty" json:"before,omitempty"`
	After        string         `yaml:"after,omitempty" json:"after,omitempty"`
	StoreKey     string         `yaml:"store_key,omitempty" json:"store_key,omitempty"`
	DefaultValue Value          `yaml:"default_value,omitempty" json:"default_value,omitempty"`
	Kwargs       map[string]any `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`
}

// Definition is a whole agent graph.
type Definition struct {
	Name         string           `yaml:"name" json:"name"`
	Description  string           `yaml:"description,omitempty" json:"description,omitempty"`
	Instructions string           `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	Triggers     []string         `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Persistent   bool             `yaml:"persistent,omitempty" json:"persistent,omitempty"`
	RunAsync     bool             `yaml:"run_async,omitempty" json:"run_async,omitempty"`
	Daemon       bool             `yaml:"daemon,omitempty" json:"daemon,omitempty"`
	Blackboard   map[string]Value `yaml:"blackboard,omitempty" json:"blackboard,omitempty"`
	Operators    []OperatorDecl   `yaml:"operators,omitempty" json:"operators,omitempty"`
	Agents       []AgentDecl      `yaml:"synode,omitempty" json:"synode,omitempty"`
}

// Agent returns the declaration named name.
func (d *Definition) Agent(name string) (*AgentDecl, bool) {
	for i := range d.Agents {
		if d.Agents[i].Agent == name {
			return &d.Agents[i], true
		}
	}
	return nil, false
}

// Operator returns the operator declared under alias.
func (d *Definition) Operator(alias string) (*OperatorDecl, bool) {
	for i := range d.Operators {
		if d.Operators[i].Alias == alias {
			return &d.Operators[i], true
		}
	}
	return nil, false
}

// AgentRunsAsync reports whether a's dispatch goes through the remote queue.
// Agents without their own setting inherit the graph's.
func (d *Definition) AgentRunsAsync(a *AgentDecl) bool {
	if a.RunAsync != nil {
		return *a.RunAsync
	}
	return d.RunAsync
}

// Seed is one blackboard key declared with a default value.
type Seed struct {
	Key   string
	Value any
}

// Seeds lists the store keys declared with defaults, graph-level blackboard
// entries first, in declaration order.
func (d *Definition) Seeds() []Seed {
	var out []Seed
	for _, k := range sortedKeys(d.Blackboard) {
		out = append(out, Seed{Key: k, Value: d.Blackboard[k].Fresh()})
	}
	for _, a := range d.Agents {
		if a.StoreKey != "" && a.DefaultValue.Present {
			out = append(out, Seed{Key: a.StoreKey, Value: a.DefaultValue.Fresh()})
		}
		for _, op := range a.Operations {
			if op.StoreKey != "" && op.DefaultValue.Present {
				out = append(out, Seed{Key: op.StoreKey, Value: op.DefaultValue.Fresh()})
			}
		}
	}
	return out
}

// SplitOperator splits "alias::handler" into its parts.
func SplitOperator(ref string) (alias, handler string) {
	alias, handler, _ = strings.Cut(ref, "::")
	return strings.TrimSpace(alias), strings.TrimSpace(handler)
}

// IsExpression reports whether s contains interpolation syntax.
func IsExpression(s string) bool {
	return strings.HasPrefix(s, "$") || strings.Contains(s, "($")
}
