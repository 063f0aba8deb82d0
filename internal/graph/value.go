package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aixgo-dev/synode/pkg/blackboard"
	"gopkg.in/yaml.v3"
)

// Tags recognised on default values.
const (
	// TagVal declares a fresh container that is replaced on every write.
	TagVal = "!val"
	// TagRef declares an accumulating container that merges writes.
	TagRef = "!ref"
)

// Value is a declared default. Accumulating defaults hold blackboard
// container types; everything else is plain data.
type Value struct {
	Data    any
	Present bool
}

// NewValue wraps data as a present default.
func NewValue(data any) Value {
	return Value{Data: data, Present: true}
}

// IsZero lets yaml omit absent defaults.
func (v Value) IsZero() bool {
	return !v.Present
}

// Fresh returns a copy of the default that the caller may own.
func (v Value) Fresh() any {
	return copyValue(v.Data)
}

func copyValue(d any) any {
	switch t := d.(type) {
	case blackboard.List:
		return append(blackboard.List{}, t...)
	case blackboard.Set:
		return append(blackboard.Set{}, t...)
	case blackboard.Queue:
		return append(blackboard.Queue{}, t...)
	case blackboard.Dict:
		out := blackboard.Dict{}
		for k, x := range t {
			out[k] = x
		}
		return out
	case []any:
		return append([]any{}, t...)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = x
		}
		return out
	}
	return d
}

// UnmarshalYAML decodes a default, honouring !val and !ref tags.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	data, err := decodeNode(n)
	if err != nil {
		return err
	}
	v.Data, v.Present = data, true
	return nil
}

// MarshalYAML encodes the plain data.
func (v Value) MarshalYAML() (any, error) {
	return v.Data, nil
}

// MarshalJSON keeps the container kind so remote workers can rebuild it.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Present {
		return []byte("null"), nil
	}
	kind := blackboard.KindOf(v.Data)
	return json.Marshal(blackboard.Entry{Kind: kind, Value: v.Data})
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	var e blackboard.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return err
	}
	*v = NewValue(e.Container())
	return nil
}

func decodeNode(n *yaml.Node) (any, error) {
	switch {
	case n.Kind == yaml.AliasNode:
		return decodeNode(n.Alias)
	case n.Tag == TagVal:
		return decodeTagged(n, false)
	case n.Tag == TagRef:
		return decodeTagged(n, true)
	}

	switch n.Kind {
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			val, err := decodeNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = val
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := decodeNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	}

	var out any
	if err := n.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeTagged handles "!val list" style scalars and tagged literals such as
// "!ref [a, b]".
func decodeTagged(n *yaml.Node, accumulating bool) (any, error) {
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "list", "tuple":
			if accumulating {
				return blackboard.List{}, nil
			}
			return []any{}, nil
		case "set":
			if accumulating {
				return blackboard.Set{}, nil
			}
			return []any{}, nil
		case "dict":
			if accumulating {
				return blackboard.Dict{}, nil
			}
			return map[string]any{}, nil
		case "queue":
			if accumulating {
				return blackboard.Queue{}, nil
			}
			return []any{}, nil
		}
		return nil, fmt.Errorf("line %d: unknown container %q for %s", n.Line, n.Value, n.Tag)
	}

	plain := *n
	plain.Tag = ""
	data, err := decodeNode(&plain)
	if err != nil || !accumulating {
		return data, err
	}
	switch t := data.(type) {
	case []any:
		return blackboard.List(t), nil
	case map[string]any:
		return blackboard.Dict(t), nil
	}
	return data, nil
}

// Handlers maps handler names to their specs. YAML may also list bare names.
type Handlers map[string]HandlerSpec

func (h *Handlers) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.SequenceNode {
		var names []string
		if err := n.Decode(&names); err != nil {
			return err
		}
		*h = make(Handlers, len(names))
		for _, name := range names {
			(*h)[name] = HandlerSpec{}
		}
		return nil
	}
	var m map[string]HandlerSpec
	if err := n.Decode(&m); err != nil {
		return err
	}
	*h = m
	return nil
}

// UnmarshalYAML accepts operation types in any case.
func (t *OpType) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: op_type must be a scalar", n.Line)
	}
	*t = OpType(strings.ToUpper(strings.TrimSpace(n.Value)))
	return nil
}

// Target is one agent name, a list of names, or expressions resolving to them.
type Target []string

// UnmarshalYAML accepts a scalar or a sequence.
func (t *Target) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*t = Target{n.Value}
		return nil
	}
	var names []string
	if err := n.Decode(&names); err != nil {
		return err
	}
	*t = names
	return nil
}

func (t *Target) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*t = Target{one}
		return nil
	}
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*t = names
	return nil
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
