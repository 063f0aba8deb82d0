package graph

import (
	"errors"
	"fmt"
)

// Validate checks structural invariants of d. Targets and operator
// references that are expressions are only checked at run time.
func Validate(d *Definition) error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	aliases := make(map[string]bool, len(d.Operators))
	for i, op := range d.Operators {
		field := fmt.Sprintf("operators[%d]", i)
		switch {
		case op.Alias == "":
			fail(field, "alias is required")
		case aliases[op.Alias]:
			fail(field, "duplicate alias %q", op.Alias)
		}
		aliases[op.Alias] = true
		if !op.Kind.Valid() {
			fail(field, "unknown operator_type %q", op.Kind)
		}
		if op.Kind == KindSynod && op.Path == "" {
			fail(field, "synod operator %q requires a path", op.Alias)
		}
	}

	agents := make(map[string]bool, len(d.Agents))
	for i := range d.Agents {
		a := &d.Agents[i]
		field := fmt.Sprintf("synode[%d]", i)
		switch {
		case a.Agent == "":
			fail(field, "agent name is required")
		case agents[a.Agent]:
			fail(field, "duplicate agent %q", a.Agent)
		}
		agents[a.Agent] = true

		if a.Operator == "" {
			fail(field, "agent %q has no operator", a.Agent)
		} else if !IsExpression(a.Operator) {
			if alias, _ := SplitOperator(a.Operator); !aliases[alias] {
				fail(field, "agent %q uses unknown operator %q", a.Agent, alias)
			}
		}
		if a.Timeout < 0 {
			fail(field, "agent %q has negative timeout", a.Agent)
		}
	}

	for i := range d.Agents {
		a := &d.Agents[i]
		for j, op := range a.Operations {
			field := fmt.Sprintf("synode[%d].operations[%d]", i, j)
			if !op.OpType.Valid() {
				fail(field, "unknown op_type %q", op.OpType)
				continue
			}
			if len(op.Target) == 0 {
				fail(field, "%s requires a target", op.OpType)
			}
			if op.OpType != OpForkTo && len(op.Target) > 1 {
				fail(field, "%s takes a single target", op.OpType)
			}
			for _, name := range op.Target {
				if !IsExpression(name) && !agents[name] {
					fail(field, "%s target %q is not a declared agent", op.OpType, name)
				}
			}
			switch op.OpType {
			case OpLoopTo:
				n, ok := IntKwarg(op.Kwargs, "max_cycles")
				if !ok {
					fail(field, "LOOP_TO requires kwargs.max_cycles")
				} else if n < 0 {
					fail(field, "LOOP_TO max_cycles must not be negative")
				}
			case OpReduce:
				if _, ok := op.Kwargs["accumulator"]; !ok {
					fail(field, "REDUCE requires kwargs.accumulator")
				}
			}
		}
	}

	for _, t := range d.Triggers {
		if !agents[t] {
			fail("triggers", "trigger %q is not a declared agent", t)
		}
	}

	return errors.Join(errs...)
}

// IntKwarg reads an integer keyword argument decoded from YAML or JSON.
func IntKwarg(kwargs map[string]any, key string) (int, bool) {
	switch v := kwargs[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case uint64:
		return int(v), true
	}
	return 0, false
}
