// Package expr resolves $path and ($path) interpolation against blackboards.
//
// Paths use GJSON syntax (https://github.com/tidwall/gjson) and run against a
// merged view of the shared board and, when given, the private board of the
// current launch. An expression that is exactly one span yields the typed
// query result; spans embedded in surrounding text are stringified.
package expr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aixgo-dev/synode/pkg/blackboard"
	"github.com/tidwall/gjson"
)

// InputKey is the view key holding the explicit input of an evaluation.
const InputKey = "__input"

// ErrLookup is returned when a path resolves to nothing.
var ErrLookup = errors.New("lookup failed")

// LookupError reports the path that failed to resolve.
type LookupError struct {
	Path string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup failed: %q", e.Path)
}

func (e *LookupError) Unwrap() error {
	return ErrLookup
}

// Evaluator resolves expressions against a shared board.
type Evaluator struct {
	shared blackboard.Blackboard
}

// New returns an Evaluator reading from shared.
func New(shared blackboard.Blackboard) *Evaluator {
	return &Evaluator{shared: shared}
}

// Eval resolves expression against shared and private state. private may be nil.
func (e *Evaluator) Eval(ctx context.Context, expression string, private blackboard.Blackboard) (any, error) {
	return e.eval(ctx, expression, private, nil, false)
}

// EvalInput is Eval with input exposed under InputKey.
func (e *Evaluator) EvalInput(ctx context.Context, expression string, private blackboard.Blackboard, input any) (any, error) {
	return e.eval(ctx, expression, private, input, true)
}

// EvalString resolves expression and stringifies the result.
func (e *Evaluator) EvalString(ctx context.Context, expression string, private blackboard.Blackboard) (string, error) {
	v, err := e.Eval(ctx, expression, private)
	if err != nil {
		return "", err
	}
	return Stringify(v), nil
}

func (e *Evaluator) eval(ctx context.Context, expression string, private blackboard.Blackboard, input any, withInput bool) (any, error) {
	if strings.HasPrefix(expression, "$") {
		expression = "(" + expression + ")"
	}
	found := spans(expression)
	if len(found) == 0 {
		return expression, nil
	}

	view, err := e.view(ctx, private)
	if err != nil {
		return nil, err
	}
	if withInput {
		view[InputKey] = input
	}
	doc, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}

	if len(found) == 1 && found[0][0] == 0 && found[0][1] == len(expression) {
		return resolveSpan(doc, expression)
	}

	var b strings.Builder
	last := 0
	for _, sp := range found {
		b.WriteString(expression[last:sp[0]])
		v, err := resolveSpan(doc, expression[sp[0]:sp[1]])
		if err != nil {
			return nil, err
		}
		b.WriteString(Stringify(v))
		last = sp[1]
	}
	b.WriteString(expression[last:])
	return b.String(), nil
}

func (e *Evaluator) view(ctx context.Context, private blackboard.Blackboard) (map[string]any, error) {
	view := map[string]any{}
	if e.shared != nil {
		shared, err := e.shared.Dump(ctx)
		if err != nil {
			return nil, fmt.Errorf("dump shared board: %w", err)
		}
		view = shared
	}
	if private != nil {
		priv, err := private.Dump(ctx)
		if err != nil {
			return nil, fmt.Errorf("dump private board: %w", err)
		}
		for k, v := range priv {
			view[k] = v
		}
	}
	return view, nil
}

// resolveSpan resolves one top-level ($...) span innermost first. A nested
// span yielding a mapping leaves the whole span unresolved.
func resolveSpan(doc []byte, span string) (any, error) {
	path, ok, err := substitute(doc, span[2:len(span)-1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return span, nil
	}
	return query(doc, path)
}

// substitute replaces the nested spans of s with their stringified results.
// Substituted text is never scanned again. ok is false when a nested span
// yields a mapping.
func substitute(doc []byte, s string) (string, bool, error) {
	found := spans(s)
	if len(found) == 0 {
		return s, true, nil
	}
	var b strings.Builder
	last := 0
	for _, sp := range found {
		b.WriteString(s[last:sp[0]])
		path, ok, err := substitute(doc, s[sp[0]+2:sp[1]-1])
		if err != nil || !ok {
			return "", ok, err
		}
		v, err := query(doc, path)
		if err != nil {
			return "", false, err
		}
		if _, isMap := v.(map[string]any); isMap {
			return "", false, nil
		}
		b.WriteString(Stringify(v))
		last = sp[1]
	}
	b.WriteString(s[last:])
	return b.String(), true, nil
}

// Query runs a single path against data.
func Query(data map[string]any, path string) (any, error) {
	doc, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode view: %w", err)
	}
	return query(doc, path)
}

func query(doc []byte, path string) (any, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$")
	r := gjson.GetBytes(doc, path)
	if !r.Exists() || r.Type == gjson.Null {
		return nil, &LookupError{Path: path}
	}
	return toValue(r), nil
}

func toValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			return int(r.Int())
		}
		return r.Float()
	case gjson.String:
		return r.Str
	}
	if r.IsArray() {
		items := r.Array()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = toValue(it)
		}
		return out
	}
	if r.IsObject() {
		out := map[string]any{}
		r.ForEach(func(k, v gjson.Result) bool {
			out[k.String()] = toValue(v)
			return true
		})
		return out
	}
	return r.Value()
}

// spans returns [start, end) offsets of the top-level ($...) spans in s.
// Inside a span every parenthesis counts toward nesting.
func spans(s string) [][2]int {
	var out [][2]int
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			if depth == 0 {
				if i+1 < len(s) && s[i+1] == '$' {
					start, depth = i, 1
				}
				continue
			}
			depth++
		case ')':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, [2]int{start, i + 1})
			}
		}
	}
	return out
}

// Stringify renders a resolved value for textual substitution.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

// Truthy reports whether a resolved condition value counts as true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.Trim(strings.TrimSpace(t), "`")) {
		case "", "false", "0", "null", "none":
			return false
		}
		return true
	}
	if s, ok := blackboard.ToSlice(v); ok {
		return len(s) > 0
	}
	if m, ok := blackboard.ToMap(v); ok {
		return len(m) > 0
	}
	return true
}
