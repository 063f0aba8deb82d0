package blackboard

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind is the declared container kind of a stored value.
type Kind string

const (
	KindScalar Kind = "scalar"
	KindList   Kind = "list"
	KindSet    Kind = "set"
	KindDict   Kind = "dict"
	KindQueue  Kind = "queue"
)

// Accumulating reports whether writes to a key of this kind merge.
func (k Kind) Accumulating() bool {
	switch k {
	case KindList, KindSet, KindDict, KindQueue:
		return true
	}
	return false
}

// List is an accumulating list: writes extend it.
type List []any

// Set is an accumulating set: writes add members, preserving first-seen order.
type Set []any

// Dict is an accumulating mapping: writes shallow-update it.
type Dict map[string]any

// Queue is an accumulating FIFO: writes enqueue each item of a sequence.
type Queue []any

// KindOf returns the kind a value is declared with when written to a new key.
func KindOf(v any) Kind {
	switch v.(type) {
	case List:
		return KindList
	case Set:
		return KindSet
	case Dict:
		return KindDict
	case Queue:
		return KindQueue
	}
	return KindScalar
}

// NewContainer returns an empty accumulating container for kind, or nil for
// scalar or unknown kinds.
func NewContainer(kind Kind) any {
	switch kind {
	case KindList:
		return List{}
	case KindSet:
		return Set{}
	case KindDict:
		return Dict{}
	case KindQueue:
		return Queue{}
	}
	return nil
}

// unwrap splits a written value into its kind and its stored plain form.
func unwrap(v any) (Kind, any) {
	switch c := v.(type) {
	case List:
		return KindList, append([]any{}, c...)
	case Queue:
		return KindQueue, append([]any{}, c...)
	case Set:
		return KindSet, addMembers(nil, []any(c))
	case Dict:
		return KindDict, copyMap(c)
	}
	return KindScalar, v
}

// wrap rebuilds the typed container for a plain stored value.
func wrap(kind Kind, plain any) any {
	switch kind {
	case KindList:
		s, _ := ToSlice(plain)
		return List(append([]any{}, s...))
	case KindQueue:
		s, _ := ToSlice(plain)
		return Queue(append([]any{}, s...))
	case KindSet:
		s, _ := ToSlice(plain)
		return Set(addMembers(nil, s))
	case KindDict:
		m, _ := ToMap(plain)
		return Dict(copyMap(m))
	}
	return plain
}

// merge folds incoming into the stored entry. Lists, sets and queues extend
// with the items of a sequence and take any other value as one item; dicts
// update from a mapping. A non-mapping written to a dict replaces it.
func merge(cur Entry, incoming any) Entry {
	switch cur.Kind {
	case KindList, KindQueue:
		stored, _ := ToSlice(cur.Value)
		out := append([]any{}, stored...)
		if items, ok := ToSlice(incoming); ok {
			return Entry{Kind: cur.Kind, Value: append(out, items...)}
		}
		return Entry{Kind: cur.Kind, Value: append(out, incoming)}
	case KindSet:
		stored, _ := ToSlice(cur.Value)
		items, ok := ToSlice(incoming)
		if !ok {
			items = []any{incoming}
		}
		return Entry{Kind: KindSet, Value: addMembers(stored, items)}
	case KindDict:
		if upd, ok := ToMap(incoming); ok {
			stored, _ := ToMap(cur.Value)
			out := copyMap(stored)
			for k, v := range upd {
				out[k] = v
			}
			return Entry{Kind: KindDict, Value: out}
		}
	}
	kind, plain := unwrap(incoming)
	return Entry{Kind: kind, Value: plain}
}

// plainCopy returns a caller-owned copy of a stored value.
func plainCopy(kind Kind, v any) any {
	switch kind {
	case KindList, KindQueue, KindSet:
		s, _ := ToSlice(v)
		return append([]any{}, s...)
	case KindDict:
		m, _ := ToMap(v)
		return copyMap(m)
	}
	return v
}

func addMembers(cur, items []any) []any {
	out := append([]any{}, cur...)
	seen := make(map[string]struct{}, len(out)+len(items))
	for _, v := range out {
		seen[memberKey(v)] = struct{}{}
	}
	for _, v := range items {
		k := memberKey(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func memberKey(v any) string {
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%#v", v)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ToSlice converts any slice or array (except strings and byte slices) to []any.
func ToSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []any:
		return s, true
	case List:
		return []any(s), true
	case Set:
		return []any(s), true
	case Queue:
		return []any(s), true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// ToMap converts any map keyed by strings to map[string]any.
func ToMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return m, true
	case Dict:
		return map[string]any(m), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
