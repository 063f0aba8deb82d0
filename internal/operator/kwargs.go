package operator

import (
	"encoding/json"
	"fmt"

	"github.com/aixgo-dev/synode/internal/graph"
)

func stringKwarg(kwargs map[string]any, key, def string) string {
	if s, ok := kwargs[key].(string); ok && s != "" {
		return s
	}
	return def
}

func floatKwarg(kwargs map[string]any, key string) (float64, bool) {
	switch v := kwargs[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func intKwarg(kwargs map[string]any, key string, def int) int {
	if n, ok := graph.IntKwarg(kwargs, key); ok {
		return n
	}
	return def
}

// rawJSON re-encodes a YAML-decoded schema.
func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{"type":"object"}`), nil
	}
	if s, ok := v.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, fmt.Errorf("schema is not valid JSON")
		}
		return json.RawMessage(s), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func mergeKwargs(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}
