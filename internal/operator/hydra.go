package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aixgo-dev/synode/internal/graph"
)

// DefaultHead serves handlers that name no head.
const DefaultHead = "default"

// Head is one named variant of a Hydra.
type Head struct {
	Name         string
	SystemPrompt string
	Model        string
}

// Hydra is a chat model with named heads, each carrying its own system
// prompt. Handlers take the form "head@mode", where mode is any Bot handler.
// Unknown heads are spawned from the operator defaults on first use. A reply
// that is itself a head definition (an object with "system_prompt")
// registers a new head and yields {head_name, instructions}.
type Hydra struct {
	decl graph.OperatorDecl
	*chat

	mu    sync.RWMutex
	heads map[string]*Head
}

// NewHydra binds decl and spawns the heads declared in decl.Handlers.
func NewHydra(decl graph.OperatorDecl, deps Deps) (*Hydra, error) {
	c, err := newChat(decl, deps)
	if err != nil {
		return nil, err
	}
	h := &Hydra{decl: decl, chat: c, heads: make(map[string]*Head)}
	for name, spec := range decl.Handlers {
		h.heads[name] = &Head{
			Name:         name,
			SystemPrompt: stringKwarg(spec.Kwargs, "system_prompt", c.system),
			Model:        stringKwarg(spec.Kwargs, "model", ""),
		}
	}
	return h, nil
}

func (h *Hydra) Alias() string            { return h.decl.Alias }
func (h *Hydra) Kind() graph.OperatorKind { return graph.KindHydra }
func (h *Hydra) Decl() graph.OperatorDecl { return h.decl }

// Head returns the head named name, spawning it if unseen.
func (h *Hydra) Head(name string) *Head {
	h.mu.RLock()
	head, ok := h.heads[name]
	h.mu.RUnlock()
	if ok {
		return head
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if head, ok := h.heads[name]; ok {
		return head
	}
	head = &Head{Name: name, SystemPrompt: h.system}
	h.heads[name] = head
	h.log.Debug("spawned head", "head", name)
	return head
}

// Heads lists the registered head names.
func (h *Hydra) Heads() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.heads))
	for name := range h.heads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddHead registers or replaces a head.
func (h *Hydra) AddHead(head Head) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.heads[head.Name] = &head
}

func (h *Hydra) Dispatch(ctx context.Context, call Call) (any, error) {
	name, mode, _ := strings.Cut(call.Handler, "@")
	if name == "" {
		name = DefaultHead
	}
	head := h.Head(name)

	out, err := h.complete(ctx, turn{
		system:       head.SystemPrompt,
		model:        head.Model,
		mode:         mode,
		instructions: call.Instructions,
		input:        call.Input,
	})
	if err != nil {
		return nil, err
	}

	if def, ok := headDefinition(out); ok {
		return h.register(def), nil
	}
	return out, nil
}

func headDefinition(out any) (map[string]any, bool) {
	var def map[string]any
	switch v := out.(type) {
	case map[string]any:
		def = v
	case string:
		s := strings.TrimSpace(v)
		if !strings.HasPrefix(s, "{") || json.Unmarshal([]byte(s), &def) != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	if _, ok := def["system_prompt"].(string); !ok {
		return nil, false
	}
	return def, true
}

func (h *Hydra) register(def map[string]any) map[string]any {
	name := stringKwarg(def, "head_name", stringKwarg(def, "name", ""))
	h.mu.Lock()
	if name == "" {
		name = fmt.Sprintf("%s-%d", h.decl.Alias, len(h.heads)+1)
	}
	h.heads[name] = &Head{
		Name:         name,
		SystemPrompt: def["system_prompt"].(string),
		Model:        stringKwarg(def, "model", ""),
	}
	h.mu.Unlock()
	h.log.Info("registered head", "head", name)

	instructions, _ := def["instructions"].(string)
	return map[string]any{"head_name": name, "instructions": instructions}
}
