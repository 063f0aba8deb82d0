package operator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/pkg/expr"
	"github.com/aixgo-dev/synode/pkg/llm/provider"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Chat handler modes besides tool and response-format names.
const (
	ModePlain  = "plain"
	ModeStream = "stream"
)

// chat is the model-calling core shared by BOT and HYDRA.
type chat struct {
	alias       string
	provider    provider.Provider
	model       string
	temperature float64
	maxTokens   int
	system      string
	tools       map[string]provider.Tool
	toolOrder   []string
	formats     map[string]json.RawMessage
	limiter     *rate.Limiter
	retries     int
	backoff     time.Duration
	gate        *semaphore.Weighted
	log         *slog.Logger

	mu       sync.RWMutex
	streamer func(chunk string)
}

// newChat reads provider, model, temperature, max_tokens, system_prompt,
// tools, response_formats, rate_limit, burst, retries and retry_backoff from
// the operator kwargs.
func newChat(decl graph.OperatorDecl, deps Deps) (*chat, error) {
	kw := decl.Kwargs
	if deps.Providers == nil {
		return nil, fmt.Errorf("%w: %s %q needs a provider registry", ErrMissingCollaborator, decl.Kind, decl.Alias)
	}
	p, err := deps.Providers.Resolve(stringKwarg(kw, "provider", "openai"), kw)
	if err != nil {
		return nil, fmt.Errorf("operator %q: %w", decl.Alias, err)
	}

	c := &chat{
		alias:     decl.Alias,
		provider:  p,
		model:     stringKwarg(kw, "model", ""),
		maxTokens: intKwarg(kw, "max_tokens", 0),
		system:    stringKwarg(kw, "system_prompt", ""),
		tools:     make(map[string]provider.Tool),
		formats:   make(map[string]json.RawMessage),
		retries:   intKwarg(kw, "retries", 2),
		backoff:   500 * time.Millisecond,
		gate:      deps.limits().Chat,
		log:       deps.logger().With("operator", decl.Alias),
	}
	if t, ok := floatKwarg(kw, "temperature"); ok {
		c.temperature = t
	}

	if raw, ok := kw["tools"].([]any); ok {
		for i, item := range raw {
			spec, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("operator %q: tools[%d] is not a mapping", decl.Alias, i)
			}
			name := stringKwarg(spec, "name", "")
			if name == "" {
				return nil, fmt.Errorf("operator %q: tools[%d] has no name", decl.Alias, i)
			}
			params, err := rawJSON(spec["parameters"])
			if err != nil {
				return nil, fmt.Errorf("operator %q: tool %q: %w", decl.Alias, name, err)
			}
			c.tools[name] = provider.Tool{
				Name:        name,
				Description: stringKwarg(spec, "description", ""),
				Parameters:  params,
			}
			c.toolOrder = append(c.toolOrder, name)
		}
	}

	if raw, ok := kw["response_formats"].(map[string]any); ok {
		for name, schema := range raw {
			b, err := rawJSON(schema)
			if err != nil {
				return nil, fmt.Errorf("operator %q: response format %q: %w", decl.Alias, name, err)
			}
			c.formats[name] = b
		}
	}

	if secs, ok := floatKwarg(kw, "retry_backoff"); ok && secs >= 0 {
		c.backoff = time.Duration(secs * float64(time.Second))
	}

	if rps, ok := floatKwarg(kw, "rate_limit"); ok && rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), intKwarg(kw, "burst", 1))
	}
	return c, nil
}

func (c *chat) SetStreamer(fn func(chunk string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamer = fn
}

func (c *chat) currentStreamer() func(string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamer
}

// turn is one chat exchange.
type turn struct {
	system       string
	model        string
	mode         string
	instructions string
	input        any
}

// prompt renders the single user message of a turn.
func prompt(instructions string, input any) string {
	return fmt.Sprintf("INSTRUCTIONS: %s\n INPUT: %s", instructions, expr.Stringify(input))
}

func (c *chat) complete(ctx context.Context, t turn) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	req := provider.CompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if t.model != "" {
		req.Model = t.model
	}
	system := t.system
	if system == "" {
		system = c.system
	}
	if system != "" {
		req.Messages = append(req.Messages, provider.Message{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, provider.Message{Role: "user", Content: prompt(t.instructions, t.input)})

	switch mode := t.mode; {
	case mode == "" || mode == ModePlain:
		resp, err := c.completion(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.Content, nil

	case mode == ModeStream:
		return c.stream(ctx, req)

	case mode == provider.ToolChoiceAuto || mode == provider.ToolChoiceRequired:
		for _, name := range c.toolOrder {
			req.Tools = append(req.Tools, c.tools[name])
		}
		req.ToolChoice = mode
		resp, err := c.completion(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		calls := make([]any, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			calls = append(calls, map[string]any{"name": tc.Name, "arguments": decodeJSON(tc.Arguments)})
		}
		return calls, nil
	}

	if tool, ok := c.tools[t.mode]; ok {
		req.Tools = []provider.Tool{tool}
		req.ToolChoice = tool.Name
		resp, err := c.completion(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		return decodeJSON(resp.ToolCalls[0].Arguments), nil
	}

	if schema, ok := c.formats[t.mode]; ok {
		var resp *provider.StructuredResponse
		err := c.retry(ctx, func() (err error) {
			resp, err = c.provider.CreateStructured(ctx, provider.StructuredRequest{
				CompletionRequest: req,
				SchemaName:        t.mode,
				ResponseSchema:    schema,
				StrictSchema:      true,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return decodeJSON(resp.Data), nil
	}

	return nil, fmt.Errorf("%w: %q on operator %q", ErrUnknownHandler, t.mode, c.alias)
}

func (c *chat) completion(ctx context.Context, req provider.CompletionRequest) (resp *provider.CompletionResponse, err error) {
	err = c.retry(ctx, func() (err error) {
		resp, err = c.provider.CreateCompletion(ctx, req)
		return err
	})
	return resp, err
}

// retry repeats fn while it fails with a retryable provider error, doubling
// the backoff each attempt.
func (c *chat) retry(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		var pe *provider.ProviderError
		if err == nil || attempt >= c.retries || !errors.As(err, &pe) || !pe.IsRetryable {
			return err
		}
		wait := c.backoff << attempt
		c.log.Warn("model call failed, retrying", "attempt", attempt+1, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *chat) stream(ctx context.Context, req provider.CompletionRequest) (any, error) {
	s, err := c.provider.CreateStreaming(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	fn := c.currentStreamer()
	var b strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		b.WriteString(chunk.Delta)
		if fn != nil && chunk.Delta != "" {
			fn(chunk.Delta)
		}
		if chunk.FinishReason != "" {
			break
		}
	}
	return b.String(), nil
}

func decodeJSON(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
