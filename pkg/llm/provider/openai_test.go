package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	mu        sync.Mutex
	responses []openai.ChatCompletionResponse
	err       error
	calls     []openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if len(f.responses) == 0 {
		return openai.ChatCompletionResponse{}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
}

func TestOpenAIProvider_Completion(t *testing.T) {
	client := &fakeChatClient{responses: []openai.ChatCompletionResponse{textResponse("hello")}}
	p := NewOpenAIProvider(client, "")

	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)

	require.Len(t, client.calls, 1)
	assert.Equal(t, defaultOpenAIModel, client.calls[0].Model)
	assert.Equal(t, "hi", client.calls[0].Messages[0].Content)
}

func TestOpenAIProvider_ToolChoice(t *testing.T) {
	client := &fakeChatClient{}
	p := NewOpenAIProvider(client, "gpt-test")
	tools := []Tool{{Name: "lookup", Parameters: json.RawMessage(`{"type":"object"}`)}}

	_, _ = p.CreateCompletion(context.Background(), CompletionRequest{Tools: tools, ToolChoice: "required"})
	_, _ = p.CreateCompletion(context.Background(), CompletionRequest{Tools: tools, ToolChoice: "lookup"})

	require.Len(t, client.calls, 2)
	assert.Equal(t, "required", client.calls[0].ToolChoice)
	forced, ok := client.calls[1].ToolChoice.(openai.ToolChoice)
	require.True(t, ok)
	assert.Equal(t, "lookup", forced.Function.Name)
	assert.Equal(t, "gpt-test", client.calls[1].Model)
}

func TestOpenAIProvider_ToolCalls(t *testing.T) {
	resp := textResponse("")
	resp.Choices[0].Message.ToolCalls = []openai.ToolCall{{
		ID:       "call_1",
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: "lookup", Arguments: `{"q":"x"}`},
	}}
	p := NewOpenAIProvider(&fakeChatClient{responses: []openai.ChatCompletionResponse{resp}}, "")

	out, err := p.CreateCompletion(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "lookup", out.ToolCalls[0].Name)
	assert.JSONEq(t, `{"q":"x"}`, string(out.ToolCalls[0].Arguments))
}

func TestOpenAIProvider_Structured(t *testing.T) {
	client := &fakeChatClient{responses: []openai.ChatCompletionResponse{textResponse(`{"ok":true}`)}}
	p := NewOpenAIProvider(client, "")

	out, err := p.CreateStructured(context.Background(), StructuredRequest{
		SchemaName:     "verdict",
		ResponseSchema: json.RawMessage(`{"type":"object"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out.Data))

	format := client.calls[0].ResponseFormat
	require.NotNil(t, format)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, format.Type)
	assert.Equal(t, "verdict", format.JSONSchema.Name)
}

func TestOpenAIProvider_StructuredInvalidJSON(t *testing.T) {
	p := NewOpenAIProvider(&fakeChatClient{responses: []openai.ChatCompletionResponse{textResponse("nope")}}, "")

	_, err := p.CreateStructured(context.Background(), StructuredRequest{})
	require.Error(t, err)
}

func TestOpenAIProvider_StreamingFallback(t *testing.T) {
	p := NewOpenAIProvider(&fakeChatClient{responses: []openai.ChatCompletionResponse{textResponse("whole")}}, "")

	s, err := p.CreateStreaming(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "whole", chunk.Delta)
	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}
	p := NewOpenAIProvider(&fakeChatClient{err: apiErr}, "")

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrorCodeRateLimit, pe.Code)
	assert.True(t, pe.IsRetryable)

	p = NewOpenAIProvider(&fakeChatClient{}, "")
	_, err = p.CreateCompletion(context.Background(), CompletionRequest{})
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrorCodeEmptyResponse, pe.Code)
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	builds := 0
	r.RegisterFactory("mock", func(map[string]any) (Provider, error) {
		builds++
		return NewMockProvider("mock"), nil
	})

	p1, err := r.Resolve("mock", nil)
	require.NoError(t, err)
	p2, err := r.Resolve("mock", nil)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, builds)

	_, err = r.Resolve("ghost", nil)
	assert.Error(t, err)
}

func TestDefaultRegistry_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	r := NewDefaultRegistry()

	_, err := r.Resolve("openai", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, r.List(), "openai")
}

func TestMockProvider_QueueAndErrors(t *testing.T) {
	m := NewMockProvider("m")
	m.AddError(errors.New("boom"))
	m.AddCompletionResponse(MockCompletionResponse("second"))

	_, err := m.CreateCompletion(context.Background(), CompletionRequest{})
	require.Error(t, err)
	resp, err := m.CreateCompletion(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)
	assert.Len(t, m.CompletionCalls(), 2)
}
