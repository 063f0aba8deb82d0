// Package provider defines the chat model interface used by BOT and HYDRA
// operators, an OpenAI implementation, and a scriptable mock.
package provider

import (
	"context"
	"encoding/json"
)

// Provider is a chat model backend. BOT operators use one provider per
// agent call; HYDRA operators fan the same request out to several.
type Provider interface {
	CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error)

	// CreateStructured answers with JSON matching request.ResponseSchema.
	CreateStructured(ctx context.Context, request StructuredRequest) (*StructuredResponse, error)

	CreateStreaming(ctx context.Context, request CompletionRequest) (Stream, error)

	Name() string
}

// Message is one chat turn. Role is system, user, assistant or tool.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is a function offered to the model, declared with a JSON schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
)

// CompletionRequest carries the rendered instructions and input of an agent.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`

	// ToolChoice is "auto", "required", or the name of a single tool to force.
	ToolChoice string `json:"tool_choice,omitempty"`
}

type CompletionResponse struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        Usage      `json:"usage"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
}

type StructuredRequest struct {
	CompletionRequest

	SchemaName     string          `json:"schema_name"`
	ResponseSchema json.RawMessage `json:"response_schema"`
	StrictSchema   bool            `json:"strict_schema,omitempty"`
}

// StructuredResponse holds the decoded-schema payload in Data.
type StructuredResponse struct {
	Data json.RawMessage `json:"data"`

	CompletionResponse
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Stream yields response chunks; Recv returns io.EOF after the last one.
type Stream interface {
	Recv() (*StreamChunk, error)
	Close() error
}

type StreamChunk struct {
	Delta        string `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ProviderError classifies a backend failure. Retryable errors are retried
// by the chat operators before the agent fails.
type ProviderError struct {
	Provider      string `json:"provider"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	StatusCode    int    `json:"status_code,omitempty"`
	IsRetryable   bool   `json:"is_retryable"`
	OriginalError error  `json:"-"`
}

func (e *ProviderError) Error() string {
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// Error codes.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeAuthentication = "authentication_error"
	ErrorCodeRateLimit      = "rate_limit_exceeded"
	ErrorCodeServerError    = "server_error"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeEmptyResponse  = "empty_response"
	ErrorCodeUnknown        = "unknown_error"
)

func NewProviderError(provider, code, message string, original error) *ProviderError {
	return &ProviderError{
		Provider:      provider,
		Code:          code,
		Message:       message,
		OriginalError: original,
		IsRetryable:   isRetryableError(code),
	}
}

func isRetryableError(code string) bool {
	switch code {
	case ErrorCodeRateLimit, ErrorCodeServerError, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}
