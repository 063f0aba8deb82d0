package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sashabaranov/go-openai"
)

// ChatClient is the subset of *openai.Client used by OpenAIProvider.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type chatStreamer interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAIProvider implements Provider on top of go-openai. Any
// OpenAI-compatible endpoint works through base_url.
type OpenAIProvider struct {
	client ChatClient
	model  string
}

const defaultOpenAIModel = openai.GPT4oMini

func openAIFactory(config map[string]any) (Provider, error) {
	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	cfg := openai.DefaultConfig(apiKey)
	if url, ok := config["base_url"].(string); ok && url != "" {
		cfg.BaseURL = url
	}
	model, _ := config["model"].(string)
	return NewOpenAIProvider(openai.NewClientWithConfig(cfg), model), nil
}

// NewOpenAIProvider wraps client. model is used when a request names none.
func NewOpenAIProvider(client ChatClient, model string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{client: client, model: model}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) buildRequest(r CompletionRequest) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       r.Model,
		Temperature: float32(r.Temperature),
		MaxTokens:   r.MaxTokens,
	}
	if req.Model == "" {
		req.Model = p.model
	}
	for _, m := range r.Messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range r.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	switch r.ToolChoice {
	case "":
	case ToolChoiceAuto, ToolChoiceRequired:
		req.ToolChoice = r.ToolChoice
	default:
		req.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: r.ToolChoice},
		}
	}
	return req
}

// CreateCompletion implements Provider
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(request))
	if err != nil {
		return nil, p.wrapError(err)
	}
	return p.convert(resp)
}

// CreateStructured implements Provider using a json_schema response format.
func (p *OpenAIProvider) CreateStructured(ctx context.Context, request StructuredRequest) (*StructuredResponse, error) {
	req := p.buildRequest(request.CompletionRequest)
	name := request.SchemaName
	if name == "" {
		name = "response"
	}
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   name,
			Schema: request.ResponseSchema,
			Strict: request.StrictSchema,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.wrapError(err)
	}
	out, err := p.convert(resp)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(out.Content)) {
		return nil, NewProviderError(p.Name(), ErrorCodeInvalidRequest, "structured response is not valid JSON", nil)
	}
	return &StructuredResponse{Data: json.RawMessage(out.Content), CompletionResponse: *out}, nil
}

// CreateStreaming implements Provider. Clients without streaming support
// yield the whole completion as one chunk.
func (p *OpenAIProvider) CreateStreaming(ctx context.Context, request CompletionRequest) (Stream, error) {
	s, ok := p.client.(chatStreamer)
	if !ok {
		resp, err := p.CreateCompletion(ctx, request)
		if err != nil {
			return nil, err
		}
		return NewSliceStream([]*StreamChunk{{Delta: resp.Content, FinishReason: resp.FinishReason}}), nil
	}

	req := p.buildRequest(request)
	req.Stream = true
	stream, err := s.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, p.wrapError(err)
	}
	return &openAIStream{stream: stream}, nil
}

func (p *OpenAIProvider) convert(resp openai.ChatCompletionResponse) (*CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), ErrorCodeEmptyResponse, "no choices in response", nil)
	}
	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ErrorCodeUnknown
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			code = ErrorCodeAuthentication
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			code = ErrorCodeRateLimit
		case apiErr.HTTPStatusCode >= 500:
			code = ErrorCodeServerError
		case apiErr.HTTPStatusCode >= 400:
			code = ErrorCodeInvalidRequest
		}
		pe := NewProviderError(p.Name(), code, apiErr.Message, err)
		pe.StatusCode = apiErr.HTTPStatusCode
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(p.Name(), ErrorCodeTimeout, "request timed out", err)
	}
	return NewProviderError(p.Name(), ErrorCodeUnknown, err.Error(), err)
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (*StreamChunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	chunk := &StreamChunk{}
	if len(resp.Choices) > 0 {
		chunk.Delta = resp.Choices[0].Delta.Content
		chunk.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return chunk, nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
