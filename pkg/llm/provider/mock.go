package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MockProvider is a scriptable provider for tests. Queued errors take
// precedence over queued responses; calls are recorded. Safe for concurrent use.
type MockProvider struct {
	name string

	mu                  sync.Mutex
	completionResponses []*CompletionResponse
	structuredResponses []*StructuredResponse
	streamChunks        [][]*StreamChunk
	errs                []error

	completionCalls []CompletionRequest
	structuredCalls []StructuredRequest
	streamCalls     []CompletionRequest

	// Respond, when set, computes completions instead of the queue.
	Respond func(CompletionRequest) (*CompletionResponse, error)
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) popError() error {
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

// CreateCompletion implements Provider
func (m *MockProvider) CreateCompletion(_ context.Context, request CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.completionCalls = append(m.completionCalls, request)
	if err := m.popError(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	respond := m.Respond
	var queued *CompletionResponse
	if respond == nil && len(m.completionResponses) > 0 {
		queued = m.completionResponses[0]
		m.completionResponses = m.completionResponses[1:]
	}
	m.mu.Unlock()

	if respond != nil {
		return respond(request)
	}
	if queued != nil {
		return queued, nil
	}
	return MockCompletionResponse("Mock response"), nil
}

// CreateStructured implements Provider
func (m *MockProvider) CreateStructured(_ context.Context, request StructuredRequest) (*StructuredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.structuredCalls = append(m.structuredCalls, request)
	if err := m.popError(); err != nil {
		return nil, err
	}
	if len(m.structuredResponses) > 0 {
		resp := m.structuredResponses[0]
		m.structuredResponses = m.structuredResponses[1:]
		return resp, nil
	}
	return MockStructuredResponse(map[string]any{"message": "Mock structured response"}), nil
}

// CreateStreaming implements Provider
func (m *MockProvider) CreateStreaming(_ context.Context, request CompletionRequest) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streamCalls = append(m.streamCalls, request)
	if err := m.popError(); err != nil {
		return nil, err
	}
	if len(m.streamChunks) > 0 {
		chunks := m.streamChunks[0]
		m.streamChunks = m.streamChunks[1:]
		return NewSliceStream(chunks), nil
	}
	return NewSliceStream([]*StreamChunk{
		{Delta: "Mock "},
		{Delta: "stream "},
		{Delta: "response", FinishReason: "stop"},
	}), nil
}

// Name implements Provider
func (m *MockProvider) Name() string {
	return m.name
}

// AddCompletionResponse queues a completion response
func (m *MockProvider) AddCompletionResponse(response *CompletionResponse) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionResponses = append(m.completionResponses, response)
	return m
}

// AddStructuredResponse queues a structured response
func (m *MockProvider) AddStructuredResponse(response *StructuredResponse) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structuredResponses = append(m.structuredResponses, response)
	return m
}

// AddStreamChunks queues the chunks of one stream
func (m *MockProvider) AddStreamChunks(chunks []*StreamChunk) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = append(m.streamChunks, chunks)
	return m
}

// AddError queues an error
func (m *MockProvider) AddError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return m
}

// CompletionCalls returns the recorded completion requests
func (m *MockProvider) CompletionCalls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.completionCalls...)
}

// StructuredCalls returns the recorded structured requests
func (m *MockProvider) StructuredCalls() []StructuredRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StructuredRequest(nil), m.structuredCalls...)
}

// StreamCalls returns the recorded streaming requests
func (m *MockProvider) StreamCalls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.streamCalls...)
}

// SliceStream replays a fixed list of chunks.
type SliceStream struct {
	mu     sync.Mutex
	chunks []*StreamChunk
	closed bool
}

// NewSliceStream returns a stream yielding chunks then io.EOF.
func NewSliceStream(chunks []*StreamChunk) *SliceStream {
	return &SliceStream{chunks: chunks}
}

// Recv implements Stream
func (s *SliceStream) Recv() (*StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("stream closed")
	}
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

// Close implements Stream
func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MockCompletionResponse creates a mock completion response
func MockCompletionResponse(content string) *CompletionResponse {
	return &CompletionResponse{
		Content:      content,
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: len(content) / 4,
			TotalTokens:      10 + len(content)/4,
		},
	}
}

// MockStructuredResponse creates a mock structured response
func MockStructuredResponse(data any) *StructuredResponse {
	jsonData, err := json.Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal mock data: %v", err))
	}

	return &StructuredResponse{
		Data:               jsonData,
		CompletionResponse: *MockCompletionResponse(string(jsonData)),
	}
}
