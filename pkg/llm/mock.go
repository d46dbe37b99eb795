package llm

import (
	"context"
	"errors"
	"sync"
)

// MockProvider is a testing implementation of Provider.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// ScriptedProvider returns a pre-defined sequence of responses. Useful for
// multi-turn interactions: planner call, supervisor verdicts, skill loops
// with tool calls.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []*ChatResponse
	err       error

	// CallCount tracks how many times Chat has been called.
	CallCount int
	// Requests records every request received, in order.
	Requests []ChatRequest
}

// NewScriptedProvider creates a provider that replays the given responses.
func NewScriptedProvider(responses ...*ChatResponse) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Script builds a text-only scripted provider from reply strings.
func Script(replies ...string) *ScriptedProvider {
	out := make([]*ChatResponse, len(replies))
	for i, reply := range replies {
		out[i] = &ChatResponse{Content: reply}
	}
	return NewScriptedProvider(out...)
}

// TextResponse wraps plain content in a ChatResponse.
func TextResponse(content string) *ChatResponse {
	return &ChatResponse{Content: content}
}

// ToolCallResponse builds a response that calls one tool with raw JSON args.
func ToolCallResponse(id, name, args string) *ChatResponse {
	return &ChatResponse{
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: name, Arguments: args},
		}},
	}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, errors.New("scripted provider: no more responses available")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	if resp.Usage == (Usage{}) {
		resp.Usage = Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20}
	}
	return resp, nil
}

// Fail makes all subsequent Chat calls return err.
func (s *ScriptedProvider) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Add appends responses to the queue.
func (s *ScriptedProvider) Add(responses ...*ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}
